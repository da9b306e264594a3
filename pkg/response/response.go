// Package response writes the success envelope of the HTTP API.
package response

import (
	"encoding/json"
	"net/http"

	"rbx-valuation-api/pkg/apierror"
)

// Response is the standard success envelope.
type Response struct {
	Success bool  `json:"success"`
	Data    any   `json:"data,omitempty"`
	Meta    *Meta `json:"meta,omitempty"`
}

// Meta carries pagination metadata.
type Meta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	HasNext bool `json:"hasNext"`
}

// JSON sends data with the given status code.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	write(w, statusCode, Response{Success: true, Data: data})
}

// JSONWithMeta sends data with pagination metadata.
func JSONWithMeta(w http.ResponseWriter, statusCode int, data any, page, limit int, hasNext bool) {
	write(w, statusCode, Response{
		Success: true,
		Data:    data,
		Meta:    &Meta{Page: page, Limit: limit, HasNext: hasNext},
	})
}

func write(w http.ResponseWriter, statusCode int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// Error sends an error envelope. Errors that are not API errors become 500s.
func Error(w http.ResponseWriter, err error) {
	apiErr, ok := apierror.As(err)
	if !ok {
		apiErr = apierror.InternalError("")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode)
	_, _ = w.Write(apiErr.ToJSON())
}

// NoContent sends a 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Created sends a 201 with the created resource.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// OK sends a 200.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}
