package model

import (
	"encoding/json"
	"time"
)

// LinkedAccount is an external account a bot user has linked.
type LinkedAccount struct {
	BotUserID   string    `json:"botUserId"`
	UserID      int64     `json:"userId"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	HasCookie   bool      `json:"hasCookie"`
	LinkedAt    time.Time `json:"linkedAt"`
}

// Event is an opaque entry of the per-bot-user event log.
type Event struct {
	ID        string          `json:"id"`
	BotUserID string          `json:"botUserId"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
