package roblox

import (
	"context"
	"fmt"

	"rbx-valuation-api/internal/model"
)

type userResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Created     string `json:"created"`
	IsBanned    bool   `json:"isBanned"`
}

// FetchProfile returns the public profile of a user.
func (c *Client) FetchProfile(ctx context.Context, userID int64) (*model.PublicProfile, error) {
	var resp userResponse
	u := fmt.Sprintf("%s/v1/users/%d", c.endpoints.Users, userID)
	if err := c.getJSON(ctx, "users", u, nil, &resp); err != nil {
		return nil, err
	}

	displayName := resp.DisplayName
	if displayName == "" {
		displayName = resp.Name
	}
	return &model.PublicProfile{
		ID:          resp.ID,
		Name:        resp.Name,
		DisplayName: displayName,
		Description: resp.Description,
		Created:     resp.Created,
		IsBanned:    resp.IsBanned,
	}, nil
}
