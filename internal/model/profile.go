package model

// PublicProfile is the public profile of an external user.
type PublicProfile struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Created     string `json:"created"`
	IsBanned    bool   `json:"isBanned"`
}
