package client

import (
	"context"
	"time"
)

type User struct {
	ID                   string              `json:"id"`
	Username             string              `json:"username"`
	Email                string              `json:"email"`
	CreatedAt            time.Time           `json:"created"`
	GlobalPermissions    []string            `json:"global_permissions"`
	ProjectPermissions   map[string][]string `json:"organisation_permissions"`
	SSOGlobalPermissions []string            `json:"sso_global_permissions"`
	Verified             bool                `json:"verified"`
}

type NewUser struct {
	Username           string              `json:"username"`
	Email              string              `json:"email"`
	GlobalPermissions  []string            `json:"global_permissions"`
	ProjectPermissions map[string][]string `json:"organisation_permissions"`
}

// UpdateUser adds permissions; empty fields are left alone.
type UpdateUser struct {
	ProjectPermissions map[string][]string `json:"organisation_permissions,omitempty"`
	GlobalPermissions  []string            `json:"global_permissions,omitempty"`
}

type userResponse struct {
	User User `json:"user"`
}

func (c *Client) GetUsers(ctx context.Context) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	if err := c.get(ctx, c.private("users"), &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	var out userResponse
	if err := c.get(ctx, c.private("users", id), &out); err != nil {
		return User{}, err
	}
	return out.User, nil
}

func (c *Client) CreateUser(ctx context.Context, in NewUser) (User, error) {
	var out userResponse
	if err := c.put(ctx, c.private("users"), map[string]any{"user": in}, &out); err != nil {
		return User{}, err
	}
	return out.User, nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, in UpdateUser) error {
	return c.post(ctx, c.private("users", id), map[string]any{"user": in}, nil, true)
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.delete(ctx, c.private("users", id))
}

func (c *Client) SendWelcomeEmail(ctx context.Context, id string) error {
	return c.post(ctx, c.private("users", id, "welcome-email"), map[string]any{}, nil, false)
}

func (c *Client) GetCurrentUser(ctx context.Context) (User, error) {
	var out userResponse
	if err := c.get(ctx, c.url("auth", "user"), &out); err != nil {
		return User{}, err
	}
	return out.User, nil
}

// RefreshUserPermissions asks the server to recompute the caller's
// permissions, so resources created moments ago become visible.
func (c *Client) RefreshUserPermissions(ctx context.Context) error {
	return c.post(ctx, c.url("auth", "refresh-user-permissions"), map[string]any{}, nil, false)
}
