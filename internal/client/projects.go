package client

import (
	"context"
	"net/url"
	"time"
)

type Project struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type NewProject struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type UpdateProject struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type projectResponse struct {
	Project Project `json:"project"`
}

func (c *Client) GetProjects(ctx context.Context) ([]Project, error) {
	var out struct {
		Projects []Project `json:"projects"`
	}
	if err := c.get(ctx, c.private("projects"), &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

func (c *Client) GetProject(ctx context.Context, name string) (Project, error) {
	var out projectResponse
	if err := c.get(ctx, c.private("projects", name), &out); err != nil {
		return Project{}, err
	}
	return out.Project, nil
}

// CreateProject grants the listed users admin rights on the new project.
func (c *Client) CreateProject(ctx context.Context, name string, in NewProject, userIDs []string) (Project, error) {
	if userIDs == nil {
		userIDs = []string{}
	}
	var out projectResponse
	if err := c.put(ctx, c.private("projects", name), map[string]any{"project": in, "user_ids": userIDs}, &out); err != nil {
		return Project{}, err
	}
	return out.Project, nil
}

func (c *Client) UpdateProject(ctx context.Context, name string, in UpdateProject) (Project, error) {
	var out projectResponse
	if err := c.post(ctx, c.private("projects", name), map[string]any{"project": in}, &out, true); err != nil {
		return Project{}, err
	}
	return out.Project, nil
}

// DeleteProject with force also removes every resource the project owns.
func (c *Client) DeleteProject(ctx context.Context, name string, force bool) error {
	u := c.private("projects", name)
	if force {
		u = withQuery(u, url.Values{"force": {"true"}})
	}
	return c.delete(ctx, u)
}
