package client

import (
	"context"
	"encoding/json"
	"time"
)

type Integration struct {
	ID             string          `json:"id"`
	Owner          string          `json:"owner"`
	Name           string          `json:"name"`
	Title          string          `json:"title"`
	Type           string          `json:"type"`
	Enabled        bool            `json:"enabled"`
	DisabledReason string          `json:"disabled_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Configuration  json.RawMessage `json:"configuration,omitempty"`
}

func (i Integration) FullName() FullName { return FullName{Owner: i.Owner, Name: i.Name} }

func (c *Client) GetIntegrations(ctx context.Context) ([]Integration, error) {
	var out struct {
		Integrations []Integration `json:"integrations"`
	}
	if err := c.get(ctx, c.private("integrations"), &out); err != nil {
		return nil, err
	}
	return out.Integrations, nil
}

// NewIntegration is the body of an integration file.
type NewIntegration struct {
	Title         string          `json:"title,omitempty"`
	Enabled       *bool           `json:"enabled,omitempty"`
	Configuration json.RawMessage `json:"configuration"`
}

type integrationResponse struct {
	Integration Integration `json:"integration"`
}

func (c *Client) GetIntegration(ctx context.Context, name FullName) (Integration, error) {
	var out integrationResponse
	if err := c.get(ctx, c.private("integrations", name.Owner, name.Name), &out); err != nil {
		return Integration{}, err
	}
	return out.Integration, nil
}

func (c *Client) CreateIntegration(ctx context.Context, name FullName, in NewIntegration) (Integration, error) {
	var out integrationResponse
	if err := c.put(ctx, c.private("integrations", name.Owner, name.Name), map[string]any{"integration": in}, &out); err != nil {
		return Integration{}, err
	}
	return out.Integration, nil
}

func (c *Client) UpdateIntegration(ctx context.Context, name FullName, in NewIntegration) (Integration, error) {
	var out integrationResponse
	if err := c.post(ctx, c.private("integrations", name.Owner, name.Name), map[string]any{"integration": in}, &out, true); err != nil {
		return Integration{}, err
	}
	return out.Integration, nil
}
