package client

import (
	"context"
	"time"
)

type Alert struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a Alert) FullName() FullName { return FullName{Owner: a.Owner, Name: a.Name} }

func (c *Client) GetAlerts(ctx context.Context) ([]Alert, error) {
	var out struct {
		Alerts []Alert `json:"alerts"`
	}
	if err := c.get(ctx, c.private("alerts"), &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}
