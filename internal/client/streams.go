package client

import (
	"context"
	"encoding/json"
	"time"
)

type LabelFilter struct {
	Label        string  `json:"label"`
	ModelVersion int     `json:"model_version"`
	Threshold    float64 `json:"threshold"`
}

type Stream struct {
	ID            string          `json:"id"`
	DatasetID     string          `json:"dataset_id"`
	Name          string          `json:"name"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CommentFilter json.RawMessage `json:"comment_filter,omitempty"`
	LabelFilter   *LabelFilter    `json:"label_threshold_filter,omitempty"`
}

type StreamResult struct {
	Comment    Comment         `json:"comment"`
	SequenceID string          `json:"sequence_id"`
	Labels     json.RawMessage `json:"labels,omitempty"`
	Entities   json.RawMessage `json:"entities,omitempty"`
}

// StreamBatch is one fetch. Filtered counts comments the stream skipped;
// SequenceID acknowledges the whole batch when advanced to.
type StreamBatch struct {
	Results    []StreamResult `json:"results"`
	Filtered   int            `json:"filtered"`
	SequenceID string         `json:"sequence_id"`
}

type StreamException struct {
	Metadata StreamExceptionMetadata `json:"metadata"`
	UID      string                  `json:"uid"`
}

type StreamExceptionMetadata struct {
	Type string `json:"type"`
}

func (c *Client) GetStreams(ctx context.Context, dataset FullName) ([]Stream, error) {
	var out struct {
		Streams []Stream `json:"streams"`
	}
	if err := c.get(ctx, c.v1("datasets", dataset.Owner, dataset.Name, "streams"), &out); err != nil {
		return nil, err
	}
	return out.Streams, nil
}

func streamSegments(s StreamFullName, rest ...string) []string {
	return append([]string{"datasets", s.Dataset.Owner, s.Dataset.Name, "streams", s.Stream}, rest...)
}

func (c *Client) GetStream(ctx context.Context, s StreamFullName) (Stream, error) {
	var out struct {
		Stream Stream `json:"stream"`
	}
	if err := c.get(ctx, c.v1(streamSegments(s)...), &out); err != nil {
		return Stream{}, err
	}
	return out.Stream, nil
}

// NewStream is a stream definition as read from a JSON lines file. Fields the
// client does not know about are passed through untouched.
type NewStream map[string]json.RawMessage

func (c *Client) CreateStream(ctx context.Context, dataset FullName, in NewStream) (Stream, error) {
	var out struct {
		Stream Stream `json:"stream"`
	}
	if err := c.put(ctx, c.v1("datasets", dataset.Owner, dataset.Name, "streams"), map[string]any{"stream": in}, &out); err != nil {
		return Stream{}, err
	}
	return out.Stream, nil
}

// FetchStream is not retried: a lost response would skip a batch.
func (c *Client) FetchStream(ctx context.Context, s StreamFullName, size int) (StreamBatch, error) {
	var out StreamBatch
	if err := c.post(ctx, c.v1(streamSegments(s, "fetch")...), map[string]any{"size": size}, &out, false); err != nil {
		return StreamBatch{}, err
	}
	return out, nil
}

func (c *Client) AdvanceStream(ctx context.Context, s StreamFullName, sequenceID string) error {
	return c.post(ctx, c.v1(streamSegments(s, "advance")...), map[string]any{"sequence_id": sequenceID}, nil, false)
}

func (c *Client) ResetStream(ctx context.Context, s StreamFullName, to time.Time) error {
	body := map[string]any{"to_comment_created_at": to.UTC().Format(time.RFC3339Nano)}
	return c.post(ctx, c.v1(streamSegments(s, "reset")...), body, nil, false)
}

func (c *Client) TagStreamExceptions(ctx context.Context, s StreamFullName, exceptions []StreamException) error {
	return c.put(ctx, c.v1(streamSegments(s, "exceptions")...), map[string]any{"exceptions": exceptions}, nil)
}

// Trigger is the older name of a stream; the shapes are the same.
type Trigger = Stream

func (c *Client) GetTriggers(ctx context.Context, dataset FullName) ([]Trigger, error) {
	var out struct {
		Triggers []Trigger `json:"triggers"`
	}
	if err := c.get(ctx, c.v1("datasets", dataset.Owner, dataset.Name, "triggers"), &out); err != nil {
		return nil, err
	}
	return out.Triggers, nil
}

func (c *Client) FetchTrigger(ctx context.Context, t StreamFullName, size int) (StreamBatch, error) {
	var out StreamBatch
	u := c.v1("datasets", t.Dataset.Owner, t.Dataset.Name, "triggers", t.Stream, "fetch")
	if err := c.post(ctx, u, map[string]any{"size": size}, &out, false); err != nil {
		return StreamBatch{}, err
	}
	return out, nil
}

func (c *Client) AdvanceTrigger(ctx context.Context, t StreamFullName, sequenceID string) error {
	u := c.v1("datasets", t.Dataset.Owner, t.Dataset.Name, "triggers", t.Stream, "advance")
	return c.post(ctx, u, map[string]any{"sequence_id": sequenceID}, nil, false)
}

func (c *Client) TagTriggerExceptions(ctx context.Context, t StreamFullName, exceptions []StreamException) error {
	u := c.v1("datasets", t.Dataset.Owner, t.Dataset.Name, "triggers", t.Stream, "exceptions")
	return c.put(ctx, u, map[string]any{"exceptions": exceptions}, nil)
}
