package client

import (
	"context"
	"fmt"
	"time"
)

type SourceKind string

const (
	SourceKindCall       SourceKind = "call"
	SourceKindChat       SourceKind = "chat"
	SourceKindUnknown    SourceKind = "unknown"
	SourceKindIxpDesign  SourceKind = "ixp_design"
	SourceKindIxpRuntime SourceKind = "ixp_runtime"
)

// ParseSourceKind accepts the server kinds plus "email" and "comment",
// which have no dedicated kind.
func ParseSourceKind(s string) (SourceKind, error) {
	switch s {
	case "email", "comment", "unknown":
		return SourceKindUnknown, nil
	case "call", "chat", "ixp_design", "ixp_runtime":
		return SourceKind(s), nil
	}
	return "", fmt.Errorf("invalid source kind %q, expected one of email, comment, call, chat, unknown, ixp_design, ixp_runtime", s)
}

func ValidateLanguage(s string) error {
	switch s {
	case "en", "de", "xlm":
		return nil
	}
	return fmt.Errorf("unsupported language %q, expected one of en, de, xlm", s)
}

type Source struct {
	ID                  string     `json:"id"`
	Owner               string     `json:"owner"`
	Name                string     `json:"name"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Language            string     `json:"language"`
	ShouldTranslate     bool       `json:"should_translate"`
	SensitiveProperties []string   `json:"sensitive_properties,omitempty"`
	BucketID            string     `json:"bucket_id,omitempty"`
	Kind                SourceKind `json:"_kind,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (s Source) FullName() FullName { return FullName{Owner: s.Owner, Name: s.Name} }

type NewSource struct {
	Title               string     `json:"title,omitempty"`
	Description         string     `json:"description,omitempty"`
	Language            string     `json:"language,omitempty"`
	ShouldTranslate     *bool      `json:"should_translate,omitempty"`
	BucketID            string     `json:"bucket_id,omitempty"`
	SensitiveProperties []string   `json:"sensitive_properties,omitempty"`
	Kind                SourceKind `json:"_kind,omitempty"`
	EmailTransformTag   string     `json:"email_transform_tag,omitempty"`
}

type UpdateSource struct {
	Title               *string  `json:"title,omitempty"`
	Description         *string  `json:"description,omitempty"`
	ShouldTranslate     *bool    `json:"should_translate,omitempty"`
	BucketID            *string  `json:"bucket_id,omitempty"`
	SensitiveProperties []string `json:"sensitive_properties,omitempty"`
}

type sourceResponse struct {
	Source Source `json:"source"`
}

func (c *Client) GetSources(ctx context.Context) ([]Source, error) {
	var out struct {
		Sources []Source `json:"sources"`
	}
	if err := c.get(ctx, c.v1("sources"), &out); err != nil {
		return nil, err
	}
	return out.Sources, nil
}

func (c *Client) GetSource(ctx context.Context, id Identifier) (Source, error) {
	var out sourceResponse
	if err := c.get(ctx, c.v1(concat([]string{"sources"}, id.segments())...), &out); err != nil {
		return Source{}, err
	}
	return out.Source, nil
}

func (c *Client) CreateSource(ctx context.Context, name FullName, in NewSource) (Source, error) {
	var out sourceResponse
	if err := c.put(ctx, c.v1("sources", name.Owner, name.Name), map[string]any{"source": in}, &out); err != nil {
		return Source{}, err
	}
	return out.Source, nil
}

func (c *Client) UpdateSource(ctx context.Context, name FullName, in UpdateSource) (Source, error) {
	var out sourceResponse
	if err := c.post(ctx, c.v1("sources", name.Owner, name.Name), map[string]any{"source": in}, &out, true); err != nil {
		return Source{}, err
	}
	return out.Source, nil
}

func (c *Client) DeleteSource(ctx context.Context, id string) error {
	return c.delete(ctx, c.v1("sources", "id:"+id))
}

type SourceStatistics struct {
	NumComments int `json:"num_comments"`
}

func (c *Client) GetSourceStatistics(ctx context.Context, name FullName) (SourceStatistics, error) {
	var out struct {
		Statistics SourceStatistics `json:"statistics"`
	}
	if err := c.post(ctx, c.private("sources", name.Owner, name.Name, "statistics"), map[string]any{}, &out, false); err != nil {
		return SourceStatistics{}, err
	}
	return out.Statistics, nil
}
