package client

import (
	"context"
	"encoding/json"
	"time"
)

type Dataset struct {
	ID           string            `json:"id"`
	Owner        string            `json:"owner"`
	Name         string            `json:"name"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	CreatedAt    time.Time         `json:"created"`
	UpdatedAt    time.Time         `json:"last_modified"`
	ModelFamily  string            `json:"model_family"`
	SourceIDs    []string          `json:"source_ids"`
	HasSentiment bool              `json:"has_sentiment"`
	EntityDefs   []json.RawMessage `json:"entity_defs,omitempty"`
	LabelDefs    []LabelDef        `json:"label_defs,omitempty"`
	LabelGroups  []json.RawMessage `json:"label_groups,omitempty"`
}

func (d Dataset) FullName() FullName { return FullName{Owner: d.Owner, Name: d.Name} }

type LabelDef struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type NewDataset struct {
	Title               string            `json:"title,omitempty"`
	Description         string            `json:"description,omitempty"`
	SourceIDs           []string          `json:"source_ids"`
	HasSentiment        *bool             `json:"has_sentiment,omitempty"`
	ModelFamily         string            `json:"model_family,omitempty"`
	EntityDefs          []json.RawMessage `json:"entity_defs,omitempty"`
	LabelDefs           []LabelDef        `json:"label_defs,omitempty"`
	LabelGroups         []json.RawMessage `json:"label_groups,omitempty"`
	CopyAnnotationsFrom string            `json:"copy_annotations_from,omitempty"`
}

type UpdateDataset struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	SourceIDs   []string `json:"source_ids,omitempty"`
}

type datasetResponse struct {
	Dataset Dataset `json:"dataset"`
}

func (c *Client) GetDatasets(ctx context.Context) ([]Dataset, error) {
	var out struct {
		Datasets []Dataset `json:"datasets"`
	}
	if err := c.get(ctx, c.v1("datasets"), &out); err != nil {
		return nil, err
	}
	return out.Datasets, nil
}

func (c *Client) GetDataset(ctx context.Context, id Identifier) (Dataset, error) {
	var out datasetResponse
	if err := c.get(ctx, c.v1(concat([]string{"datasets"}, id.segments())...), &out); err != nil {
		return Dataset{}, err
	}
	return out.Dataset, nil
}

func (c *Client) CreateDataset(ctx context.Context, name FullName, in NewDataset) (Dataset, error) {
	var out datasetResponse
	if err := c.put(ctx, c.v1("datasets", name.Owner, name.Name), map[string]any{"dataset": in}, &out); err != nil {
		return Dataset{}, err
	}
	return out.Dataset, nil
}

func (c *Client) UpdateDataset(ctx context.Context, name FullName, in UpdateDataset) (Dataset, error) {
	var out datasetResponse
	if err := c.post(ctx, c.v1("datasets", name.Owner, name.Name), map[string]any{"dataset": in}, &out, true); err != nil {
		return Dataset{}, err
	}
	return out.Dataset, nil
}

func (c *Client) DeleteDataset(ctx context.Context, id Identifier) error {
	return c.delete(ctx, c.v1(concat([]string{"datasets"}, id.segments())...))
}

type Statistics struct {
	NumComments int `json:"num_comments"`
}

// GetStatistics counts the dataset comments matching filter.
func (c *Client) GetStatistics(ctx context.Context, name FullName, filter json.RawMessage, attrs ...AttributeFilter) (Statistics, error) {
	body := map[string]any{}
	if len(filter) > 0 {
		body["comment_filter"] = filter
	}
	if len(attrs) > 0 {
		body["attribute_filters"] = attrs
	}
	var out struct {
		Statistics Statistics `json:"statistics"`
	}
	if err := c.post(ctx, c.private("datasets", name.Owner, name.Name, "statistics"), body, &out, false); err != nil {
		return Statistics{}, err
	}
	return out.Statistics, nil
}
