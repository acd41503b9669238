package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

type LabellingsPage struct {
	Results []AnnotatedComment `json:"results"`
	After   string             `json:"after,omitempty"`
}

// GetLabellings fetches annotated comments by uid (<source_id>.<comment_id>).
func (c *Client) GetLabellings(ctx context.Context, dataset FullName, uids []string) ([]AnnotatedComment, error) {
	var out LabellingsPage
	u := withQuery(c.private("datasets", dataset.Owner, dataset.Name, "labellings"), idListQuery(uids))
	if err := c.get(ctx, u, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

type LabellingsQuery struct {
	SourceID          string
	ReturnPredictions bool
	After             string
	Limit             int
}

func (c *Client) GetLabellingsPage(ctx context.Context, dataset FullName, q LabellingsQuery) (LabellingsPage, error) {
	v := url.Values{}
	v.Set("source_id", q.SourceID)
	v.Set("return_predictions", strconv.FormatBool(q.ReturnPredictions))
	if q.After != "" {
		v.Set("after", q.After)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	var out LabellingsPage
	u := withQuery(c.private("datasets", dataset.Owner, dataset.Name, "labellings"), v)
	if err := c.get(ctx, u, &out); err != nil {
		return LabellingsPage{}, err
	}
	return out, nil
}

// LabellingsIter pages through the reviewed comments of one source.
type LabellingsIter struct {
	client  *Client
	dataset FullName
	query   LabellingsQuery
	done    bool
}

func (c *Client) Labellings(dataset FullName, sourceID string, returnPredictions bool, pageSize int) *LabellingsIter {
	return &LabellingsIter{
		client:  c,
		dataset: dataset,
		query:   LabellingsQuery{SourceID: sourceID, ReturnPredictions: returnPredictions, Limit: pageSize},
	}
}

func (it *LabellingsIter) Done() bool { return it.done }

func (it *LabellingsIter) Next(ctx context.Context) ([]AnnotatedComment, error) {
	if it.done {
		return nil, nil
	}
	page, err := it.client.GetLabellingsPage(ctx, it.dataset, it.query)
	if err != nil {
		return nil, err
	}
	if len(page.Results) == 0 || page.After == "" {
		it.done = true
		return page.Results, nil
	}
	if page.After == it.query.After {
		it.done = true
		return nil, fmt.Errorf("labellings cursor did not advance past %q", page.After)
	}
	it.query.After = page.After
	return page.Results, nil
}

type updateLabellingRequest struct {
	Labelling *NewLabelling   `json:"labelling,omitempty"`
	Entities  *NewEntities    `json:"entities,omitempty"`
	MoonForms json.RawMessage `json:"moon_forms,omitempty"`
}

func (c *Client) UpdateLabelling(ctx context.Context, dataset FullName, uid string, labelling *NewLabelling, entities *NewEntities, moonForms json.RawMessage) error {
	u := c.private("datasets", dataset.Owner, dataset.Name, "labellings", uid)
	body := updateLabellingRequest{Labelling: labelling, Entities: entities, MoonForms: moonForms}
	return c.post(ctx, u, body, nil, true)
}

type Prediction struct {
	UID      string           `json:"uid"`
	Labels   []PredictedLabel `json:"labels"`
	Entities []Entity         `json:"entities,omitempty"`
}

func (c *Client) GetCommentPredictions(ctx context.Context, dataset FullName, modelVersion int, uids []string) ([]Prediction, error) {
	u := c.v1("datasets", dataset.Owner, dataset.Name, "labellers", strconv.Itoa(modelVersion), "predict-comments")
	body := map[string]any{"threshold": "auto", "uids": uids}
	var out struct {
		Predictions []Prediction `json:"predictions"`
	}
	if err := c.post(ctx, u, body, &out, true); err != nil {
		return nil, err
	}
	return out.Predictions, nil
}

type TimestampRange struct {
	Minimum *time.Time `json:"minimum,omitempty"`
	Maximum *time.Time `json:"maximum,omitempty"`
}

type ReviewedFilter string

const (
	OnlyReviewed   ReviewedFilter = "only_reviewed"
	OnlyUnreviewed ReviewedFilter = "only_unreviewed"
)

type CommentFilter struct {
	Reviewed       ReviewedFilter  `json:"reviewed,omitempty"`
	Timestamp      *TimestampRange `json:"timestamp,omitempty"`
	Sources        []string        `json:"sources,omitempty"`
	UserProperties json.RawMessage `json:"user_properties,omitempty"`
	Messages       *MessagesFilter `json:"messages,omitempty"`
}

type OneOf struct {
	OneOf []string `json:"one_of"`
}

// MessagesFilter keeps comments with a message from one of From, or to one
// of To.
type MessagesFilter struct {
	From *OneOf `json:"from,omitempty"`
	To   *OneOf `json:"to,omitempty"`
}

// ParticipantsFilter returns nil when there is nothing to filter on.
func ParticipantsFilter(senders, recipients []string) *MessagesFilter {
	if len(senders) == 0 && len(recipients) == 0 {
		return nil
	}
	f := &MessagesFilter{}
	if len(senders) > 0 {
		f.From = &OneOf{OneOf: senders}
	}
	if len(recipients) > 0 {
		f.To = &OneOf{OneOf: recipients}
	}
	return f
}

type AttributeFilter struct {
	Attribute string              `json:"attribute"`
	Filter    AttributeFilterKind `json:"filter"`
}

type AttributeFilterKind struct {
	Kind  string   `json:"kind"`
	AnyOf []string `json:"any_of"`
}

// LabelsAnyOf matches comments carrying at least one of the labels.
func LabelsAnyOf(labels []string) AttributeFilter {
	return AttributeFilter{
		Attribute: "labels",
		Filter:    AttributeFilterKind{Kind: "string_any_of", AnyOf: labels},
	}
}

type QueryPage struct {
	Results      []AnnotatedComment `json:"results"`
	Continuation string             `json:"continuation,omitempty"`
}

type queryRequest struct {
	AttributeFilters []AttributeFilter `json:"attribute_filters,omitempty"`
	Continuation     string            `json:"continuation,omitempty"`
	Filter           CommentFilter     `json:"filter"`
	Limit            int               `json:"limit"`
	Order            queryOrder        `json:"order"`
}

type queryOrder struct {
	Kind string `json:"kind"`
}

const defaultQueryLimit = 128

func (c *Client) QueryDataset(ctx context.Context, dataset FullName, filter CommentFilter, continuation string, limit int, attrs ...AttributeFilter) (QueryPage, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	body := queryRequest{
		AttributeFilters: attrs,
		Continuation:     continuation,
		Filter:           filter,
		Limit:            limit,
		Order:            queryOrder{Kind: "recent"},
	}
	var out QueryPage
	if err := c.post(ctx, c.private("datasets", dataset.Owner, dataset.Name, "query"), body, &out, true); err != nil {
		return QueryPage{}, err
	}
	return out, nil
}

// GetRecentComments is not retried: the server may have advanced its cursor.
func (c *Client) GetRecentComments(ctx context.Context, dataset FullName, filter CommentFilter, continuation string, limit int) (QueryPage, error) {
	body := map[string]any{"limit": limit, "filter": filter}
	if continuation != "" {
		body["continuation"] = continuation
	}
	var out QueryPage
	if err := c.post(ctx, c.private("datasets", dataset.Owner, dataset.Name, "recent"), body, &out, false); err != nil {
		return QueryPage{}, err
	}
	return out, nil
}

// QueryIter pages through a dataset query until the continuation runs out.
type QueryIter struct {
	client       *Client
	dataset      FullName
	filter       CommentFilter
	attrs        []AttributeFilter
	continuation string
	done         bool
}

func (c *Client) Query(dataset FullName, filter CommentFilter, attrs ...AttributeFilter) *QueryIter {
	return &QueryIter{client: c, dataset: dataset, filter: filter, attrs: attrs}
}

func (it *QueryIter) Done() bool { return it.done }

func (it *QueryIter) Next(ctx context.Context) ([]AnnotatedComment, error) {
	if it.done {
		return nil, nil
	}
	page, err := it.client.QueryDataset(ctx, it.dataset, it.filter, it.continuation, defaultQueryLimit, it.attrs...)
	if err != nil {
		return nil, err
	}
	if page.Continuation == "" || page.Continuation == it.continuation {
		it.done = true
	}
	it.continuation = page.Continuation
	return page.Results, nil
}

// RecentIter pages through a dataset's most recent comments.
type RecentIter struct {
	client       *Client
	dataset      FullName
	filter       CommentFilter
	limit        int
	continuation string
	done         bool
}

func (c *Client) Recent(dataset FullName, filter CommentFilter, limit int) *RecentIter {
	if limit <= 0 || limit > MaxPageSize {
		limit = defaultQueryLimit
	}
	return &RecentIter{client: c, dataset: dataset, filter: filter, limit: limit}
}

func (it *RecentIter) Done() bool { return it.done }

func (it *RecentIter) Next(ctx context.Context) ([]AnnotatedComment, error) {
	if it.done {
		return nil, nil
	}
	page, err := it.client.GetRecentComments(ctx, it.dataset, it.filter, it.continuation, it.limit)
	if err != nil {
		return nil, err
	}
	if page.Continuation == "" || page.Continuation == it.continuation {
		it.done = true
	}
	it.continuation = page.Continuation
	return page.Results, nil
}
