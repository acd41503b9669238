package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	MaxPageSize             = 256
	DefaultCommentsPageSize = 64
)

type Comment struct {
	ID             string      `json:"id"`
	UID            string      `json:"uid"`
	ThreadID       string      `json:"thread_id,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
	Messages       []Message   `json:"messages"`
	UserProperties PropertyMap `json:"user_properties,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	HasAnnotations *bool       `json:"has_annotations,omitempty"`
}

type NewComment struct {
	ID             string      `json:"id"`
	ThreadID       string      `json:"thread_id,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
	Messages       []Message   `json:"messages"`
	UserProperties PropertyMap `json:"user_properties,omitempty"`
}

type Message struct {
	Body      MessageText  `json:"body"`
	Language  string       `json:"language,omitempty"`
	Subject   *MessageText `json:"subject,omitempty"`
	Signature *MessageText `json:"signature,omitempty"`
	From      string       `json:"from,omitempty"`
	To        []string     `json:"to,omitempty"`
	CC        []string     `json:"cc,omitempty"`
	BCC       []string     `json:"bcc,omitempty"`
	SentAt    *time.Time   `json:"sent_at,omitempty"`
}

type MessageText struct {
	Text           string `json:"text"`
	TranslatedFrom string `json:"translated_from,omitempty"`
}

type PropertyValue struct {
	Text     string
	Number   float64
	IsNumber bool
}

func StringProperty(s string) PropertyValue   { return PropertyValue{Text: s} }
func NumberProperty(f float64) PropertyValue { return PropertyValue{Number: f, IsNumber: true} }

func (v PropertyValue) String() string {
	if v.IsNumber {
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	}
	return v.Text
}

// PropertyMap holds user properties. On the wire every key carries a
// "string:" or "number:" prefix naming its value type.
type PropertyMap map[string]PropertyValue

const (
	stringPropertyPrefix = "string:"
	numberPropertyPrefix = "number:"
)

func (m PropertyMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v.IsNumber {
			out[numberPropertyPrefix+k] = v.Number
			continue
		}
		if strings.TrimSpace(v.Text) == "" {
			continue
		}
		out[stringPropertyPrefix+k] = v.Text
	}
	return json.Marshal(out)
}

func (m *PropertyMap) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*m = PropertyMap{}
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("user properties must be an object: %w", err)
	}
	out := make(PropertyMap, len(raw))
	for key, value := range raw {
		switch {
		case strings.HasPrefix(key, stringPropertyPrefix):
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return fmt.Errorf("user property %q must be a string: %w", key, err)
			}
			out[strings.TrimPrefix(key, stringPropertyPrefix)] = StringProperty(s)
		case strings.HasPrefix(key, numberPropertyPrefix):
			var f float64
			if err := json.Unmarshal(value, &f); err != nil {
				return fmt.Errorf("user property %q must be a number: %w", key, err)
			}
			out[strings.TrimPrefix(key, numberPropertyPrefix)] = NumberProperty(f)
		default:
			return fmt.Errorf("user property full name %q has invalid type prefix", key)
		}
	}
	*m = out
	return nil
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
)

type Label struct {
	Name      string    `json:"name"`
	Sentiment Sentiment `json:"sentiment"`
}

type PredictedLabel struct {
	Name        string   `json:"name"`
	Sentiment   *float64 `json:"sentiment,omitempty"`
	Probability float64  `json:"probability"`
}

type Labelling struct {
	Assigned  []Label          `json:"assigned,omitempty"`
	Dismissed []Label          `json:"dismissed,omitempty"`
	Predicted []PredictedLabel `json:"predicted,omitempty"`
}

func (l *Labelling) reviewed() bool {
	return l != nil && (len(l.Assigned) > 0 || len(l.Dismissed) > 0)
}

type EntitySpan struct {
	ContentPart    string `json:"content_part"`
	MessageIndex   int    `json:"message_index"`
	CharStart      *int   `json:"char_start,omitempty"`
	CharEnd        *int   `json:"char_end,omitempty"`
	UTF16ByteStart int    `json:"utf16_byte_start"`
	UTF16ByteEnd   int    `json:"utf16_byte_end"`
}

type Entity struct {
	Kind           string     `json:"kind"`
	FormattedValue string     `json:"formatted_value"`
	Span           EntitySpan `json:"span"`
}

type Entities struct {
	Assigned  []Entity `json:"assigned,omitempty"`
	Dismissed []Entity `json:"dismissed,omitempty"`
	Predicted []Entity `json:"predicted,omitempty"`
}

func (e *Entities) reviewed() bool {
	return e != nil && (len(e.Assigned) > 0 || len(e.Dismissed) > 0)
}

type AnnotatedComment struct {
	Comment   Comment    `json:"comment"`
	Labelling *Labelling `json:"labelling,omitempty"`
	Entities  *Entities  `json:"entities,omitempty"`
}

func (a AnnotatedComment) HasAnnotations() bool {
	return a.Labelling.reviewed() || a.Entities.reviewed()
}

// WithoutPredictions drops predictions, and whole blocks with nothing
// assigned or dismissed.
func (a AnnotatedComment) WithoutPredictions() AnnotatedComment {
	if a.Labelling.reviewed() {
		l := *a.Labelling
		l.Predicted = nil
		a.Labelling = &l
	} else {
		a.Labelling = nil
	}
	if a.Entities.reviewed() {
		e := *a.Entities
		e.Predicted = nil
		a.Entities = &e
	} else {
		a.Entities = nil
	}
	return a
}

func (a AnnotatedComment) MarshalJSON() ([]byte, error) {
	type plain AnnotatedComment
	out := plain(a)
	if l := out.Labelling; l != nil && len(l.Assigned) == 0 && len(l.Dismissed) == 0 && len(l.Predicted) == 0 {
		out.Labelling = nil
	}
	if e := out.Entities; e != nil && len(e.Assigned) == 0 && len(e.Dismissed) == 0 && len(e.Predicted) == 0 {
		out.Entities = nil
	}
	return json.Marshal(out)
}

type NewLabelling struct {
	Group     string  `json:"group,omitempty"`
	Assigned  []Label `json:"assigned,omitempty"`
	Dismissed []Label `json:"dismissed,omitempty"`
}

type NewEntities struct {
	Assigned  []Entity `json:"assigned,omitempty"`
	Dismissed []Entity `json:"dismissed,omitempty"`
}

// NewAnnotatedComment is one line of an upload file.
type NewAnnotatedComment struct {
	Comment   NewComment      `json:"comment"`
	Labelling *NewLabelling   `json:"labelling,omitempty"`
	Entities  *NewEntities    `json:"entities,omitempty"`
	MoonForms json.RawMessage `json:"moon_forms,omitempty"`
}

func (a NewAnnotatedComment) HasAnnotations() bool {
	hasLabels := a.Labelling != nil && (len(a.Labelling.Assigned) > 0 || len(a.Labelling.Dismissed) > 0)
	hasEntities := a.Entities != nil && (len(a.Entities.Assigned) > 0 || len(a.Entities.Dismissed) > 0)
	return hasLabels || hasEntities || len(a.MoonForms) > 0
}

type CommentsPage struct {
	Comments     []Comment `json:"comments"`
	Continuation string    `json:"continuation,omitempty"`
}

type CommentsQuery struct {
	From  *time.Time
	To    *time.Time
	After string
	Limit int
}

func (q CommentsQuery) values() url.Values {
	v := url.Values{}
	if q.From != nil {
		v.Set("from_timestamp", q.From.UTC().Format(time.RFC3339Nano))
	}
	if q.To != nil {
		v.Set("to_timestamp", q.To.UTC().Format(time.RFC3339Nano))
	}
	if q.After != "" {
		v.Set("after", q.After)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultCommentsPageSize
	}
	v.Set("limit", strconv.Itoa(limit))
	return v
}

func (c *Client) GetCommentsPage(ctx context.Context, source FullName, q CommentsQuery) (CommentsPage, error) {
	u := c.private("sources", source.Owner, source.Name, "comments")
	var out CommentsPage
	if err := c.get(ctx, withQuery(u, q.values()), &out); err != nil {
		return CommentsPage{}, err
	}
	return out, nil
}

func (c *Client) GetComment(ctx context.Context, source FullName, id string) (Comment, error) {
	u := c.v1("sources", source.Owner, source.Name, "comments", id)
	var out struct {
		Comment Comment `json:"comment"`
	}
	if err := c.get(ctx, u, &out); err != nil {
		return Comment{}, err
	}
	return out.Comment, nil
}

// PutComments creates comments. Ids already present in the source fail the
// whole batch.
func (c *Client) PutComments(ctx context.Context, source FullName, comments []NewComment) error {
	u := c.private("sources", source.Owner, source.Name, "comments")
	return c.put(ctx, u, map[string]any{"comments": comments}, nil)
}

type SyncCommentsResponse struct {
	New       int `json:"new"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

func (r *SyncCommentsResponse) Add(o SyncCommentsResponse) {
	r.New += o.New
	r.Updated += o.Updated
	r.Unchanged += o.Unchanged
}

func (c *Client) SyncComments(ctx context.Context, source FullName, comments []NewComment) (SyncCommentsResponse, error) {
	u := c.v1("sources", source.Owner, source.Name, "sync")
	var out SyncCommentsResponse
	if err := c.post(ctx, u, map[string]any{"comments": comments}, &out, true); err != nil {
		return SyncCommentsResponse{}, err
	}
	return out, nil
}

func (c *Client) DeleteComments(ctx context.Context, source FullName, ids []string) error {
	u := c.v1("sources", source.Owner, source.Name, "comments")
	return c.delete(ctx, withQuery(u, idListQuery(ids)))
}

// CommentsIter pages through a source's comments in time order.
type CommentsIter struct {
	client *Client
	source FullName
	query  CommentsQuery
	done   bool
}

func (c *Client) Comments(source FullName, from, to *time.Time, pageSize int) *CommentsIter {
	switch {
	case pageSize <= 0:
		pageSize = DefaultCommentsPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return &CommentsIter{
		client: c,
		source: source,
		query:  CommentsQuery{From: from, To: to, Limit: pageSize},
	}
}

func (it *CommentsIter) Done() bool { return it.done }

func (it *CommentsIter) Next(ctx context.Context) ([]Comment, error) {
	if it.done {
		return nil, nil
	}
	page, err := it.client.GetCommentsPage(ctx, it.source, it.query)
	if err != nil {
		return nil, err
	}
	if page.Continuation == "" {
		it.done = true
	} else {
		// from_timestamp only applies to the first page.
		it.query.From = nil
		it.query.After = page.Continuation
	}
	return page.Comments, nil
}
