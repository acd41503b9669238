package client

import (
	"context"
	"time"
)

type AuditEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	ActorUserID   string    `json:"actor_user_id"`
	ActorTenantID string    `json:"actor_tenant_id"`
	DatasetIDs    []string  `json:"dataset_ids,omitempty"`
	ProjectIDs    []string  `json:"project_ids,omitempty"`
	TenantIDs     []string  `json:"tenant_ids"`
}

type auditDataset struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"project_id"`
}

type auditProject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type auditTenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type auditUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type AuditQueryResponse struct {
	AuditEvents  []AuditEvent   `json:"audit_events"`
	Datasets     []auditDataset `json:"datasets"`
	Projects     []auditProject `json:"projects"`
	Tenants      []auditTenant  `json:"tenants"`
	Users        []auditUser    `json:"users"`
	Continuation string         `json:"continuation,omitempty"`
}

// PrintableAuditEvent has ids resolved to names. Ids missing from the
// lookup tables are kept as they are.
type PrintableAuditEvent struct {
	EventID         string    `json:"event_id"`
	EventType       string    `json:"event_type"`
	Timestamp       time.Time `json:"timestamp"`
	ActorEmail      string    `json:"actor_email"`
	ActorTenantName string    `json:"actor_tenant_name"`
	DatasetNames    []string  `json:"dataset_names"`
	ProjectNames    []string  `json:"project_names"`
	TenantNames     []string  `json:"tenant_names"`
}

func (r AuditQueryResponse) Printable() []PrintableAuditEvent {
	users := make(map[string]string, len(r.Users))
	for _, u := range r.Users {
		users[u.ID] = u.Email
	}
	tenants := make(map[string]string, len(r.Tenants))
	for _, t := range r.Tenants {
		tenants[t.ID] = t.Name
	}
	datasets := make(map[string]string, len(r.Datasets))
	for _, d := range r.Datasets {
		datasets[d.ID] = d.Name
	}
	projects := make(map[string]string, len(r.Projects))
	for _, p := range r.Projects {
		projects[p.ID] = p.Name
	}
	lookup := func(m map[string]string, id string) string {
		if name, ok := m[id]; ok {
			return name
		}
		return id
	}
	resolve := func(m map[string]string, ids []string) []string {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			out = append(out, lookup(m, id))
		}
		return out
	}
	out := make([]PrintableAuditEvent, 0, len(r.AuditEvents))
	for _, ev := range r.AuditEvents {
		out = append(out, PrintableAuditEvent{
			EventID:         ev.EventID,
			EventType:       ev.EventType,
			Timestamp:       ev.Timestamp,
			ActorEmail:      lookup(users, ev.ActorUserID),
			ActorTenantName: lookup(tenants, ev.ActorTenantID),
			DatasetNames:    resolve(datasets, ev.DatasetIDs),
			ProjectNames:    resolve(projects, ev.ProjectIDs),
			TenantNames:     resolve(tenants, ev.TenantIDs),
		})
	}
	return out
}

func (c *Client) QueryAuditEvents(ctx context.Context, timestamp TimestampRange, continuation string) (AuditQueryResponse, error) {
	body := map[string]any{"filter": map[string]any{"timestamp": timestamp}}
	if continuation != "" {
		body["continuation"] = continuation
	}
	var out AuditQueryResponse
	if err := c.post(ctx, c.v1("audit_events", "query"), body, &out, false); err != nil {
		return AuditQueryResponse{}, err
	}
	return out, nil
}

// AuditEventsIter pages through audit events in a time window.
type AuditEventsIter struct {
	client       *Client
	timestamp    TimestampRange
	continuation string
	done         bool
}

func (c *Client) AuditEvents(minimum, maximum *time.Time) *AuditEventsIter {
	return &AuditEventsIter{client: c, timestamp: TimestampRange{Minimum: minimum, Maximum: maximum}}
}

func (it *AuditEventsIter) Done() bool { return it.done }

func (it *AuditEventsIter) Next(ctx context.Context) ([]PrintableAuditEvent, error) {
	if it.done {
		return nil, nil
	}
	resp, err := it.client.QueryAuditEvents(ctx, it.timestamp, it.continuation)
	if err != nil {
		return nil, err
	}
	if resp.Continuation == "" || resp.Continuation == it.continuation {
		it.done = true
	}
	it.continuation = resp.Continuation
	return resp.Printable(), nil
}
