package client

import (
	"context"
	"time"
)

const defaultEmailsPageSize = 64

type Bucket struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	TransformTag *string   `json:"transform_tag,omitempty"`
}

func (b Bucket) FullName() FullName { return FullName{Owner: b.Owner, Name: b.Name} }

type NewBucket struct {
	BucketType   string `json:"bucket_type"`
	Title        string `json:"title,omitempty"`
	TransformTag string `json:"transform_tag"`
}

const BucketTypeEmails = "emails"

type bucketResponse struct {
	Bucket Bucket `json:"bucket"`
}

func (c *Client) GetBuckets(ctx context.Context) ([]Bucket, error) {
	var out struct {
		Buckets []Bucket `json:"buckets"`
	}
	if err := c.get(ctx, c.private("buckets"), &out); err != nil {
		return nil, err
	}
	return out.Buckets, nil
}

func (c *Client) GetBucket(ctx context.Context, id Identifier) (Bucket, error) {
	var out bucketResponse
	if err := c.get(ctx, c.private(concat([]string{"buckets"}, id.segments())...), &out); err != nil {
		return Bucket{}, err
	}
	return out.Bucket, nil
}

func (c *Client) CreateBucket(ctx context.Context, name FullName, in NewBucket) (Bucket, error) {
	if in.BucketType == "" {
		in.BucketType = BucketTypeEmails
	}
	var out bucketResponse
	if err := c.put(ctx, c.private("buckets", name.Owner, name.Name), map[string]any{"bucket": in}, &out); err != nil {
		return Bucket{}, err
	}
	return out.Bucket, nil
}

func (c *Client) DeleteBucket(ctx context.Context, id Identifier) error {
	return c.delete(ctx, c.private(concat([]string{"buckets"}, id.segments())...))
}

// Email is a raw message pushed into an emails bucket.
type Email struct {
	ID          string         `json:"id"`
	Mailbox     string         `json:"mailbox,omitempty"`
	Timestamp   *time.Time     `json:"timestamp,omitempty"`
	MIMEContent string         `json:"mime_content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (c *Client) PutEmails(ctx context.Context, bucket FullName, emails []Email) error {
	return c.put(ctx, c.private("buckets", bucket.Owner, bucket.Name, "emails"), map[string]any{"emails": emails}, nil)
}

// BucketCount is exact or a lower bound, depending on the bucket size.
type BucketCount struct {
	Kind  string `json:"kind"`
	Value int64  `json:"value"`
}

func (c BucketCount) Exact() bool { return c.Kind == "exact" }

type BucketStatistics struct {
	Count BucketCount `json:"count"`
}

func (c *Client) GetBucketStatistics(ctx context.Context, bucket FullName) (BucketStatistics, error) {
	var out struct {
		Statistics BucketStatistics `json:"statistics"`
	}
	if err := c.get(ctx, c.private("buckets", bucket.Owner, bucket.Name, "statistics"), &out); err != nil {
		return BucketStatistics{}, err
	}
	return out.Statistics, nil
}

type EmailsPage struct {
	Emails       []Email `json:"emails"`
	Continuation string  `json:"continuation,omitempty"`
}

func (c *Client) GetEmailsPage(ctx context.Context, bucket FullName, continuation string, limit int) (EmailsPage, error) {
	body := map[string]any{"limit": limit}
	if continuation != "" {
		body["continuation"] = continuation
	}
	var out EmailsPage
	if err := c.post(ctx, c.private("buckets", bucket.Owner, bucket.Name, "emails", "iter"), body, &out, true); err != nil {
		return EmailsPage{}, err
	}
	return out, nil
}

// EmailsIter pages through every email stored in a bucket.
type EmailsIter struct {
	client       *Client
	bucket       FullName
	limit        int
	continuation string
	done         bool
}

func (c *Client) Emails(bucket FullName, pageSize int) *EmailsIter {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = defaultEmailsPageSize
	}
	return &EmailsIter{client: c, bucket: bucket, limit: pageSize}
}

func (it *EmailsIter) Done() bool { return it.done }

func (it *EmailsIter) Next(ctx context.Context) ([]Email, error) {
	if it.done {
		return nil, nil
	}
	page, err := it.client.GetEmailsPage(ctx, it.bucket, it.continuation, it.limit)
	if err != nil {
		return nil, err
	}
	if page.Continuation == "" || page.Continuation == it.continuation {
		it.done = true
	}
	it.continuation = page.Continuation
	return page.Emails, nil
}

type KeyedSyncState struct {
	Key          string     `json:"key"`
	Status       string     `json:"status"`
	MailboxName  string     `json:"mailbox_name"`
	FolderID     string     `json:"folder_id"`
	FolderPath   []string   `json:"folder_path"`
	SyncedUntil  *time.Time `json:"synced_until,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// GetKeyedSyncStates only addresses the bucket by id.
func (c *Client) GetKeyedSyncStates(ctx context.Context, bucketID string) ([]KeyedSyncState, error) {
	var out struct {
		States []KeyedSyncState `json:"keyed_sync_states"`
	}
	if err := c.post(ctx, c.private("buckets", "id:"+bucketID, "keyed-sync-states"), map[string]any{}, &out, true); err != nil {
		return nil, err
	}
	return out.States, nil
}
