package client

import (
	"context"
	"slices"
	"strings"
)

type Quota struct {
	Kind            string `json:"quota_kind"`
	HardLimit       int64  `json:"hard_limit"`
	CurrentMaxUsage int64  `json:"current_max_usage"`
}

// QuotaKinds lists the kinds a tenant quota can be set for.
var QuotaKinds = []string{
	"sources",
	"sources_per_dataset",
	"datasets",
	"datasets_per_source",
	"labels_per_dataset",
	"entities_per_dataset",
	"comments",
	"comments_per_source",
	"comments_in_ixp_designtime",
	"comments_in_ixp_runtime",
	"reviewed_comments_per_dataset",
	"integrations",
	"mailboxes_per_integration",
	"triggers",
	"triggers_per_dataset",
	"users",
	"alerts",
	"buckets",
	"projects",
	"pinned_models",
	"extraction_predictions",
}

func ParseQuotaKind(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !slices.Contains(QuotaKinds, s) {
		return "", &IdentifierError{Kind: "quota kind", Value: s}
	}
	return s, nil
}

type NewQuota struct {
	HardLimit        int64  `json:"hard_limit"`
	AutoIncreaseUpTo *int64 `json:"auto_increase_up_to,omitempty"`
}

func (c *Client) GetQuotas(ctx context.Context) ([]Quota, error) {
	var out struct {
		Quotas []Quota `json:"quotas"`
	}
	if err := c.get(ctx, c.private("quotas"), &out); err != nil {
		return nil, err
	}
	return out.Quotas, nil
}

// SetQuota overrides one limit of a tenant.
func (c *Client) SetQuota(ctx context.Context, tenantID, kind string, in NewQuota) error {
	return c.post(ctx, c.private("quotas", tenantID, kind), in, nil, true)
}
