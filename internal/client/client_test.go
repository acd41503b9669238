package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func newResp(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(t *testing.T, rt roundTripFunc, retry *RetryConfig) *Client {
	t.Helper()
	c, err := New(Config{Endpoint: "http://x", Token: "tok", Retry: retry})
	if err != nil {
		t.Fatal(err)
	}
	c.http = &http.Client{Transport: rt}
	return c
}

func TestTraceBody(t *testing.T) {
	if got := traceBody(nil); got != "" {
		t.Fatalf("got=%q", got)
	}
	if got := traceBody([]byte(`{"a":1}`)); got != `{"a":1}` {
		t.Fatalf("got=%q", got)
	}
	if got := traceBody([]byte{0xff, 0x00, 0x01}); !strings.Contains(got, "<binary bytes=3 sha256=") {
		t.Fatalf("got=%q", got)
	}
}

func TestParseEndpoint(t *testing.T) {
	u, err := ParseEndpoint("https://reinfer.io/")
	if err != nil || u.String() != "https://reinfer.io" {
		t.Fatalf("u=%v err=%v", u, err)
	}
	for _, bad := range []string{"", "reinfer.io", "ftp://x", "http://"} {
		if _, err := ParseEndpoint(bad); !errors.Is(err, ErrBadEndpoint) {
			t.Fatalf("%q: err=%v, want ErrBadEndpoint", bad, err)
		}
	}
	if _, err := New(Config{Endpoint: "https://x", Proxy: "://bad"}); err == nil {
		t.Fatal("expected invalid proxy error")
	}
}

func TestParseEnvelope(t *testing.T) {
	var out struct {
		Value int `json:"value"`
	}
	if err := parseEnvelope(200, []byte(`{"status":"ok","value":3}`), &out); err != nil || out.Value != 3 {
		t.Fatalf("value=%d err=%v", out.Value, err)
	}

	var protoErr *ProtocolError
	if err := parseEnvelope(500, []byte(`{"status":"ok"}`), nil); !errors.As(err, &protoErr) || protoErr.StatusCode != 500 {
		t.Fatalf("ok body with 500: %v", err)
	}
	if err := parseEnvelope(200, []byte(`{"status":"error","message":"odd"}`), nil); !errors.As(err, &protoErr) || protoErr.Message != "odd" {
		t.Fatalf("error body with 200: %v", err)
	}

	var apiErr *APIError
	err := parseEnvelope(404, []byte(`{"status":"error","message":"not found"}`), nil)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 || apiErr.Message != "not found" {
		t.Fatalf("error body with 404: %v", err)
	}
	if !IsStatus(err, 404) || IsStatus(err, 400) {
		t.Fatal("IsStatus mismatch")
	}
	if !strings.Contains(err.Error(), "404 Not Found") {
		t.Fatalf("message=%q", err.Error())
	}

	if err := parseEnvelope(502, []byte("<html>bad gateway</html>"), nil); !errors.As(err, &protoErr) || !strings.Contains(protoErr.Message, "bad gateway") {
		t.Fatalf("html body: %v", err)
	}
	if err := parseEnvelope(200, []byte(`{"status":"maybe"}`), nil); !errors.As(err, &protoErr) {
		t.Fatalf("unknown status: %v", err)
	}
}

func TestProtocolErrorExcerptKeepsRunesWhole(t *testing.T) {
	// 'é' is two bytes, so byte 200 falls inside a rune at odd offsets.
	body := "x" + strings.Repeat("é", 150)
	var protoErr *ProtocolError
	if err := parseEnvelope(502, []byte(body), nil); !errors.As(err, &protoErr) {
		t.Fatalf("err=%v", err)
	}
	msg := protoErr.Message
	if !utf8.ValidString(msg) || !strings.HasSuffix(msg, "...") {
		t.Fatalf("message=%q", msg)
	}
	if n := len(strings.TrimSuffix(msg, "...")); n > maxExcerpt || n < maxExcerpt-utf8.UTFMax {
		t.Fatalf("excerpt is %d bytes", n)
	}
}

func TestRetryableErrors(t *testing.T) {
	if isRetryableRequestErr(nil) {
		t.Fatal("nil should not be retryable")
	}
	if !isRetryableRequestErr(io.EOF) {
		t.Fatal("EOF should be retryable")
	}
	if !isRetryableRequestErr(&net.DNSError{IsTimeout: true}) {
		t.Fatal("timeout net error should be retryable")
	}
	if !isRetryableRequestErr(errors.New("connection refused")) {
		t.Fatal("message-based retry expected")
	}
	if isRetryableRequestErr(errors.New("permission denied")) {
		t.Fatal("non-retry message should be false")
	}
	if isRetryableRequestErr(context.Canceled) {
		t.Fatal("cancellation should not be retried")
	}

	for _, code := range []int{429, 500, 502, 503, 504} {
		if !IsRetryable(&APIError{StatusCode: code}) {
			t.Fatalf("status %d should be retryable", code)
		}
	}
	if IsRetryable(&APIError{StatusCode: 400}) {
		t.Fatal("400 should not be retryable")
	}
	reqErr := &RequestError{Method: "GET", URL: "http://x", Err: &net.DNSError{IsTimeout: true}}
	if !IsRetryable(reqErr) || !IsTimeout(fmt.Errorf("wrapped: %w", reqErr)) {
		t.Fatal("timeout request error should be retryable and a timeout")
	}
}

func TestDecodeBody(t *testing.T) {
	const payload = `{"status":"ok","n":1}`

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(payload))
	_ = gw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write([]byte(payload))
	_ = bw.Close()

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	zs := enc.EncodeAll([]byte(payload), nil)
	_ = enc.Close()

	cases := map[string][]byte{
		"":         []byte(payload),
		"identity": []byte(payload),
		"gzip":     gz.Bytes(),
		"br":       br.Bytes(),
		"zstd":     zs,
	}
	for encoding, body := range cases {
		rc, err := decodeBody(encoding, bytes.NewReader(body))
		if err != nil {
			t.Fatalf("%q: %v", encoding, err)
		}
		got, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil || string(got) != payload {
			t.Fatalf("%q: got=%q err=%v", encoding, got, err)
		}
	}
	if _, err := decodeBody("deflate", strings.NewReader("")); err == nil {
		t.Fatal("expected unsupported encoding error")
	}
}

func TestSendDecodesCompressedResponse(t *testing.T) {
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(`{"status":"ok","user":{"id":"abc","email":"a@b.c"}}`))
	_ = gw.Close()

	var gotAccept, gotAuth string
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		gotAccept = req.Header.Get("Accept-Encoding")
		gotAuth = req.Header.Get("Authorization")
		resp := newResp(200, "")
		resp.Body = io.NopCloser(bytes.NewReader(gz.Bytes()))
		resp.Header.Set("Content-Encoding", "gzip")
		return resp, nil
	}, nil)
	user, err := c.GetCurrentUser(context.Background())
	if err != nil || user.Email != "a@b.c" {
		t.Fatalf("user=%+v err=%v", user, err)
	}
	if gotAccept != "zstd, br, gzip" {
		t.Fatalf("Accept-Encoding=%q", gotAccept)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("Authorization=%q", gotAuth)
	}
}

func TestSendTransportErrorAndTrace(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return nil, &net.DNSError{IsTimeout: true}
	}, nil)
	var stages []string
	c.SetTrace(func(ev TraceEvent) { stages = append(stages, ev.Stage) })
	_, err := c.GetSources(context.Background())
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Method != http.MethodGet || !IsTimeout(err) {
		t.Fatalf("err=%v", err)
	}
	if strings.Join(stages, ",") != "request,error" {
		t.Fatalf("stages=%v", stages)
	}
}

func TestDeleteNotFoundAfterRetryIsSuccess(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return newResp(503, `{"status":"error","message":"busy"}`), nil
		}
		return newResp(404, `{"status":"error","message":"gone"}`), nil
	}, &RetryConfig{Strategy: RetryAlways, MaxRetryCount: 2})
	if err := c.DeleteUser(context.Background(), "abc"); err != nil {
		t.Fatalf("DeleteUser err=%v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls=%d want=2", calls.Load())
	}

	calls.Store(0)
	c.retrier = NewRetrier(RetryConfig{Strategy: RetryAlways, MaxRetryCount: 2})
	c.http = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return newResp(404, `{"status":"error","message":"gone"}`), nil
	})}
	if err := c.DeleteUser(context.Background(), "abc"); !IsStatus(err, 404) {
		t.Fatalf("first-attempt 404 should fail, got %v", err)
	}
}

func TestPostIsRetriedOnlyWhenIdempotent(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return newResp(500, `{"status":"error","message":"boom"}`), nil
	}, &RetryConfig{Strategy: RetryAlways, MaxRetryCount: 2})
	ctx := context.Background()
	name := FullName{Owner: "o", Name: "s"}

	if _, err := c.SyncComments(ctx, name, nil); !IsStatus(err, 500) {
		t.Fatalf("err=%v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("idempotent post calls=%d want=3", calls.Load())
	}

	calls.Store(0)
	if _, err := c.FetchStream(ctx, StreamFullName{Dataset: name, Stream: "x"}, 16); !IsStatus(err, 500) {
		t.Fatalf("err=%v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("non-idempotent post calls=%d want=1", calls.Load())
	}
}

func TestEndpointRouting(t *testing.T) {
	type seen struct {
		method string
		path   string
		query  string
		body   string
	}
	var last seen
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		last = seen{method: r.Method, path: r.URL.EscapedPath(), query: r.URL.RawQuery, body: string(b)}
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	defer ts.Close()

	c, err := New(Config{Endpoint: ts.URL, Token: "tok"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	src := FullName{Owner: "acme", Name: "emails"}
	ds := FullName{Owner: "acme", Name: "triage"}
	stream := StreamFullName{Dataset: ds, Stream: "urgent"}
	from := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	cases := []struct {
		name   string
		call   func() error
		method string
		path   string
		query  string
		body   string
	}{
		{"sources", func() error { _, err := c.GetSources(ctx); return err }, "GET", "/api/v1/sources", "", ""},
		{"source by id", func() error { _, err := c.GetSource(ctx, Identifier{ID: "abc123"}); return err }, "GET", "/api/v1/sources/id:abc123", "", ""},
		{"source by name", func() error { _, err := c.GetSource(ctx, Identifier{Name: src}); return err }, "GET", "/api/v1/sources/acme/emails", "", ""},
		{"create source", func() error { _, err := c.CreateSource(ctx, src, NewSource{Title: "T"}); return err }, "PUT", "/api/v1/sources/acme/emails", "", `{"source":{"title":"T"}}`},
		{"update source", func() error { _, err := c.UpdateSource(ctx, src, UpdateSource{}); return err }, "POST", "/api/v1/sources/acme/emails", "", `{"source":{}}`},
		{"delete source", func() error { return c.DeleteSource(ctx, "abc") }, "DELETE", "/api/v1/sources/id:abc", "", ""},
		{"comments page", func() error {
			_, err := c.GetCommentsPage(ctx, src, CommentsQuery{From: &from, Limit: 10})
			return err
		}, "GET", "/api/_private/sources/acme/emails/comments", "from_timestamp=2024-01-02T03%3A04%3A05Z&limit=10", ""},
		{"comment", func() error { _, err := c.GetComment(ctx, src, "c 1"); return err }, "GET", "/api/v1/sources/acme/emails/comments/c%201", "", ""},
		{"put comments", func() error { return c.PutComments(ctx, src, []NewComment{}) }, "PUT", "/api/_private/sources/acme/emails/comments", "", `{"comments":[]}`},
		{"sync comments", func() error { _, err := c.SyncComments(ctx, src, []NewComment{}); return err }, "POST", "/api/v1/sources/acme/emails/sync", "", `{"comments":[]}`},
		{"delete comments", func() error { return c.DeleteComments(ctx, src, []string{"a", "b"}) }, "DELETE", "/api/v1/sources/acme/emails/comments", "id=a&id=b", ""},
		{"datasets", func() error { _, err := c.GetDatasets(ctx); return err }, "GET", "/api/v1/datasets", "", ""},
		{"delete dataset", func() error { return c.DeleteDataset(ctx, Identifier{ID: "ff"}) }, "DELETE", "/api/v1/datasets/id:ff", "", ""},
		{"labellings", func() error { _, err := c.GetLabellings(ctx, ds, []string{"s.1"}); return err }, "GET", "/api/_private/datasets/acme/triage/labellings", "id=s.1", ""},
		{"update labelling", func() error { return c.UpdateLabelling(ctx, ds, "s.1", &NewLabelling{}, nil, nil) }, "POST", "/api/_private/datasets/acme/triage/labellings/s.1", "", `{"labelling":{}}`},
		{"predictions", func() error { _, err := c.GetCommentPredictions(ctx, ds, 3, []string{"s.1"}); return err }, "POST", "/api/v1/datasets/acme/triage/labellers/3/predict-comments", "", `{"threshold":"auto","uids":["s.1"]}`},
		{"streams", func() error { _, err := c.GetStreams(ctx, ds); return err }, "GET", "/api/v1/datasets/acme/triage/streams", "", ""},
		{"stream fetch", func() error { _, err := c.FetchStream(ctx, stream, 16); return err }, "POST", "/api/v1/datasets/acme/triage/streams/urgent/fetch", "", `{"size":16}`},
		{"stream advance", func() error { return c.AdvanceStream(ctx, stream, "seq") }, "POST", "/api/v1/datasets/acme/triage/streams/urgent/advance", "", `{"sequence_id":"seq"}`},
		{"stream reset", func() error { return c.ResetStream(ctx, stream, from) }, "POST", "/api/v1/datasets/acme/triage/streams/urgent/reset", "", `{"to_comment_created_at":"2024-01-02T03:04:05Z"}`},
		{"stream exceptions", func() error {
			return c.TagStreamExceptions(ctx, stream, []StreamException{{Metadata: StreamExceptionMetadata{Type: "bad"}, UID: "s.1"}})
		}, "PUT", "/api/v1/datasets/acme/triage/streams/urgent/exceptions", "", `{"exceptions":[{"metadata":{"type":"bad"},"uid":"s.1"}]}`},
		{"triggers", func() error { _, err := c.GetTriggers(ctx, ds); return err }, "GET", "/api/v1/datasets/acme/triage/triggers", "", ""},
		{"trigger fetch", func() error { _, err := c.FetchTrigger(ctx, stream, 16); return err }, "POST", "/api/v1/datasets/acme/triage/triggers/urgent/fetch", "", `{"size":16}`},
		{"trigger advance", func() error { return c.AdvanceTrigger(ctx, stream, "seq") }, "POST", "/api/v1/datasets/acme/triage/triggers/urgent/advance", "", `{"sequence_id":"seq"}`},
		{"trigger exceptions", func() error {
			return c.TagTriggerExceptions(ctx, stream, []StreamException{{Metadata: StreamExceptionMetadata{Type: "bad"}, UID: "s.1"}})
		}, "PUT", "/api/v1/datasets/acme/triage/triggers/urgent/exceptions", "", `{"exceptions":[{"metadata":{"type":"bad"},"uid":"s.1"}]}`},
		{"create stream", func() error {
			_, err := c.CreateStream(ctx, ds, NewStream{"name": json.RawMessage(`"urgent"`)})
			return err
		}, "PUT", "/api/v1/datasets/acme/triage/streams", "", `{"stream":{"name":"urgent"}}`},
		{"recent", func() error { _, err := c.GetRecentComments(ctx, ds, CommentFilter{}, "", 2); return err }, "POST", "/api/_private/datasets/acme/triage/recent", "", `{"filter":{},"limit":2}`},
		{"statistics by label", func() error {
			_, err := c.GetStatistics(ctx, ds, nil, LabelsAnyOf([]string{"Billing"}))
			return err
		}, "POST", "/api/_private/datasets/acme/triage/statistics", "", `{"attribute_filters":[{"attribute":"labels","filter":{"kind":"string_any_of","any_of":["Billing"]}}]}`},
		{"buckets", func() error { _, err := c.GetBuckets(ctx); return err }, "GET", "/api/_private/buckets", "", ""},
		{"create bucket", func() error {
			_, err := c.CreateBucket(ctx, FullName{Owner: "acme", Name: "inbox"}, NewBucket{TransformTag: "generic.0.CONVKER5"})
			return err
		}, "PUT", "/api/_private/buckets/acme/inbox", "", `{"bucket":{"bucket_type":"emails","transform_tag":"generic.0.CONVKER5"}}`},
		{"bucket statistics", func() error {
			_, err := c.GetBucketStatistics(ctx, FullName{Owner: "acme", Name: "inbox"})
			return err
		}, "GET", "/api/_private/buckets/acme/inbox/statistics", "", ""},
		{"emails page", func() error {
			_, err := c.GetEmailsPage(ctx, FullName{Owner: "acme", Name: "inbox"}, "k", 64)
			return err
		}, "POST", "/api/_private/buckets/acme/inbox/emails/iter", "", `{"continuation":"k","limit":64}`},
		{"keyed sync states", func() error { _, err := c.GetKeyedSyncStates(ctx, "b0"); return err }, "POST", "/api/_private/buckets/id:b0/keyed-sync-states", "", `{}`},
		{"users", func() error { _, err := c.GetUsers(ctx); return err }, "GET", "/api/_private/users", "", ""},
		{"welcome email", func() error { return c.SendWelcomeEmail(ctx, "abc") }, "POST", "/api/_private/users/abc/welcome-email", "", `{}`},
		{"current user", func() error { _, err := c.GetCurrentUser(ctx); return err }, "GET", "/auth/user", "", ""},
		{"refresh permissions", func() error { return c.RefreshUserPermissions(ctx) }, "POST", "/auth/refresh-user-permissions", "", `{}`},
		{"create project", func() error { _, err := c.CreateProject(ctx, "p", NewProject{}, nil); return err }, "PUT", "/api/_private/projects/p", "", `{"project":{},"user_ids":[]}`},
		{"delete project force", func() error { return c.DeleteProject(ctx, "p", true) }, "DELETE", "/api/_private/projects/p", "force=true", ""},
		{"delete project", func() error { return c.DeleteProject(ctx, "p", false) }, "DELETE", "/api/_private/projects/p", "", ""},
		{"quotas", func() error { _, err := c.GetQuotas(ctx); return err }, "GET", "/api/_private/quotas", "", ""},
		{"integrations", func() error { _, err := c.GetIntegrations(ctx); return err }, "GET", "/api/_private/integrations", "", ""},
		{"set quota", func() error {
			return c.SetQuota(ctx, "42", "sources", NewQuota{HardLimit: 10})
		}, "POST", "/api/_private/quotas/42/sources", "", `{"hard_limit":10}`},
		{"integration", func() error { _, err := c.GetIntegration(ctx, FullName{Owner: "acme", Name: "mail"}); return err }, "GET", "/api/_private/integrations/acme/mail", "", ""},
		{"create integration", func() error {
			_, err := c.CreateIntegration(ctx, FullName{Owner: "acme", Name: "mail"}, NewIntegration{Title: "Mail", Configuration: json.RawMessage(`{"a":1}`)})
			return err
		}, "PUT", "/api/_private/integrations/acme/mail", "", `{"integration":{"title":"Mail","configuration":{"a":1}}}`},
		{"update integration", func() error {
			on := false
			_, err := c.UpdateIntegration(ctx, FullName{Owner: "acme", Name: "mail"}, NewIntegration{Enabled: &on, Configuration: json.RawMessage(`{}`)})
			return err
		}, "POST", "/api/_private/integrations/acme/mail", "", `{"integration":{"enabled":false,"configuration":{}}}`},
		{"alerts", func() error { _, err := c.GetAlerts(ctx); return err }, "GET", "/api/_private/alerts", "", ""},
		{"audit", func() error { _, err := c.QueryAuditEvents(ctx, TimestampRange{}, "next"); return err }, "POST", "/api/v1/audit_events/query", "", `{"continuation":"next","filter":{"timestamp":{}}}`},
	}
	for _, tc := range cases {
		last = seen{}
		if err := tc.call(); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if last.method != tc.method || last.path != tc.path || last.query != tc.query {
			t.Fatalf("%s: got %s %s?%s want %s %s?%s", tc.name, last.method, last.path, last.query, tc.method, tc.path, tc.query)
		}
		if tc.body != "" && last.body != tc.body {
			t.Fatalf("%s: body=%s want=%s", tc.name, last.body, tc.body)
		}
	}
}
