package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const DefaultEndpoint = "https://reinfer.io"

type TraceEvent struct {
	Stage      string
	Method     string
	URL        string
	StatusCode int
	DurationMs int64
	Request    string
	Response   string
	Error      string
}

type Config struct {
	Endpoint                  string
	Token                     string
	AcceptInvalidCertificates bool
	Proxy                     string
	Timeout                   time.Duration
	UserAgent                 string
	// Retry is nil to disable retries entirely.
	Retry *RetryConfig
}

type Client struct {
	endpoint  *url.URL
	token     string
	userAgent string
	http      *http.Client
	retrier   *Retrier
	trace     func(TraceEvent)
}

const (
	defaultTimeout        = 240 * time.Second
	connectTimeout        = 10 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 120 * time.Second
	expectContinueTimeout = 1 * time.Second
	keepAliveTimeout      = 30 * time.Second
	idleConnTimeout       = 90 * time.Second
	maxIdleConns          = 100
	maxIdleConnsPerHost   = 10
	traceBodyLimit        = 2 << 20
)

func ParseEndpoint(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrBadEndpoint, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w %q: expected an http(s) URL", ErrBadEndpoint, raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	endpoint, err := ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	proxy := http.ProxyFromEnvironment
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", cfg.Proxy, err)
		}
		proxy = http.ProxyURL(proxyURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: keepAliveTimeout,
	}
	transport := &http.Transport{
		Proxy:                 proxy,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
		IdleConnTimeout:       idleConnTimeout,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxIdleConnsPerHost,
	}
	if cfg.AcceptInvalidCertificates {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	c := &Client{
		endpoint:  endpoint,
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Transport: transport, Timeout: timeout},
	}
	if cfg.Retry != nil {
		c.retrier = NewRetrier(*cfg.Retry)
	}
	return c, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

func (c *Client) SetTrace(fn func(TraceEvent)) {
	c.trace = fn
	if c.retrier != nil {
		c.retrier.onRetry = func(attempt int, wait time.Duration, reason string) {
			c.emitTrace(TraceEvent{
				Stage:      "retry",
				DurationMs: wait.Milliseconds(),
				Error:      reason,
				Request:    fmt.Sprintf(`{"attempt":%d,"next_attempt":%d}`, attempt, attempt+1),
			})
		}
	}
}

func (c *Client) emitTrace(ev TraceEvent) {
	if c.trace != nil {
		c.trace(ev)
	}
}

func traceBody(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		if len(b) > traceBodyLimit {
			return string(b[:traceBodyLimit]) + "..."
		}
		return string(b)
	}
	sum := sha256.Sum256(b)
	return fmt.Sprintf("<binary bytes=%d sha256=%s>", len(b), hex.EncodeToString(sum[:]))
}

// url joins escaped path segments onto the endpoint.
func (c *Client) url(segments ...string) *url.URL {
	u := *c.endpoint
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u.Path = c.endpoint.Path + "/" + strings.Join(segments, "/")
	u.RawPath = c.endpoint.EscapedPath() + "/" + strings.Join(escaped, "/")
	return &u
}

func withQuery(u *url.URL, q url.Values) *url.URL {
	out := *u
	out.RawQuery = q.Encode()
	return &out
}

func idListQuery(ids []string) url.Values {
	q := url.Values{}
	for _, id := range ids {
		q.Add("id", id)
	}
	return q
}

func (c *Client) get(ctx context.Context, u *url.URL, out any) error {
	return c.send(ctx, http.MethodGet, u, nil, true, out)
}

func (c *Client) put(ctx context.Context, u *url.URL, in, out any) error {
	return c.send(ctx, http.MethodPut, u, in, true, out)
}

// post retries only when the caller marks the request as idempotent.
func (c *Client) post(ctx context.Context, u *url.URL, in, out any, idempotent bool) error {
	return c.send(ctx, http.MethodPost, u, in, idempotent, out)
}

func (c *Client) delete(ctx context.Context, u *url.URL) error {
	return c.send(ctx, http.MethodDelete, u, nil, true, nil)
}

func (c *Client) send(ctx context.Context, method string, u *url.URL, in any, retry bool, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEncodeRequest, err)
		}
		payload = b
	}
	target := u.String()
	var start time.Time
	once := func() (*http.Response, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Accept-Encoding", acceptEncoding)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		c.emitTrace(TraceEvent{
			Stage:   "request",
			Method:  method,
			URL:     target,
			Request: traceBody(payload),
		})
		start = time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			c.emitTrace(TraceEvent{
				Stage:      "error",
				Method:     method,
				URL:        target,
				DurationMs: time.Since(start).Milliseconds(),
				Error:      err.Error(),
			})
		}
		return resp, err
	}

	var (
		resp     *http.Response
		attempts = 1
		err      error
	)
	if retry && c.retrier != nil {
		resp, attempts, err = c.retrier.Do(ctx, once)
	} else {
		resp, err = once()
	}
	if err != nil {
		return &RequestError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	reader, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return &ProtocolError{StatusCode: resp.StatusCode, Err: err}
	}
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		return &RequestError{Method: method, URL: target, Err: err}
	}
	c.emitTrace(TraceEvent{
		Stage:      "response",
		Method:     method,
		URL:        target,
		StatusCode: resp.StatusCode,
		DurationMs: time.Since(start).Milliseconds(),
		Request:    traceBody(payload),
		Response:   traceBody(body),
	})

	// A retried delete may already have gone through on an earlier attempt.
	if method == http.MethodDelete && resp.StatusCode == http.StatusNotFound && attempts > 1 {
		return nil
	}
	return parseEnvelope(resp.StatusCode, body, out)
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// parseEnvelope checks the status field every response carries and decodes
// successful bodies into out.
func parseEnvelope(statusCode int, body []byte, out any) error {
	success := statusCode >= 200 && statusCode < 300
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &ProtocolError{StatusCode: statusCode, Message: excerpt(body), Err: err}
	}
	switch env.Status {
	case "ok":
		if !success {
			return &ProtocolError{StatusCode: statusCode}
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &ProtocolError{StatusCode: statusCode, Message: "could not decode response", Err: err}
		}
		return nil
	case "error":
		if success {
			return &ProtocolError{StatusCode: statusCode, Message: env.Message}
		}
		return &APIError{StatusCode: statusCode, Message: env.Message}
	default:
		return &ProtocolError{StatusCode: statusCode, Message: fmt.Sprintf("unexpected status %q", env.Status)}
	}
}

const maxExcerpt = 200

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= maxExcerpt {
		return s
	}
	cut := maxExcerpt
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func (c *Client) v1(segments ...string) *url.URL {
	return c.url(append([]string{"api", "v1"}, segments...)...)
}

func (c *Client) private(segments ...string) *url.URL {
	return c.url(append([]string{"api", "_private"}, segments...)...)
}

func concat(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
