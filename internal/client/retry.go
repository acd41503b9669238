package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

type RetryStrategy int

const (
	// RetryAutomatic never retries the first request issued by a client, so
	// an unreachable endpoint fails fast, but retries every later one.
	RetryAutomatic RetryStrategy = iota
	RetryAlways
)

type RetryConfig struct {
	Strategy      RetryStrategy
	MaxRetryCount int
	BaseWait      time.Duration
	// Wait before retry i is BaseWait * BackoffFactor^i.
	BackoffFactor float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Strategy:      RetryAutomatic,
		MaxRetryCount: 5,
		BaseWait:      5 * time.Second,
		BackoffFactor: 2,
	}
}

func (c RetryConfig) wait(i int) time.Duration {
	return time.Duration(float64(c.BaseWait) * math.Pow(c.BackoffFactor, float64(i)))
}

type Retrier struct {
	cfg            RetryConfig
	isFirstRequest atomic.Bool
	onRetry        func(attempt int, wait time.Duration, reason string)
}

func NewRetrier(cfg RetryConfig) *Retrier {
	r := &Retrier{cfg: cfg}
	r.isFirstRequest.Store(true)
	return r
}

// Do sends a request, retrying on 5xx, 429 and transport failures. It returns
// the final response together with the number of attempts made.
func (r *Retrier) Do(ctx context.Context, send func() (*http.Response, error)) (*http.Response, int, error) {
	if r.isFirstRequest.Swap(false) && r.cfg.Strategy == RetryAutomatic {
		resp, err := send()
		return resp, 1, err
	}

	attempts := 0
	for i := 0; i < r.cfg.MaxRetryCount; i++ {
		attempts++
		resp, err := send()
		var reason string
		switch {
		case err == nil && shouldRetryStatus(resp.StatusCode):
			reason = resp.Status
			if resp.Request != nil {
				reason += " for " + resp.Request.URL.String()
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		case err != nil && isRetryableRequestErr(err):
			reason = err.Error()
		default:
			return resp, attempts, err
		}
		wait := r.cfg.wait(i)
		slog.WarnContext(ctx, "retrying request", "reason", reason, "wait", wait)
		if r.onRetry != nil {
			r.onRetry(attempts, wait, reason)
		}
		if err := sleepContext(ctx, wait); err != nil {
			return nil, attempts, err
		}
	}
	attempts++
	resp, err := send()
	return resp, attempts, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryCall runs fn up to three times, waiting 5s then 10s between
// attempts, as long as the failure looks transient.
func RetryCall(ctx context.Context, fn func(context.Context) error) error {
	return retryCall(ctx, RetryConfig{MaxRetryCount: 3, BaseWait: 5 * time.Second, BackoffFactor: 2}, fn)
}

func retryCall(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !IsRetryable(err) || attempt >= cfg.MaxRetryCount-1 {
			return err
		}
		wait := cfg.wait(attempt)
		slog.WarnContext(ctx, "retrying request", "err", err, "wait", wait)
		if err := sleepContext(ctx, wait); err != nil {
			return err
		}
	}
}

func shouldRetryStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

func isRetryableRequestErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	retryable := []string{
		"timeout",
		"tls handshake",
		"connection reset",
		"connection refused",
		"broken pipe",
		"eof",
	}
	for _, key := range retryable {
		if strings.Contains(msg, key) {
			return true
		}
	}
	return false
}
