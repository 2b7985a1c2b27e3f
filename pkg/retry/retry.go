// Package retry re-runs calls to remote providers that fail transiently.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds how often and how fast a call is retried.
type Policy struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultPolicy retries twice starting at 500ms.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2, Initial: 500 * time.Millisecond, Max: 10 * time.Second, Multiplier: 2}
}

// StatusError is returned by HTTP clients for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Do runs op until it succeeds, returns a non-transient error, or exhausts the policy.
// The returned error is the last error from op.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	if p.MaxRetries <= 0 {
		return op(ctx)
	}

	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	if p.Multiplier > 1 {
		b.Multiplier = p.Multiplier
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxRetries+1)),
	)
}

// IsTransient reports whether err is worth retrying: rate limits, 5xx and timeouts.
// Cancellation of the caller's context is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		return transientStatus(se.Code)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	s := strings.ToLower(err.Error())
	for _, marker := range []string{
		"status code: 429", "status code: 5", "429 too many requests",
		"rate limit", "too many requests", "internal server error",
		"bad gateway", "service unavailable", "gateway timeout", "server_error",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
