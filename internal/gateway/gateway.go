package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"

	"google.golang.org/genai"

	"github.com/lucasnetworkmkt/Mentor-codv/internal/credential"
)

// Operation is one unit of upstream work executed with a specific credential.
// It returns the model's text output.
type Operation func(ctx context.Context, cred credential.Credential) (string, error)

// Recorder receives per-attempt observability events. Implementations must be
// safe for concurrent use.
type Recorder interface {
	// Attempt is called after each credential attempt with its outcome.
	Attempt(last4 string, ok bool)
	// Exhausted is called when the whole pool failed.
	Exhausted()
}

type nopRecorder struct{}

func (nopRecorder) Attempt(string, bool) {}
func (nopRecorder) Exhausted()           {}

// ExhaustedError reports that every credential in the pool failed with a
// retryable error. LastErr holds the final attempt's error for diagnostics.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("Service Unavailable: all API keys failed. Last error: %v", e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Gateway executes operations against an ordered pool of API keys, falling
// back to the next key on retryable failure.
type Gateway struct {
	pool    credential.Pool
	metrics Recorder
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) {
		if r != nil {
			g.metrics = r
		}
	}
}

// New constructs a Gateway over the given pool.
func New(pool credential.Pool, opts ...Option) *Gateway {
	g := &Gateway{pool: pool, metrics: nopRecorder{}}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Execute runs op with each credential in pool order until one succeeds.
//
// A terminal error (the request itself is malformed, HTTP 400 class) aborts
// immediately without trying further keys; retrying a caller bug with a
// different key would only mask it as a capacity problem. Any other failure
// is treated as a key/capacity issue and the next credential is tried. When
// the pool is exhausted the last retryable error is wrapped in
// *ExhaustedError. An empty pool fails with credential.ErrNoCredentials.
func (g *Gateway) Execute(ctx context.Context, op Operation) (string, error) {
	creds := g.pool.All()
	if len(creds) == 0 {
		return "", credential.ErrNoCredentials
	}

	var lastErr error
	for _, cred := range creds {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out, err := op(ctx, cred)
		if err == nil {
			g.metrics.Attempt(cred.Last4(), true)
			return out, nil
		}
		g.metrics.Attempt(cred.Last4(), false)
		log.Printf("gateway: API key ending in ...%s failed: %v", cred.Last4(), err)
		if IsTerminal(err) {
			return "", err
		}
		lastErr = err
	}
	g.metrics.Exhausted()
	return "", &ExhaustedError{Attempts: len(creds), LastErr: lastErr}
}

// statusCode extracts an upstream HTTP status from err, if it carries one.
func statusCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var coder interface{ HTTPStatusCode() int }
	if errors.As(err, &coder) {
		return coder.HTTPStatusCode(), true
	}
	return 0, false
}

// IsTerminal reports whether err is a client-request error that must not be
// retried with another credential. Only status 400 short-circuits; other 4xx
// codes (401/403/404) are retryable-by-default since they usually indicate a
// bad or restricted key rather than a bad request.
func IsTerminal(err error) bool {
	code, ok := statusCode(err)
	return ok && code == 400
}

// IsExhausted reports whether err is a pool-exhaustion failure.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}
