package live

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lucasnetworkmkt/Mentor-codv/internal/audio"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/credential"
)

// RetryPolicy bounds the supervisor's silent reconnection.
type RetryPolicy struct {
	// MaxRetries is the number of silent retries after the first failure.
	MaxRetries int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// DefaultRetryPolicy mirrors the product behavior: two silent retries one
// second apart.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 2, Delay: time.Second}

// ErrRetriesExhausted is wrapped into the terminal error once the silent
// retry bound is exceeded.
var ErrRetriesExhausted = errors.New("voice connection failed, try restarting")

// Supervisor wraps the Manager's connect step with bounded silent retries.
// Transient connection failures are invisible to the caller until the bound
// is exceeded; then the manager is moved to the terminal Error state and the
// failure surfaces. Device acquisition failures are never retried.
type Supervisor struct {
	mgr    *Manager
	policy RetryPolicy

	// sleep is swapped in tests.
	sleep func(time.Duration)
}

// NewSupervisor builds a supervisor over mgr. A zero policy gets defaults.
func NewSupervisor(mgr *Manager, policy RetryPolicy) *Supervisor {
	if policy.MaxRetries == 0 && policy.Delay == 0 {
		policy = DefaultRetryPolicy
	}
	return &Supervisor{mgr: mgr, policy: policy, sleep: time.Sleep}
}

// Start connects the session, silently retrying retryable connection
// failures up to the policy bound. Each call resets the retry budget, so a
// manual reconnect starts fresh from Connecting.
func (s *Supervisor) Start(ctx context.Context, cred credential.Credential) error {
	var lastErr error
	for attempt := 0; attempt <= s.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			s.sleep(s.policy.Delay)
		}
		err := s.mgr.Start(ctx, cred)
		if err == nil {
			return nil
		}
		var devErr *audio.DeviceError
		if errors.As(err, &devErr) {
			// mic/speaker failures are not transient; surface immediately
			s.mgr.Fail(err)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("live: connect attempt %d failed: %v", attempt+1, err)
		lastErr = err
	}
	terminal := fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
	s.mgr.Fail(terminal)
	return terminal
}

// Run supervises a full session: it connects (with silent retries) and then
// keeps watching for mid-session failures, reconnecting within a fresh
// budget each time. It returns when the context is cancelled, the session
// ends cleanly, or reconnection fails terminally.
func (s *Supervisor) Run(ctx context.Context, cred credential.Credential) error {
	if err := s.Start(ctx, cred); err != nil {
		return err
	}
	for {
		done := s.mgr.Done()
		if done == nil {
			// session already torn down between reconnect and here
			return nil
		}
		select {
		case <-ctx.Done():
			s.mgr.Stop()
			return nil
		case err := <-s.mgr.Fatal():
			log.Printf("live: reconnecting after session failure: %v", err)
			if rerr := s.Start(ctx, cred); rerr != nil {
				return rerr
			}
		case <-done:
			// drain a fatal error racing the done signal
			select {
			case err := <-s.mgr.Fatal():
				log.Printf("live: reconnecting after session failure: %v", err)
				if rerr := s.Start(ctx, cred); rerr != nil {
					return rerr
				}
			case <-time.After(50 * time.Millisecond):
				return nil
			}
		}
	}
}
