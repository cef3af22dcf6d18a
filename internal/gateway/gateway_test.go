package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"google.golang.org/genai"

	"github.com/lucasnetworkmkt/Mentor-codv/internal/credential"
)

type recordingRecorder struct {
	mu        sync.Mutex
	attempts  []string
	exhausted int
}

func (r *recordingRecorder) Attempt(last4 string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, fmt.Sprintf("%s:%v", last4, ok))
}

func (r *recordingRecorder) Exhausted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exhausted++
}

func pool(keys ...string) credential.Pool { return credential.NewPool(keys) }

func TestExecute_FallbackOrder(t *testing.T) {
	g := New(pool("aaaa0001", "bbbb0002", "cccc0003"))
	var tried []string
	out, err := g.Execute(context.Background(), func(_ context.Context, c credential.Credential) (string, error) {
		tried = append(tried, c.Last4())
		if len(tried) < 3 {
			return "", genai.APIError{Code: 503, Message: "overloaded"}
		}
		return "hello", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected success value, got %q", out)
	}
	want := []string{"0001", "0002", "0003"}
	if len(tried) != len(want) {
		t.Fatalf("expected %d attempts, got %d", len(want), len(tried))
	}
	for i := range want {
		if tried[i] != want[i] {
			t.Fatalf("attempt %d used credential %s, want %s", i, tried[i], want[i])
		}
	}
}

func TestExecute_FirstSuccessStops(t *testing.T) {
	g := New(pool("aaaa0001", "bbbb0002"))
	calls := 0
	out, err := g.Execute(context.Background(), func(context.Context, credential.Credential) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil || out != "ok" {
		t.Fatalf("unexpected result: %q, %v", out, err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
}

func TestExecute_TerminalShortCircuit(t *testing.T) {
	rec := &recordingRecorder{}
	g := New(pool("aaaa0001", "bbbb0002", "cccc0003"), WithRecorder(rec))
	calls := 0
	_, err := g.Execute(context.Background(), func(context.Context, credential.Credential) (string, error) {
		calls++
		return "", genai.APIError{Code: 400, Message: "bad request"}
	})
	if calls != 1 {
		t.Fatalf("terminal error must stop after 1 attempt, got %d", calls)
	}
	if !IsTerminal(err) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if IsExhausted(err) {
		t.Fatalf("terminal error must not be reported as exhaustion")
	}
	if len(rec.attempts) != 1 || rec.attempts[0] != "0001:false" {
		t.Fatalf("unexpected attempt log: %v", rec.attempts)
	}
}

func TestExecute_Exhaustion(t *testing.T) {
	rec := &recordingRecorder{}
	g := New(pool("aaaa0001", "bbbb0002", "cccc0003"), WithRecorder(rec))
	last := errors.New("connection reset")
	calls := 0
	_, err := g.Execute(context.Background(), func(context.Context, credential.Credential) (string, error) {
		calls++
		if calls < 3 {
			return "", genai.APIError{Code: 429, Message: "quota"}
		}
		return "", last
	})
	if calls != 3 {
		t.Fatalf("expected all 3 credentials tried, got %d", calls)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if !errors.Is(err, last) {
		t.Fatalf("expected last error to be wrapped, got %v", err)
	}
	if ex.Attempts != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", ex.Attempts)
	}
	if rec.exhausted != 1 {
		t.Fatalf("expected exhaustion recorded once, got %d", rec.exhausted)
	}
}

func TestExecute_EmptyPool(t *testing.T) {
	g := New(pool())
	_, err := g.Execute(context.Background(), func(context.Context, credential.Credential) (string, error) {
		t.Fatal("operation must not run with empty pool")
		return "", nil
	})
	if !errors.Is(err, credential.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestExecute_Scenario503Then429ThenSuccess(t *testing.T) {
	rec := &recordingRecorder{}
	g := New(pool("keyAAAA", "keyBBBB", "keyCCCC"), WithRecorder(rec))
	seq := []error{
		genai.APIError{Code: 503, Message: "unavailable"},
		genai.APIError{Code: 429, Message: "rate limited"},
		nil,
	}
	i := 0
	out, err := g.Execute(context.Background(), func(context.Context, credential.Credential) (string, error) {
		e := seq[i]
		i++
		if e != nil {
			return "", e
		}
		return "hello", nil
	})
	if err != nil || out != "hello" {
		t.Fatalf("unexpected result: %q, %v", out, err)
	}
	if len(rec.attempts) != 3 {
		t.Fatalf("expected 3 logged attempts, got %v", rec.attempts)
	}
	if rec.attempts[2] != "CCCC:true" {
		t.Fatalf("expected the third attempt to succeed, got %v", rec.attempts)
	}
}

func TestIsTerminal_Other4xxRetryable(t *testing.T) {
	for _, code := range []int{401, 403, 404, 429, 500, 503} {
		if IsTerminal(genai.APIError{Code: code}) {
			t.Fatalf("status %d must be retryable", code)
		}
	}
	if !IsTerminal(genai.APIError{Code: 400}) {
		t.Fatal("status 400 must be terminal")
	}
	if IsTerminal(errors.New("plain network error")) {
		t.Fatal("errors without a status must be retryable")
	}
}

type statusErr struct{ code int }

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) HTTPStatusCode() int { return e.code }

func TestIsTerminal_HTTPStatusCoder(t *testing.T) {
	if !IsTerminal(statusErr{code: 400}) {
		t.Fatal("HTTPStatusCode 400 must be terminal")
	}
	if IsTerminal(fmt.Errorf("wrapped: %w", statusErr{code: 502})) {
		t.Fatal("wrapped 502 must be retryable")
	}
	if !IsTerminal(fmt.Errorf("wrapped: %w", statusErr{code: 400})) {
		t.Fatal("wrapped 400 must stay terminal")
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	g := New(pool("aaaa0001"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Execute(ctx, func(context.Context, credential.Credential) (string, error) {
		t.Fatal("operation must not run after cancellation")
		return "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
