package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lucasnetworkmkt/Mentor-codv/internal/audio"
)

func newTestSupervisor(t *testing.T, d Dialer, in *fakeInput, out *fakeOutput, policy RetryPolicy) (*Supervisor, *Manager, *[]time.Duration) {
	t.Helper()
	m := newTestManager(t, d, in, out)
	s := NewSupervisor(m, policy)
	var sleeps []time.Duration
	s.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return s, m, &sleeps
}

func TestSupervisorRecoversSilentlyWithinBudget(t *testing.T) {
	dialer := &fakeDialer{errs: []error{errors.New("handshake reset"), nil}}
	in := newFakeInput()
	out := &fakeOutput{}
	s, m, sleeps := newTestSupervisor(t, dialer, in, out, RetryPolicy{MaxRetries: 2, Delay: time.Second})

	if err := s.Start(context.Background(), testCred(t)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	if got := m.State(); got != StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}
	if dialer.dialCount() != 2 {
		t.Fatalf("dial attempts = %d, want 2", dialer.dialCount())
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != time.Second {
		t.Fatalf("sleeps = %v, want one 1s delay", *sleeps)
	}
}

func TestSupervisorTerminalAfterRetryBound(t *testing.T) {
	dialErr := errors.New("network unreachable")
	dialer := &fakeDialer{errs: []error{dialErr, dialErr, dialErr}}
	in := newFakeInput()
	out := &fakeOutput{}
	s, m, sleeps := newTestSupervisor(t, dialer, in, out, RetryPolicy{MaxRetries: 2, Delay: time.Second})

	err := s.Start(context.Background(), testCred(t))
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if dialer.dialCount() != 3 {
		t.Fatalf("dial attempts = %d, want 3 (initial + 2 retries)", dialer.dialCount())
	}
	if len(*sleeps) != 2 {
		t.Fatalf("sleeps = %v, want two delays", *sleeps)
	}
	if got := m.State(); got != StateError {
		t.Fatalf("state = %v, want error", got)
	}
	if !errors.Is(m.LastError(), ErrRetriesExhausted) {
		t.Fatalf("LastError = %v, want ErrRetriesExhausted", m.LastError())
	}
}

func TestSupervisorDeviceFailureIsNeverRetried(t *testing.T) {
	dialer := &fakeDialer{}
	in := newFakeInput()
	in.startErr = &audio.DeviceError{Device: "microphone", Err: errors.New("permission denied")}
	out := &fakeOutput{}
	s, m, sleeps := newTestSupervisor(t, dialer, in, out, RetryPolicy{MaxRetries: 2, Delay: time.Second})

	err := s.Start(context.Background(), testCred(t))
	var devErr *audio.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("err = %v, want DeviceError", err)
	}
	if dialer.dialCount() != 0 {
		t.Fatal("dialed despite device failure")
	}
	if len(*sleeps) != 0 {
		t.Fatalf("sleeps = %v, want none", *sleeps)
	}
	if got := m.State(); got != StateError {
		t.Fatalf("state = %v, want error", got)
	}
}

func TestSupervisorBudgetResetsPerCall(t *testing.T) {
	dialErr := errors.New("temporary failure")
	dialer := &fakeDialer{errs: []error{dialErr, dialErr, nil}}
	in := newFakeInput()
	out := &fakeOutput{}
	s, m, _ := newTestSupervisor(t, dialer, in, out, RetryPolicy{MaxRetries: 1, Delay: time.Second})

	if err := s.Start(context.Background(), testCred(t)); !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("first call: err = %v, want ErrRetriesExhausted", err)
	}

	// a manual reconnect gets a fresh budget
	if err := s.Start(context.Background(), testCred(t)); err != nil {
		t.Fatalf("second call: %v", err)
	}
	defer m.Stop()
	if got := m.State(); got != StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}
}

func TestSupervisorStartHonorsCancelledContext(t *testing.T) {
	dialer := &fakeDialer{errs: []error{errors.New("reset")}}
	in := newFakeInput()
	out := &fakeOutput{}
	s, _, sleeps := newTestSupervisor(t, dialer, in, out, RetryPolicy{MaxRetries: 5, Delay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Start(ctx, testCred(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("sleeps = %v, want none after cancellation", *sleeps)
	}
}

func TestSupervisorRunReconnectsAfterSessionFailure(t *testing.T) {
	dialer := &fakeDialer{}
	in := newFakeInput()
	out := &fakeOutput{}
	s, m, _ := newTestSupervisor(t, dialer, in, out, RetryPolicy{MaxRetries: 2, Delay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx, testCred(t)) }()

	waitFor(t, "first session up", func() bool { return dialer.dialCount() == 1 })
	dialer.session(0).fail(errors.New("socket reset"))

	waitFor(t, "silent reconnect", func() bool { return dialer.dialCount() == 2 && m.State() == StateConnected })

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if got := m.State(); got != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", got)
	}
}
