package live

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lucasnetworkmkt/Mentor-codv/internal/audio"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/credential"
)

// State is the session manager's lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSpeaking
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// sendQueueSize bounds the outbound frame queue. At 256ms per frame this is
// well over a minute of backlog; hitting the bound means the link is dead.
const sendQueueSize = 64

// Manager owns one live voice session end to end: microphone capture,
// outbound frame forwarding, inbound playback scheduling and teardown.
// Exactly one session is live per Manager at a time.
type Manager struct {
	dialer    Dialer
	newInput  func() audio.Input
	newOutput func() audio.Output
	cfg       SessionConfig

	onState    func(State)
	onSpeaking func(bool)
	now        func() time.Time
	afterFunc  func(time.Duration, func()) *time.Timer

	mu       sync.Mutex
	state    State
	lastErr  error
	epoch    int
	sess     Session
	input    audio.Input
	output   audio.Output
	sendQ    chan audio.Blob
	sessDone chan struct{}
	schedule *PlaybackSchedule
	pending  int
	timers   map[*time.Timer]struct{}

	fatal chan error
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithStateFunc registers a state-change observer.
func WithStateFunc(fn func(State)) ManagerOption {
	return func(m *Manager) { m.onState = fn }
}

// WithSpeakingFunc registers a speaking-indicator observer. It fires with
// true when the first playback frame is scheduled and false when the last
// pending frame completes.
func WithSpeakingFunc(fn func(bool)) ManagerOption {
	return func(m *Manager) { m.onSpeaking = fn }
}

// WithClock injects the clock and timer factory (tests).
func WithClock(now func() time.Time, afterFunc func(time.Duration, func()) *time.Timer) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
		if afterFunc != nil {
			m.afterFunc = afterFunc
		}
	}
}

// NewManager constructs a Manager. Device handles are created per session
// via the factories and released on every exit path.
func NewManager(dialer Dialer, newInput func() audio.Input, newOutput func() audio.Output, cfg SessionConfig, opts ...ManagerOption) *Manager {
	m := &Manager{
		dialer:    dialer,
		newInput:  newInput,
		newOutput: newOutput,
		cfg:       cfg,
		now:       time.Now,
		afterFunc: time.AfterFunc,
		timers:    make(map[*time.Timer]struct{}),
		fatal:     make(chan error, 4),
	}
	for _, o := range opts {
		o(m)
	}
	m.schedule = NewPlaybackSchedule(m.now)
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Speaking reports whether at least one scheduled playback frame has not yet
// finished.
func (m *Manager) Speaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending > 0
}

// LastError returns the error recorded on the terminal Error transition.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Fatal yields asynchronous session failures (remote error mid-session).
// The Supervisor consumes this to drive silent reconnection.
func (m *Manager) Fatal() <-chan error { return m.fatal }

// Done closes when the current session ends for any reason. Nil until a
// session is started.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessDone
}

// Start acquires the audio devices, connects the live session and launches
// the capture/send/receive loops. Device acquisition and activation happen
// synchronously inside this call so that output is not silently blocked by a
// suspended device. A Stop racing with Start wins: the late connect releases
// everything and does not reach Connected.
func (m *Manager) Start(ctx context.Context, cred credential.Credential) error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected || m.state == StateSpeaking {
		m.mu.Unlock()
		return fmt.Errorf("live: session already active")
	}
	epoch := m.epoch
	m.setStateLocked(StateConnecting)
	m.lastErr = nil
	m.mu.Unlock()

	input := m.newInput()
	output := m.newOutput()

	// Activate both devices before any data flows.
	if err := input.Start(); err != nil {
		_ = input.Close()
		_ = output.Close()
		m.abortConnect(epoch)
		return err
	}
	if err := output.Start(); err != nil {
		_ = input.Close()
		_ = output.Close()
		m.abortConnect(epoch)
		return err
	}

	sess, err := m.dialer.Dial(ctx, cred, m.cfg)
	if err != nil {
		_ = input.Close()
		_ = output.Close()
		m.abortConnect(epoch)
		return err
	}

	m.mu.Lock()
	if m.epoch != epoch {
		// Stop was called while connecting; release and bail out.
		m.mu.Unlock()
		_ = sess.Close()
		_ = input.Close()
		_ = output.Close()
		return nil
	}
	m.sess = sess
	m.input = input
	m.output = output
	m.sendQ = make(chan audio.Blob, sendQueueSize)
	m.sessDone = make(chan struct{})
	m.schedule.Reset()
	m.setStateLocked(StateConnected)
	sendQ, sessDone := m.sendQ, m.sessDone
	m.mu.Unlock()

	go m.captureLoop(input, sendQ, sessDone)
	go m.writeLoop(sess, sendQ, sessDone)
	go m.receiveLoop(epoch, sess, output)
	return nil
}

// abortConnect rolls a failed connect attempt back to Disconnected unless a
// concurrent Stop already moved the epoch on.
func (m *Manager) abortConnect(epoch int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch == epoch && m.state == StateConnecting {
		m.setStateLocked(StateDisconnected)
	}
}

// captureLoop encodes microphone frames and hands them to the writer without
// blocking on the network. Production order is preserved by the queue.
func (m *Manager) captureLoop(input audio.Input, sendQ chan audio.Blob, done chan struct{}) {
	for frame := range input.Frames() {
		blob := audio.EncodeCapture(frame)
		select {
		case sendQ <- blob:
		case <-done:
			return
		}
	}
}

// writeLoop is the single writer draining the outbound queue, keeping frame
// order without per-frame round-trip waits.
func (m *Manager) writeLoop(sess Session, sendQ chan audio.Blob, done chan struct{}) {
	for {
		select {
		case blob := <-sendQ:
			if err := sess.SendFrame(blob); err != nil {
				log.Printf("live: send frame: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}

// receiveLoop decodes inbound events and schedules playback. When the
// session ends it tears the manager down and, on error, reports the failure
// for the supervisor to act on.
func (m *Manager) receiveLoop(epoch int, sess Session, output audio.Output) {
	for ev := range sess.Events() {
		if ev.Interrupted {
			m.flushPlayback(epoch, output)
		}
		if len(ev.Audio) > 0 {
			m.schedulePlayback(epoch, ev.Audio, output)
		}
	}
	err := sess.Err()

	m.mu.Lock()
	stale := m.epoch != epoch
	m.mu.Unlock()
	if stale {
		// Stop already tore this session down.
		return
	}
	m.Stop()
	if err != nil {
		log.Printf("live: session failed: %v", err)
		select {
		case m.fatal <- err:
		default:
		}
	} else {
		log.Printf("live: session closed by server")
	}
}

// schedulePlayback assigns the frame its slot on the playback timeline and
// arms the play/complete timers. The pending count drives the speaking
// indicator.
func (m *Manager) schedulePlayback(epoch int, pcm []byte, output audio.Output) {
	d := audio.FrameDuration(len(pcm), audio.PlaybackRate)
	if d <= 0 {
		return
	}
	start := m.schedule.Next(d)
	delay := start.Sub(m.now())
	if delay < 0 {
		delay = 0
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.pending++
	first := m.pending == 1
	if first && m.state == StateConnected {
		m.setStateLocked(StateSpeaking)
	}
	var playTimer *time.Timer
	playTimer = m.afterFunc(delay, func() {
		m.forgetTimer(playTimer)
		output.Write(pcm)
		m.mu.Lock()
		if m.epoch != epoch {
			m.mu.Unlock()
			return
		}
		var doneTimer *time.Timer
		doneTimer = m.afterFunc(d, func() {
			m.forgetTimer(doneTimer)
			m.frameDone(epoch)
		})
		m.timers[doneTimer] = struct{}{}
		m.mu.Unlock()
	})
	m.timers[playTimer] = struct{}{}
	m.mu.Unlock()

	if first && m.onSpeaking != nil {
		m.onSpeaking(true)
	}
}

func (m *Manager) forgetTimer(t *time.Timer) {
	m.mu.Lock()
	delete(m.timers, t)
	m.mu.Unlock()
}

// frameDone decrements the shared pending count; the speaking indicator
// drops exactly when the last pending frame completes.
func (m *Manager) frameDone(epoch int) {
	m.mu.Lock()
	if m.epoch != epoch || m.pending == 0 {
		m.mu.Unlock()
		return
	}
	m.pending--
	last := m.pending == 0
	if last && m.state == StateSpeaking {
		m.setStateLocked(StateConnected)
	}
	m.mu.Unlock()
	if last && m.onSpeaking != nil {
		m.onSpeaking(false)
	}
}

// flushPlayback drops everything scheduled but not yet played after a model
// interruption.
func (m *Manager) flushPlayback(epoch int, output audio.Output) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	timers := m.timers
	m.timers = make(map[*time.Timer]struct{})
	hadPending := m.pending > 0
	m.pending = 0
	if hadPending && m.state == StateSpeaking {
		m.setStateLocked(StateConnected)
	}
	m.schedule.Reset()
	m.mu.Unlock()

	for t := range timers {
		t.Stop()
	}
	output.Reset()
	if hadPending && m.onSpeaking != nil {
		m.onSpeaking(false)
	}
}

// Stop tears the session down deterministically: stops pending playback,
// closes both devices and the transport, clears all tracking state and
// returns to Disconnected. Idempotent and safe from any state, including
// mid-connect.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.epoch++
	sess, input, output := m.sess, m.input, m.output
	sessDone := m.sessDone
	timers := m.timers
	m.sess, m.input, m.output = nil, nil, nil
	m.sendQ = nil
	m.sessDone = nil
	m.timers = make(map[*time.Timer]struct{})
	wasSpeaking := m.pending > 0
	m.pending = 0
	m.schedule.Reset()
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	for t := range timers {
		t.Stop()
	}
	if sessDone != nil {
		close(sessDone)
	}
	if sess != nil {
		_ = sess.Close()
	}
	if input != nil {
		_ = input.Close()
	}
	if output != nil {
		output.Reset()
		_ = output.Close()
	}
	if wasSpeaking && m.onSpeaking != nil {
		m.onSpeaking(false)
	}
}

// Fail records a terminal failure: full teardown plus the Error state with a
// user-facing message. Used by the Supervisor after the retry bound.
func (m *Manager) Fail(err error) {
	m.Stop()
	m.mu.Lock()
	m.lastErr = err
	m.setStateLocked(StateError)
	m.mu.Unlock()
}

// setStateLocked updates state and notifies the observer. Callers hold m.mu.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.onState != nil {
		// invoked under the lock; observers must not call back into the
		// manager
		m.onState(s)
	}
}
