package live

import (
	"context"

	"github.com/lucasnetworkmkt/Mentor-codv/internal/audio"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/credential"
)

// ServerEvent is one decoded inbound message from the live transport.
type ServerEvent struct {
	// Audio holds raw 16-bit LE mono PCM at audio.PlaybackRate, or nil.
	Audio []byte
	// TurnComplete marks the end of a model turn.
	TurnComplete bool
	// Interrupted signals the model turn was cut off by new user speech;
	// queued playback for that turn should be dropped.
	Interrupted bool
}

// Session is one live bidirectional streaming connection. It is constructed
// per Connecting→Connected transition and owned by the Manager for its
// lifetime.
type Session interface {
	// SendFrame forwards one encoded capture frame. It must preserve the
	// caller's send order.
	SendFrame(blob audio.Blob) error
	// Events yields inbound events until the session ends; the channel
	// closes on remote close, error, or Close.
	Events() <-chan ServerEvent
	// Err reports the terminal transport error once Events has closed.
	// A clean remote close yields nil.
	Err() error
	Close() error
}

// SessionConfig describes the model session to establish.
type SessionConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
	// Endpoint overrides the default websocket endpoint (tests).
	Endpoint string
}

// Dialer establishes live sessions. The production implementation is
// GeminiDialer; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, cred credential.Credential, cfg SessionConfig) (Session, error)
}
