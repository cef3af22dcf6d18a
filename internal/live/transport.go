package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lucasnetworkmkt/Mentor-codv/internal/audio"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/credential"
)

// DefaultLiveEndpoint is the Gemini Live API bidirectional streaming
// endpoint. The API key is passed as a query parameter.
const DefaultLiveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// DefaultLiveModel matches the native-audio preview model the product uses.
const DefaultLiveModel = "gemini-2.5-flash-native-audio-preview-12-2025"

// DefaultVoice is Charon; more stable than Fenrir for this use case.
const DefaultVoice = "Charon"

// Wire messages. Only the fields this client uses are modeled.

type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model             string            `json:"model"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *contentPayload   `json:"systemInstruction,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig *voiceConfig `json:"voiceConfig,omitempty"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig *prebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName,omitempty"`
}

type contentPayload struct {
	Parts []partPayload `json:"parts"`
}

type partPayload struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
}

type serverContent struct {
	ModelTurn    *contentPayload `json:"modelTurn,omitempty"`
	TurnComplete bool            `json:"turnComplete,omitempty"`
	Interrupted  bool            `json:"interrupted,omitempty"`
}

// GeminiDialer establishes live audio sessions against the Gemini Live API.
type GeminiDialer struct {
	// HandshakeTimeout bounds the websocket dial; defaults to 10s.
	HandshakeTimeout time.Duration
}

// Dial connects, sends the session setup and waits for the server's
// setupComplete acknowledgement before returning a live Session.
func (d *GeminiDialer) Dial(ctx context.Context, cred credential.Credential, cfg SessionConfig) (Session, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultLiveEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = DefaultLiveModel
	}
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}

	wsURL := endpoint + "?key=" + url.QueryEscape(cred.Secret())
	log.Printf("live: connecting with API key ...%s", cred.Last4())
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("live: websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("live: websocket dial failed: %w", err)
	}

	setup := setupMessage{Setup: setupPayload{
		Model: "models/" + model,
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: &voiceConfig{
					PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: voice},
				},
			},
		},
	}}
	if cfg.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &contentPayload{Parts: []partPayload{{Text: cfg.SystemInstruction}}}
	}
	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("live: send setup: %w", err)
	}

	// The first server frame must acknowledge the setup.
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("live: read setup ack: %w", err)
	}
	var ack serverMessage
	if err := json.Unmarshal(data, &ack); err != nil || ack.SetupComplete == nil {
		_ = conn.Close()
		return nil, fmt.Errorf("live: unexpected setup response: %s", data)
	}
	_ = conn.SetReadDeadline(time.Time{})

	s := &wsSession{
		conn:   conn,
		events: make(chan ServerEvent, 64),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

type wsSession struct {
	conn *websocket.Conn

	events chan ServerEvent
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool

	errMu sync.Mutex
	err   error
}

func (s *wsSession) SendFrame(blob audio.Blob) error {
	msg := realtimeInputMessage{RealtimeInput: realtimeInput{
		MediaChunks: []mediaChunk{{MimeType: blob.MimeType, Data: blob.Data}},
	}}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("live: session closed")
	}
	return s.conn.WriteJSON(msg)
}

func (s *wsSession) Events() <-chan ServerEvent { return s.events }

func (s *wsSession) Err() error {
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *wsSession) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.closed = true
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *wsSession) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *wsSession) readLoop() {
	defer close(s.done)
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.writeMu.Lock()
			wasClosed := s.closed
			s.writeMu.Unlock()
			if !wasClosed {
				s.setErr(err)
			}
			return
		}
		ev, ok := decodeServerFrame(data)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		default:
			// consumer stalled; drop rather than wedge the read loop
			log.Printf("live: dropping inbound event, consumer too slow")
		}
	}
}

// decodeServerFrame extracts one ServerEvent from a raw server message.
// Messages without audio or turn markers are skipped.
func decodeServerFrame(data []byte) (ServerEvent, bool) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("live: bad server frame: %v", err)
		return ServerEvent{}, false
	}
	sc := msg.ServerContent
	if sc == nil {
		return ServerEvent{}, false
	}
	ev := ServerEvent{TurnComplete: sc.TurnComplete, Interrupted: sc.Interrupted}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				log.Printf("live: bad inline audio: %v", err)
				continue
			}
			ev.Audio = append(ev.Audio, raw...)
		}
	}
	if ev.Audio == nil && !ev.TurnComplete && !ev.Interrupted {
		return ServerEvent{}, false
	}
	return ev, true
}
