package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/lucasnetworkmkt/Mentor-codv/internal/credential"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/gateway"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/generate"
)

// chatPointsPerExchange is awarded for each completed chat exchange.
const chatPointsPerExchange = 5

// Generator produces model output for the two text actions.
type Generator interface {
	Converse(ctx context.Context, history []generate.Turn, message, systemInstruction string) (string, error)
	GenerateMap(ctx context.Context, topic string) (string, error)
}

// KeySource hands out one credential for client-side live sessions.
type KeySource interface {
	PickRandom() (credential.Credential, error)
}

// Transcript records completed exchanges. Failures are logged, never
// surfaced to the caller.
type Transcript interface {
	Append(ctx context.Context, sessionID, role, text string) error
}

// PointsAwarder is the gamification hook. The server only calls it; scoring
// rules live with the implementation.
type PointsAwarder interface {
	AwardPoints(amount int, reason string) error
}

// RequestRecorder receives per-request metrics.
type RequestRecorder interface {
	Request(action string, status int, d time.Duration)
}

// Deps are the collaborators the server routes requests to. Nil optional
// fields (History, Points, Metrics) disable the corresponding side effect.
type Deps struct {
	Generator Generator
	Keys      KeySource
	History   Transcript
	Points    PointsAwarder
	Metrics   RequestRecorder
}

// Server bundles HTTP router and dependencies.
type Server struct {
	Router http.Handler
	deps   Deps
}

type envelope struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type chatPayload struct {
	History           []generate.Turn `json:"history"`
	Message           string          `json:"message"`
	SystemInstruction string          `json:"systemInstruction"`
	SessionID         string          `json:"sessionId"`
}

type mapPayload struct {
	Topic string `json:"topic"`
}

// New constructs the HTTP server with routes.
func New(deps Deps) *Server {
	s := &Server{deps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/chat", s.handleAction)
	// path alias kept for clients built against the hosted-function layout
	mux.HandleFunc("/.netlify/functions/chat", s.handleAction)

	s.Router = mux
	return s
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	// Basic CORS for browser clients
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		log.Printf("httpserver: invalid request body: %v", err)
		s.finish(w, start, "invalid", http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}

	switch env.Action {
	case "chat":
		s.handleChat(w, r, start, env.Payload)
	case "mental_map":
		s.handleMentalMap(w, r, start, env.Payload)
	case "get_voice_key":
		s.handleVoiceKey(w, start)
	default:
		s.finish(w, start, env.Action, http.StatusBadRequest, map[string]string{"error": "Unknown action"})
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, start time.Time, raw json.RawMessage) {
	var p chatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.finish(w, start, "chat", http.StatusBadRequest, map[string]string{"error": "Invalid chat payload"})
		return
	}
	text, err := s.deps.Generator.Converse(r.Context(), p.History, p.Message, p.SystemInstruction)
	if err != nil {
		s.writeGatewayError(w, start, "chat", err)
		return
	}

	sessionID := p.SessionID
	if sessionID == "" {
		sessionID = "anon"
	}
	if s.deps.History != nil {
		if err := s.deps.History.Append(r.Context(), sessionID, "user", p.Message); err != nil {
			log.Printf("httpserver: record user message: %v", err)
		}
		if err := s.deps.History.Append(r.Context(), sessionID, "model", text); err != nil {
			log.Printf("httpserver: record model message: %v", err)
		}
	}
	if s.deps.Points != nil {
		if err := s.deps.Points.AwardPoints(chatPointsPerExchange, "chat"); err != nil {
			log.Printf("httpserver: award points: %v", err)
		}
	}
	s.finish(w, start, "chat", http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleMentalMap(w http.ResponseWriter, r *http.Request, start time.Time, raw json.RawMessage) {
	var p mapPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.finish(w, start, "mental_map", http.StatusBadRequest, map[string]string{"error": "Invalid mental_map payload"})
		return
	}
	text, err := s.deps.Generator.GenerateMap(r.Context(), p.Topic)
	if err != nil {
		s.writeGatewayError(w, start, "mental_map", err)
		return
	}
	s.finish(w, start, "mental_map", http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleVoiceKey(w http.ResponseWriter, start time.Time) {
	cred, err := s.deps.Keys.PickRandom()
	if err != nil {
		log.Printf("httpserver: voice key unavailable: %v", err)
		s.finish(w, start, "get_voice_key", http.StatusInternalServerError, map[string]string{"error": "No API keys configured"})
		return
	}
	s.finish(w, start, "get_voice_key", http.StatusOK, map[string]string{"apiKey": cred.Secret()})
}

// writeGatewayError maps the gateway taxonomy onto HTTP statuses: terminal
// upstream rejections pass through as client errors, everything else is a
// server-side failure.
func (s *Server) writeGatewayError(w http.ResponseWriter, start time.Time, action string, err error) {
	log.Printf("httpserver: %s failed: %v", action, err)
	switch {
	case gateway.IsTerminal(err):
		s.finish(w, start, action, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case gateway.IsExhausted(err):
		s.finish(w, start, action, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	case errors.Is(err, credential.ErrNoCredentials):
		s.finish(w, start, action, http.StatusInternalServerError, map[string]string{"error": "No API keys configured"})
	default:
		s.finish(w, start, action, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

func (s *Server) finish(w http.ResponseWriter, start time.Time, action string, status int, body any) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.Request(action, status, time.Since(start))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
