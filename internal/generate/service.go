package generate

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/lucasnetworkmkt/Mentor-codv/internal/credential"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/gateway"
)

// Default model assignments. The conversational turns go to the stronger
// reasoning model; the mental map is a cheap structured render.
const (
	DefaultChatModel = "gemini-3-pro-preview"
	DefaultMapModel  = "gemini-2.5-flash"

	// thinkingBudget bounds the chat model's internal reasoning tokens.
	thinkingBudget int32 = 2048
)

// mapPromptTemplate is a fixed contract with the frontend renderer: the
// output must be a plain ASCII tree (├──, └──, │), no code fences, at most
// three levels deep.
const mapPromptTemplate = `Crie um MAPA MENTAL ESTRUTURADO em formato de ÁRVORE DE TEXTO (ASCII/Tree Style) sobre: %q.

REGRAS VISUAIS:
- Use caracteres ASCII para conectar: ├──, └──, │.
- Não use Markdown code blocks, apenas o texto puro.
- Seja hierárquico, direto e focado em EXECUÇÃO.
- Limite a 3 níveis de profundidade.
- Estilo "Hacker/Terminal".`

// Turn is one prior exchange entry supplied by the caller. Role is "user" or
// "model".
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// generator abstracts one per-credential Gemini client call so tests can
// capture requests without the network.
type generator interface {
	generateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error)
}

type genaiGenerator struct {
	apiKey string
}

func (g genaiGenerator) generateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("genai client: %w", err)
	}
	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("genai: empty response for model %s", model)
	}
	return text, nil
}

// Service builds generation requests and routes them through the
// credential-fallback gateway. Gateway failures propagate unchanged; this
// layer adds no retries of its own.
type Service struct {
	gw        *gateway.Gateway
	chatModel string
	mapModel  string

	// newGenerator is swapped in tests.
	newGenerator func(apiKey string) generator
}

// NewService constructs the generation service. Empty model names fall back
// to the defaults.
func NewService(gw *gateway.Gateway, chatModel, mapModel string) *Service {
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	if mapModel == "" {
		mapModel = DefaultMapModel
	}
	return &Service{
		gw:           gw,
		chatModel:    chatModel,
		mapModel:     mapModel,
		newGenerator: func(apiKey string) generator { return genaiGenerator{apiKey: apiKey} },
	}
}

// Converse submits the accumulated history plus the new user message as one
// conversational turn and returns the model's reply text. The full history
// is resent on every call; callers manage cost by starting new sessions.
func (s *Service) Converse(ctx context.Context, history []Turn, message, systemInstruction string) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, t := range history {
		role := genai.Role(genai.RoleUser)
		if t.Role == "model" || t.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(message, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(thinkingBudget)},
	}
	if systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	return s.gw.Execute(ctx, func(ctx context.Context, cred credential.Credential) (string, error) {
		return s.newGenerator(cred.Secret()).generateContent(ctx, s.chatModel, contents, cfg)
	})
}

// GenerateMap renders topic as a plain-text ASCII tree via the fixed map
// prompt template.
func (s *Service) GenerateMap(ctx context.Context, topic string) (string, error) {
	prompt := MapPrompt(topic)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	return s.gw.Execute(ctx, func(ctx context.Context, cred credential.Credential) (string, error) {
		return s.newGenerator(cred.Secret()).generateContent(ctx, s.mapModel, contents, nil)
	})
}

// MapPrompt returns the exact prompt sent for a mental-map request.
func MapPrompt(topic string) string {
	return fmt.Sprintf(mapPromptTemplate, topic)
}
