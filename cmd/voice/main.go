package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lucasnetworkmkt/Mentor-codv/internal/audio"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/config"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/credential"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/live"
)

const liveVoiceInstruction = `
VOCÊ É O MENTOR DO CÓDIGO DA EVOLUÇÃO.
Sua voz é a de um comandante: Grave, masculina ('Charon') e direta.

OBJETIVO:
Você está treinando o usuário. Não é uma palestra, é um briefing militar rápido.

COMO AGIR:
1. Responda IMEDIATAMENTE. Não pense demais.
2. Se o usuário falar "Oi", responda: "No comando. Qual a missão?"
3. Se o usuário ficar quieto, pergunte: "Está na escuta?"
4. Seja breve. Frases de no máximo 2 sentenças.
5. Não seja robótico. Seja um homem falando com outro homem.

Se o áudio estiver ruim, diga apenas: "Repita."
`

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	cred, err := voiceCredential(cfg)
	if err != nil {
		log.Fatalf("no usable API key: %v", err)
	}

	mgr := live.NewManager(
		&live.GeminiDialer{},
		func() audio.Input { return audio.NewMicInput() },
		func() audio.Output { return audio.NewSpeakerOutput() },
		live.SessionConfig{
			Model:             cfg.VoiceModel,
			Voice:             cfg.Voice,
			SystemInstruction: liveVoiceInstruction,
		},
		live.WithStateFunc(func(s live.State) {
			log.Printf("voice: %s", s)
		}),
		live.WithSpeakingFunc(func(on bool) {
			if on {
				fmt.Println(">> O MENTOR ESTÁ FALANDO")
			} else {
				fmt.Println(">> AGUARDANDO VOCÊ...")
			}
		}),
	)
	sup := live.NewSupervisor(mgr, live.DefaultRetryPolicy)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("shutdown signal received: %v", sig)
		cancel()
	}()

	fmt.Println("Converse naturalmente. O Mentor está ouvindo. (Ctrl+C para sair)")
	if err := sup.Run(ctx, cred); err != nil {
		log.Fatalf("voice session: %v", err)
	}
}

// voiceCredential asks the gateway server for a key and falls back to the
// locally configured pool when the server is unreachable.
func voiceCredential(cfg config.Config) (credential.Credential, error) {
	if cred, err := fetchVoiceKey(cfg.ServerURL); err == nil {
		return cred, nil
	} else {
		log.Printf("voice: key fetch from %s failed (%v), using local pool", cfg.ServerURL, err)
	}
	return cfg.Credentials.PickRandom()
}

func fetchVoiceKey(serverURL string) (credential.Credential, error) {
	body, err := json.Marshal(map[string]any{"action": "get_voice_key"})
	if err != nil {
		return credential.Credential{}, err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(serverURL+"/api/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return credential.Credential{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return credential.Credential{}, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	var out struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return credential.Credential{}, err
	}
	pool := credential.NewPool([]string{out.APIKey})
	return pool.PickRandom()
}
