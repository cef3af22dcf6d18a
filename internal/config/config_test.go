package config

import (
	"os"
	"testing"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("CHAT_MODEL", "")
	os.Setenv("MAP_MODEL", "")
	os.Setenv("VOICE_MODEL", "")
	os.Setenv("VOICE_NAME", "")
	os.Setenv("HISTORY_DB_PATH", "")
	os.Setenv("LOG_DIR", "")
	os.Setenv("SERVER_URL", "")
	cfg := Load()
	if cfg.HTTPAddress == "" {
		t.Fatalf("expected default http address")
	}
	if cfg.ChatModel == "" || cfg.MapModel == "" {
		t.Fatalf("expected default generation models")
	}
	if cfg.VoiceModel == "" || cfg.Voice == "" {
		t.Fatalf("expected default voice model and name")
	}
	if cfg.HistoryDBPath == "" || cfg.LogDir == "" {
		t.Fatalf("expected default storage paths")
	}
	if cfg.ServerURL == "" {
		t.Fatalf("expected default server url")
	}
}

func TestLoad_CredentialsFromEnv(t *testing.T) {
	os.Setenv("GEMINI_API_KEY_1", "key-one")
	os.Setenv("GEMINI_API_KEY_2", "key-two")
	os.Setenv("GEMINI_API_KEY_3", "")
	defer func() {
		os.Unsetenv("GEMINI_API_KEY_1")
		os.Unsetenv("GEMINI_API_KEY_2")
		os.Unsetenv("GEMINI_API_KEY_3")
	}()
	cfg := Load()
	if cfg.Credentials.Len() != 2 {
		t.Fatalf("expected 2 credentials, got %d", cfg.Credentials.Len())
	}
}
