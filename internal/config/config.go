package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/lucasnetworkmkt/Mentor-codv/internal/credential"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/generate"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/live"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress   string
	Credentials   credential.Pool
	ChatModel     string
	MapModel      string
	VoiceModel    string
	Voice         string
	HistoryDBPath string
	LogDir        string
	// ServerURL is where the voice client asks for its API key.
	ServerURL string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	pool := credential.Load(os.Getenv)
	if pool.Len() == 0 {
		log.Println("Warning: no GEMINI_API_KEY_1..N set - generation requests will fail")
	} else {
		log.Printf("config: loaded %d Gemini API key(s)", pool.Len())
	}

	chatModel := os.Getenv("CHAT_MODEL")
	if chatModel == "" {
		chatModel = generate.DefaultChatModel
	}
	mapModel := os.Getenv("MAP_MODEL")
	if mapModel == "" {
		mapModel = generate.DefaultMapModel
	}
	voiceModel := os.Getenv("VOICE_MODEL")
	if voiceModel == "" {
		voiceModel = live.DefaultLiveModel
	}
	voice := os.Getenv("VOICE_NAME")
	if voice == "" {
		voice = live.DefaultVoice
	}

	dbPath := os.Getenv("HISTORY_DB_PATH")
	if dbPath == "" {
		dbPath = "mentor.db"
	}
	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		logDir = "logs"
	}
	serverURL := os.Getenv("SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:   addr,
		Credentials:   pool,
		ChatModel:     chatModel,
		MapModel:      mapModel,
		VoiceModel:    voiceModel,
		Voice:         voice,
		HistoryDBPath: dbPath,
		LogDir:        logDir,
		ServerURL:     serverURL,
	}
}
