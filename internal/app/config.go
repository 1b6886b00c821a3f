package app

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"
)

type Config struct {
	RelayURL    string
	DisplayName string
	JWTSecret   string
	LogLevel    string

	// Transcription backend
	TranscribeURL   string
	TranscribeToken string

	// Media
	AudioInput    string
	STUNServers   []string
	ChunkInterval time.Duration

	// Error monitoring
	SentryDSN string
}

func LoadConfigFromEnv() Config {
	chunkInterval, err := time.ParseDuration(getenv("CHUNK_INTERVAL", "3333ms"))
	if err != nil {
		chunkInterval = 3333 * time.Millisecond
	}

	return Config{
		RelayURL:    getenv("RELAY_URL", "wss://localhost:8080/signal"),
		DisplayName: getenv("DISPLAY_NAME", randomDisplayName()),
		JWTSecret:   os.Getenv("JWT_SECRET"), // Required - no fallback for security
		LogLevel:    getenv("LOG_LEVEL", "info"),

		TranscribeURL:   getenv("TRANSCRIBE_URL", "https://localhost:8080/subjects/transcribe"),
		TranscribeToken: os.Getenv("TRANSCRIBE_TOKEN"),

		AudioInput:    getenv("AUDIO_INPUT", ""),
		STUNServers:   parseSTUNServers(os.Getenv("STUN_SERVERS")),
		ChunkInterval: chunkInterval,

		SentryDSN: getenv("SENTRY_DSN", ""),
	}
}

// randomDisplayName mirrors the default identity of the web client.
func randomDisplayName() string {
	return fmt.Sprintf("User-%d", rand.Intn(100000))
}

func parseSTUNServers(s string) []string {
	if s == "" {
		return nil // rtc falls back to its defaults
	}
	var servers []string
	for _, u := range strings.Split(s, ",") {
		if u = strings.TrimSpace(u); u != "" {
			servers = append(servers, u)
		}
	}
	return servers
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
