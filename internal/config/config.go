package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port              int
	NatsURL           string
	NatsToken         string
	DatabaseURL       string
	LogLevel          string
	DialogURL         string
	DialogUsername    string
	DialogPassword    string
	DialogWorkspaceID string
	DialogVersion     string
	FoursquareID      string
	FoursquareSecret  string
	SlackBotToken     string
	APIToken          string
	StaticDir         string
	LogWriteTimeout   int // seconds allowed for a single transcript write
}

func Load() Config {
	return Config{
		Port:              envInt("CONCIERGE_PORT", 8760),
		NatsURL:           envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:         envStr("NATS_TOKEN", ""),
		DatabaseURL:       envStr("DATABASE_URL", ""),
		LogLevel:          envStr("LOG_LEVEL", "info"),
		DialogURL:         envStr("DIALOG_URL", "https://gateway.watsonplatform.net/conversation/api"),
		DialogUsername:    envStr("DIALOG_USERNAME", ""),
		DialogPassword:    envStr("DIALOG_PASSWORD", ""),
		DialogWorkspaceID: envStr("DIALOG_WORKSPACE_ID", ""),
		DialogVersion:     envStr("DIALOG_VERSION", "2017-04-21"),
		FoursquareID:      envStr("FOURSQUARE_CLIENT_ID", ""),
		FoursquareSecret:  envStr("FOURSQUARE_CLIENT_SECRET", ""),
		SlackBotToken:     envStr("SLACK_BOT_TOKEN", ""),
		APIToken:          envStr("CONCIERGE_API_TOKEN", ""),
		StaticDir:         envStr("CONCIERGE_STATIC_DIR", ""),
		LogWriteTimeout:   envInt("LOG_WRITE_TIMEOUT_SECONDS", 10),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
