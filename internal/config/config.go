// Package config reads runtime settings from the environment.
package config

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Limit is a token bucket that refills Requests tokens every Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Config holds the server settings.
type Config struct {
	Port           string
	PublicDir      string
	UploadDir      string
	MaxUploadBytes int64
	// AllowedOrigins lists host patterns accepted on the websocket upgrade.
	// Empty means same origin only; "*" accepts any origin.
	AllowedOrigins []string
	MessageRate    Limit
	TypingRate     Limit
	JoinRate       Limit
	UploadRate     Limit
	LogLevel       slog.Level
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:           "3000",
		PublicDir:      "public",
		UploadDir:      "uploads",
		MaxUploadBytes: 10 << 20,
		MessageRate:    Limit{Requests: 30, Window: time.Minute},
		TypingRate:     Limit{Requests: 20, Window: 10 * time.Second},
		JoinRate:       Limit{Requests: 10, Window: 10 * time.Second},
		UploadRate:     Limit{Requests: 10, Window: time.Minute},
		LogLevel:       slog.LevelInfo,
	}
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("failed to load .env file: %+v", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables, falling back to
// Default for anything unset.
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("PUBLIC_DIR"); v != "" {
		cfg.PublicDir = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("internal/config: invalid MAX_UPLOAD_BYTES %q", v)
		}
		cfg.MaxUploadBytes = n
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	var err error
	if cfg.MessageRate, err = limitFromEnv("MESSAGE_RATE", cfg.MessageRate); err != nil {
		return Config{}, err
	}
	if cfg.TypingRate, err = limitFromEnv("TYPING_RATE", cfg.TypingRate); err != nil {
		return Config{}, err
	}
	if cfg.JoinRate, err = limitFromEnv("JOIN_RATE", cfg.JoinRate); err != nil {
		return Config{}, err
	}
	if cfg.UploadRate, err = limitFromEnv("UPLOAD_RATE", cfg.UploadRate); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("internal/config: invalid LOG_LEVEL: %w", err)
		}
	}

	return cfg, nil
}

// limitFromEnv reads <name> as the request count and <name>_WINDOW as a
// time.ParseDuration string.
func limitFromEnv(name string, def Limit) (Limit, error) {
	l := def

	if v := os.Getenv(name); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Limit{}, fmt.Errorf("internal/config: invalid %s %q", name, v)
		}
		l.Requests = n
	}

	if v := os.Getenv(name + "_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Limit{}, fmt.Errorf("internal/config: invalid %s_WINDOW: %w", name, err)
		}
		if d <= 0 {
			return Limit{}, fmt.Errorf("internal/config: %s_WINDOW must be positive", name)
		}
		l.Window = d
	}

	return l, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
