// Package config loads relay configuration from the environment, with
// .env/.env.local overlays.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults that apply when the environment is silent.
const (
	DefaultUpstreamURL      = "https://yunyi.cfd/codex"
	DefaultModel            = "gpt-5.2-codex"
	DefaultReasoning        = "medium"
	DefaultInstructionsFile = "./codex-prompt.md"
	DefaultHost             = "127.0.0.1"
	DefaultPort             = 3456
	DefaultMaxRetries       = 3
	DefaultPayloadPolicy    = "truncate"
	DefaultPayloadMaxChars  = 800
	DefaultMaxBodyBytes     = 1 << 20
	DefaultReadTimeout      = 15 * time.Second
	DefaultUpstreamTimeout  = 120 * time.Second
)

// AllowedModels is the fixed set the upstream accepts; anything else maps
// to the configured default model.
var AllowedModels = map[string]bool{
	"gpt-5.2":       true,
	"gpt-5.2-codex": true,
}

// Config holds all relay settings. Built once at startup, read-only after.
type Config struct {
	UpstreamURL      string
	APIKey           string
	Model            string
	Reasoning        string
	InstructionsFile string
	Instructions     string

	Host           string
	Port           int
	RelayAPIKey    string
	MaxConcurrency int
	MaxRetries     int
	Retry429       bool

	ToolPayload         string // full | truncate | none
	ToolPayloadMaxChars int
	Compat              bool

	MaxBodyBytes    int64
	ReadTimeout     time.Duration
	UpstreamTimeout time.Duration
	Verbose         bool
}

// LoadEnvFiles overlays .env then .env.local onto the environment.
// Variables already exported win over file values; .env.local wins over
// .env for keys only the files define.
func LoadEnvFiles() {
	godotenv.Load(".env.local")
	godotenv.Load(".env")
}

// FromEnv builds a Config from the current environment.
func FromEnv() *Config {
	cfg := &Config{
		UpstreamURL:      envOrDefault("CODEX_UPSTREAM_URL", DefaultUpstreamURL),
		APIKey:           strings.TrimSpace(os.Getenv("CODEX_API_KEY")),
		Model:            envOrDefault("CODEX_MODEL", DefaultModel),
		Reasoning:        envOrDefault("CODEX_REASONING", DefaultReasoning),
		InstructionsFile: envOrDefault("CODEX_INSTRUCTIONS_FILE", DefaultInstructionsFile),

		Host:           envOrDefault("RELAY_HOST", DefaultHost),
		Port:           envInt("RELAY_PORT", DefaultPort),
		RelayAPIKey:    strings.TrimSpace(os.Getenv("RELAY_API_KEY")),
		MaxConcurrency: envInt("RELAY_MAX_CONCURRENCY", 0),
		MaxRetries:     envInt("RELAY_MAX_RETRIES", DefaultMaxRetries),
		Retry429:       envBoolDefault("RELAY_RETRY_429", true),

		ToolPayload:         envOrDefault("RELAY_TOOL_PAYLOAD", DefaultPayloadPolicy),
		ToolPayloadMaxChars: envInt("RELAY_TOOL_PAYLOAD_MAX_CHARS", DefaultPayloadMaxChars),
		Compat:              envBoolDefault("RELAY_COMPAT", true),

		MaxBodyBytes:    int64(envInt("RELAY_MAX_BODY_BYTES", DefaultMaxBodyBytes)),
		ReadTimeout:     envDurationMs("RELAY_READ_TIMEOUT_MS", DefaultReadTimeout),
		UpstreamTimeout: envDurationMs("RELAY_UPSTREAM_TIMEOUT_MS", DefaultUpstreamTimeout),
		Verbose:         envBool("RELAY_VERBOSE"),
	}
	switch cfg.ToolPayload {
	case "full", "truncate", "none":
	default:
		cfg.ToolPayload = DefaultPayloadPolicy
	}
	return cfg
}

// LoadInstructions reads the base instructions file. A missing file is not
// fatal; the relay then sends empty instructions.
func (c *Config) LoadInstructions() {
	data, err := os.ReadFile(c.InstructionsFile)
	if err != nil {
		return
	}
	c.Instructions = strings.TrimSpace(string(data))
}

// MissingForReady lists the settings that must be present before the relay
// can serve traffic.
func (c *Config) MissingForReady() []string {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "CODEX_API_KEY")
	}
	if c.UpstreamURL == "" {
		missing = append(missing, "CODEX_UPSTREAM_URL")
	}
	if c.Instructions == "" {
		missing = append(missing, "CODEX_INSTRUCTIONS (check CODEX_INSTRUCTIONS_FILE)")
	}
	return missing
}

func envOrDefault(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func envDurationMs(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return defaultVal
	}
	return time.Duration(ms) * time.Millisecond
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	return v == "1" || v == "true" || v == "yes" || v == "on"
}
