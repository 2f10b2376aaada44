package main

import "os"

// Config holds all environment-driven settings, read once at startup.
type Config struct {
	APIKey   string // shared secret expected in the X-API-KEY header
	HTTPAddr string
	// RedisAddr selects the persistent store; empty means the in-process map.
	RedisAddr string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string
}

// loadConfig reads configuration from the environment, applying defaults.
func loadConfig() Config {
	return Config{
		APIKey:    envOrDefault("HABITCARDS_API_KEY", "habitcards-dev-key"),
		HTTPAddr:  envOrDefault("HTTP_ADDR", ":5000"),
		RedisAddr: os.Getenv("REDIS_ADDR"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),

		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicBaseURL: envOrDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
		AnthropicModel:   envOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
