package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL     string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Document search collaborator. Enabled iff an API key is present.
	SearchAPIKey  string
	SearchBaseURL string
	SearchEnabled bool
	SearchTimeout time.Duration

	// Text extraction collaborator for PDF documents.
	ExtractBaseURL string
	ExtractTimeout time.Duration

	// Model-assisted structured extraction (feature-flagged via ANTHROPIC_API_KEY).
	AnthropicAPIKey string
	LLMEnabled      bool
	LLMModel        string
	LLMTimeout      time.Duration

	// Acquisition tuning.
	MaxCandidateDocs int
	MaxReadingAge    time.Duration // 0 keeps cached readings forever

	// Audit findings publishing (optional).
	KafkaBrokers       []string
	KafkaFindingsTopic string
	KafkaEnabled       bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	searchTimeout, err := parseDuration("SEARCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	extractTimeout, err := parseDuration("EXTRACT_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	llmTimeout, err := parseDuration("LLM_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	maxReadingAge, err := parseOptionalDuration("MAX_READING_AGE")
	if err != nil {
		return nil, err
	}

	searchKey := os.Getenv("SEARCH_API_KEY")
	searchEnabled := searchKey != ""
	if v := os.Getenv("SEARCH_ENABLED"); v != "" {
		searchEnabled = v == "true"
	}

	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	llmEnabled := anthropicKey != ""
	if v := os.Getenv("LLM_ENABLED"); v != "" {
		llmEnabled = v == "true"
	}

	kafkaBrokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(kafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SearchAPIKey:  searchKey,
		SearchBaseURL: envOrDefault("SEARCH_BASE_URL", "https://api.firecrawl.dev"),
		SearchEnabled: searchEnabled,
		SearchTimeout: searchTimeout,

		ExtractBaseURL: os.Getenv("EXTRACT_BASE_URL"),
		ExtractTimeout: extractTimeout,

		AnthropicAPIKey: anthropicKey,
		LLMEnabled:      llmEnabled,
		LLMModel:        envOrDefault("LLM_MODEL", "claude-3-5-haiku-20241022"),
		LLMTimeout:      llmTimeout,

		MaxCandidateDocs: parsePositiveInt("MAX_CANDIDATE_DOCS", 3),
		MaxReadingAge:    maxReadingAge,

		KafkaBrokers:       kafkaBrokers,
		KafkaFindingsTopic: envOrDefault("KAFKA_FINDINGS_TOPIC", "chlorine-audit-findings"),
		KafkaEnabled:       kafkaEnabled,
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.SearchEnabled && cfg.SearchAPIKey == "" {
		return nil, errors.New("SEARCH_ENABLED is true but SEARCH_API_KEY is not set")
	}
	if cfg.LLMEnabled && cfg.AnthropicAPIKey == "" {
		return nil, errors.New("LLM_ENABLED is true but ANTHROPIC_API_KEY is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// parseOptionalDuration treats unset or "0" as disabled.
func parseOptionalDuration(key string) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
