// Package config holds global settings for the LexGate compliance
// gateway. Everything can be set via environment variables or
// programmatically.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds global settings for the LexGate filter and gateway.
type Config struct {
	// === Detection Thresholds ===
	// AdviceThreshold is the risk score at or above which a response
	// needs neutralization (default: 0.25).
	AdviceThreshold float64

	// === Filter Limits ===
	MaxStreamChunks int // Hard cap on chunks per streamed response (default: 1000)
	SinkConcurrency int // Max concurrent async audit writes (default: 64)

	// === Rule and Template Files ===
	// Empty paths mean the built-in rule and template sets.
	PatternRulesPath string // YAML pattern rules (env: LEXGATE_RULES)
	TemplatesPath    string // YAML replacement templates (env: LEXGATE_TEMPLATES)

	// === Audit Persistence ===
	AuditLogPath string // JSONL audit file path (default: "compliance_audit.jsonl")
	RedisAddr    string // Redis sink address, empty disables (env: LEXGATE_REDIS_ADDR)
	PostgresDSN  string // Postgres sink DSN, empty disables (env: LEXGATE_POSTGRES_DSN)

	// === Escalation Layers ===
	EnableSemantics bool   // Embedding similarity layer (requires Ollama)
	OllamaBaseURL   string // Embedding backend (default: http://localhost:11434)

	// === Server ===
	Port string // Listen port for serve mode (default: 8090)
}

// NewDefaultConfig creates a Config from environment with sensible
// defaults.
func NewDefaultConfig() *Config {
	return &Config{
		AdviceThreshold: GetEnvFloat("LEXGATE_ADVICE_THRESHOLD", 0.25),

		MaxStreamChunks: clampInt(GetEnvInt("LEXGATE_MAX_STREAM_CHUNKS", 1000), 1, 100000),
		SinkConcurrency: clampInt(GetEnvInt("LEXGATE_SINK_CONCURRENCY", 64), 1, 4096),

		PatternRulesPath: GetEnv("LEXGATE_RULES", ""),
		TemplatesPath:    GetEnv("LEXGATE_TEMPLATES", ""),

		AuditLogPath: GetEnv("LEXGATE_AUDIT_LOG", "compliance_audit.jsonl"),
		RedisAddr:    GetEnv("LEXGATE_REDIS_ADDR", ""),
		PostgresDSN:  GetEnv("LEXGATE_POSTGRES_DSN", ""),

		EnableSemantics: GetEnvBool("LEXGATE_ENABLE_SEMANTICS", false),
		OllamaBaseURL:   GetEnv("LEXGATE_OLLAMA_URL", "http://localhost:11434"),

		Port: GetEnv("LEXGATE_PORT", "8090"),
	}
}

// NewHighPrecisionConfig lowers the threshold for deployments where
// missed advice costs more than extra reviews.
func NewHighPrecisionConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.AdviceThreshold = 0.15
	return cfg
}

// NewConservativeConfig raises the threshold for high-volume deployments
// that tolerate more borderline content.
func NewConservativeConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.AdviceThreshold = 0.40
	return cfg
}

func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// Validate checks the configuration for values the filter cannot run
// with. Thresholds outside [0,1] would silently disable detection.
func (c *Config) Validate() error {
	var problems []string

	if c.AdviceThreshold < 0 || c.AdviceThreshold > 1 {
		problems = append(problems, fmt.Sprintf("advice threshold %.2f outside [0,1]", c.AdviceThreshold))
	}
	if c.MaxStreamChunks < 1 {
		problems = append(problems, "max stream chunks must be positive")
	}
	if c.EnableSemantics && c.OllamaBaseURL == "" {
		problems = append(problems, "semantics enabled without an embedding endpoint (set LEXGATE_OLLAMA_URL)")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// MustValidate calls Validate and fatally exits on failure. Call at
// startup before serving.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: Configuration validation failed: %v", err)
	}
	log.Println("[STARTUP] Configuration validated successfully")
}
