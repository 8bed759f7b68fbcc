// Package config resolves runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	// EmbeddingModel is the OpenAI model used for both indexing and queries.
	// Indexing and query embeddings must come from the same model.
	EmbeddingModel = "text-embedding-3-small"

	// EmbeddingDimension is the single source of truth for vector dimension.
	// It is validated against the live Qdrant collection at startup; a
	// mismatch aborts startup rather than corrupting the index.
	EmbeddingDimension = 1536

	// DefaultChatModel answers questions when CHAT_MODEL is unset.
	DefaultChatModel = "gpt-4o"

	// DefaultTopK is the number of chunks retrieved per question.
	DefaultTopK = 6

	// DefaultMinScore discards retrieved chunks below this similarity.
	DefaultMinScore = 0.35
)

// Role is a caller role used for rate-limit tier selection.
type Role string

const (
	RolePlayer    Role = "player"
	RolePremium   Role = "premium"
	RoleAdmin     Role = "admin"
	RoleAnonymous Role = "anonymous"
)

// Tier bounds a caller's token bucket.
type Tier struct {
	MaxTokens       float64
	RefillPerSecond float64
}

// TierForRole resolves the admission-control bucket bounds for a role.
func TierForRole(role Role) Tier {
	switch role {
	case RoleAdmin:
		return Tier{MaxTokens: 120, RefillPerSecond: 2}
	case RolePremium:
		return Tier{MaxTokens: 60, RefillPerSecond: 1}
	case RolePlayer:
		return Tier{MaxTokens: 20, RefillPerSecond: 0.5}
	default:
		return Tier{MaxTokens: 5, RefillPerSecond: 0.1}
	}
}

// Config holds all environment-derived settings.
type Config struct {
	QdrantHost string
	QdrantPort int
	DataDir    string
	HTTPPort   string
	ChatModel  string
	TopK       int
	MinScore   float64

	// APIKeys maps an API key to its role. Parsed from API_KEYS, formatted
	// "key1:admin,key2:player". Callers without a key are identified by IP.
	APIKeys map[string]Role
}

// Load reads configuration from the environment with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		QdrantHost: getEnv("QDRANT_HOST", "localhost"),
		QdrantPort: getEnvInt("QDRANT_PORT", 6334),
		DataDir:    getEnv("DATA_DIR", ""),
		HTTPPort:   getEnv("PORT", "8080"),
		ChatModel:  getEnv("CHAT_MODEL", DefaultChatModel),
		TopK:       getEnvInt("RETRIEVAL_TOP_K", DefaultTopK),
		MinScore:   getEnvFloat("RETRIEVAL_MIN_SCORE", DefaultMinScore),
		APIKeys:    map[string]Role{},
	}

	if cfg.TopK <= 0 {
		return nil, fmt.Errorf("RETRIEVAL_TOP_K must be positive, got %d", cfg.TopK)
	}

	keys, err := parseAPIKeys(os.Getenv("API_KEYS"))
	if err != nil {
		return nil, err
	}
	cfg.APIKeys = keys

	return cfg, nil
}

func parseAPIKeys(raw string) (map[string]Role, error) {
	keys := map[string]Role{}
	if raw == "" {
		return keys, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, role, ok := strings.Cut(pair, ":")
		if !ok || key == "" {
			return nil, fmt.Errorf("API_KEYS entry %q is not key:role", pair)
		}
		switch Role(role) {
		case RolePlayer, RolePremium, RoleAdmin:
			keys[key] = Role(role)
		default:
			return nil, fmt.Errorf("API_KEYS entry %q has unknown role %q", pair, role)
		}
	}
	return keys, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return defaultValue
}
