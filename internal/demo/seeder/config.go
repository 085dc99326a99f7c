package seeder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	APIBaseURL   string
	APIKey       string
	Schema       string
	TableName    string
	RowCount     int
	EmbeddingDim int
	Seed         int64
	Existence    string
	VectorIndex  bool
	HTTPTimeout  time.Duration
	RunQuery     bool
}

func DefaultConfig() Config {
	return Config{
		APIBaseURL:   "http://localhost:8080",
		Schema:       "SQLUser",
		TableName:    "demo_patients",
		RowCount:     250,
		EmbeddingDim: 8,
		Seed:         time.Now().UTC().UnixNano(),
		Existence:    "drop",
		VectorIndex:  true,
		HTTPTimeout:  30 * time.Second,
		RunQuery:     true,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "IRISDM_DEMO_API_URL", &cfg.APIBaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "IRISDM_DEMO_API_KEY", &cfg.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "IRISDM_DEMO_SCHEMA", &cfg.Schema); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "IRISDM_DEMO_TABLE", &cfg.TableName); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "IRISDM_DEMO_ROW_COUNT", &cfg.RowCount); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "IRISDM_DEMO_EMBEDDING_DIM", &cfg.EmbeddingDim); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "IRISDM_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "IRISDM_DEMO_EXISTENCE", &cfg.Existence); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "IRISDM_DEMO_VECTOR_INDEX", &cfg.VectorIndex); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "IRISDM_DEMO_HTTP_TIMEOUT", &cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "IRISDM_DEMO_RUN_QUERY", &cfg.RunQuery); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return Config{}, fmt.Errorf("IRISDM_DEMO_API_URL is required")
	}
	if strings.TrimSpace(cfg.TableName) == "" {
		return Config{}, fmt.Errorf("IRISDM_DEMO_TABLE is required")
	}
	if cfg.RowCount <= 0 {
		return Config{}, fmt.Errorf("IRISDM_DEMO_ROW_COUNT must be positive")
	}
	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("IRISDM_DEMO_EMBEDDING_DIM must be positive")
	}
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	if value, ok := lookup(key); ok {
		*dst = strings.TrimSpace(value)
	}
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	if value, ok := lookup(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = parsed
	}
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	if value, ok := lookup(key); ok {
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = parsed
	}
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	if value, ok := lookup(key); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = parsed
	}
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	if value, ok := lookup(key); ok {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = parsed
	}
	return nil
}
