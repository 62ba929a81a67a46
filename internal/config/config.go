// Package config loads Live Memory's server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the immutable set of settings built once at startup and
// injected into every component that needs it. Nothing below this layer
// reads the environment directly.
type Config struct {
	// Object store.
	StoreEndpoint  string `envconfig:"LM_STORE_ENDPOINT" required:"true"`
	StoreAccessKey string `envconfig:"LM_STORE_ACCESS_KEY" required:"true"`
	StoreSecretKey string `envconfig:"LM_STORE_SECRET_KEY" required:"true"`
	StoreBucket    string `envconfig:"LM_STORE_BUCKET" required:"true"`
	StoreRegion    string `envconfig:"LM_STORE_REGION" default:"us-east-1"`

	// Language model.
	LLMEndpoint     string  `envconfig:"LM_LLM_ENDPOINT" required:"true"`
	LLMAPIKey       string  `envconfig:"LM_LLM_API_KEY" required:"true"`
	LLMModel        string  `envconfig:"LM_LLM_MODEL" default:"gpt-4o-mini"`
	LLMMaxTokens    int     `envconfig:"LM_LLM_MAX_TOKENS" default:"100000"`
	LLMTemperature  float64 `envconfig:"LM_LLM_TEMPERATURE" default:"0.3"`
	LLMPromptBudget int     `envconfig:"LM_LLM_PROMPT_TOKEN_BUDGET" default:"12000"`

	// Auth.
	BootstrapToken string `envconfig:"LM_BOOTSTRAP_TOKEN" required:"true"`

	// Server.
	Port int `envconfig:"LM_PORT" default:"8420"`

	// Consolidation & GC.
	ConsolidationTimeout time.Duration `envconfig:"LM_CONSOLIDATION_TIMEOUT" default:"600s"`
	MaxNotesPerRun       int           `envconfig:"LM_MAX_NOTES" default:"500"`
	GCMaxAgeDays         int           `envconfig:"LM_GC_MAX_AGE_DAYS" default:"7"`

	// Backup.
	BackupRetentionCount int `envconfig:"LM_BACKUP_RETENTION_COUNT" default:"5"`
}

// Load populates a Config from the process environment, applying defaults
// and failing fast on any missing required variable.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
