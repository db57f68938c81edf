// Package config persists application settings in the database with the
// LLM API key encrypted at rest.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/manthysbr/lineOS/internal/core/domain"
)

// SettingsRepository is the minimal DB interface for settings persistence.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key string, value string) error
}

// OnChangeFunc is called when settings are updated.
type OnChangeFunc func(cfg *domain.AppConfig)

// SettingsStore manages persistent settings with encrypted secrets.
// Settings are stored as one JSON document; the API key is encrypted at
// rest and masked on read.
type SettingsStore struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	secret   *SecretKey
	repo     SettingsRepository
	config   *domain.AppConfig
	onChange []OnChangeFunc
}

// NewSettingsStore loads settings from the DB, falling back to defaults
// overlaid with environment variables on first boot.
func NewSettingsStore(logger *slog.Logger, repo SettingsRepository, secret *SecretKey) (*SettingsStore, error) {
	store := &SettingsStore{
		logger: logger,
		secret: secret,
		repo:   repo,
	}

	ctx := context.Background()
	cfg, err := store.loadFromDB(ctx)
	if err != nil {
		logger.Warn("no saved settings found, using defaults", "error", err)
		cfg = configFromEnv()
		if err := store.saveToDB(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	store.config = cfg
	return store, nil
}

// configFromEnv overlays environment variables on the defaults. Useful
// for container deployments where the settings API is never called.
func configFromEnv() *domain.AppConfig {
	cfg := domain.DefaultConfig()
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LINE_REACT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Agent.ReactEnabled = b
		}
	}
	if v := os.Getenv("LINE_REACT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.ReactMaxIterations = n
		}
	}
	return cfg
}

// OnChange registers a callback for when settings are updated.
// Used to hot-swap the LLM provider.
func (s *SettingsStore) OnChange(fn OnChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// GetConfig returns the current config with decrypted secrets.
func (s *SettingsStore) GetConfig() *domain.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := *s.config
	return &cp
}

// GetMaskedConfig returns config safe for API responses (secrets masked).
func (s *SettingsStore) GetMaskedConfig() *domain.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := *s.config
	cp.LLM.APIKey = MaskSecret(s.config.LLM.APIKey)
	return &cp
}

// UpdateConfig validates, encrypts secrets, persists, and triggers
// onChange callbacks. If the update carries an empty or masked API key,
// the existing key is kept.
func (s *SettingsStore) UpdateConfig(ctx context.Context, update *domain.AppConfig) error {
	callbacks, err := s.applyUpdate(ctx, update)
	if err != nil {
		return err
	}
	// Callbacks run outside the lock; they may read config back.
	for _, fn := range callbacks {
		fn(update)
	}
	return nil
}

func (s *SettingsStore) applyUpdate(ctx context.Context, update *domain.AppConfig) ([]OnChangeFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.LLM.APIKey == "" || isMasked(update.LLM.APIKey) {
		update.LLM.APIKey = s.config.LLM.APIKey
	}
	if update.LLM.BaseURL == "" {
		return nil, fmt.Errorf("llm base_url is required")
	}
	if update.LLM.Model == "" {
		update.LLM.Model = s.config.LLM.Model
	}
	if update.Agent.ReactMaxIterations <= 0 {
		update.Agent.ReactMaxIterations = domain.DefaultMaxIterations
	}
	if update.Agent.SummaryInterval <= 0 {
		update.Agent.SummaryInterval = s.config.Agent.SummaryInterval
	}
	if update.Agent.MemoryLimit <= 0 {
		update.Agent.MemoryLimit = s.config.Agent.MemoryLimit
	}

	if err := s.saveToDB(ctx, update); err != nil {
		return nil, err
	}

	s.config = update
	s.logger.Info("settings updated",
		"model", update.LLM.Model,
		"react_enabled", update.Agent.ReactEnabled,
	)

	callbacks := make([]OnChangeFunc, len(s.onChange))
	copy(callbacks, s.onChange)
	return callbacks, nil
}

func (s *SettingsStore) loadFromDB(ctx context.Context) (*domain.AppConfig, error) {
	raw, err := s.repo.GetSetting(ctx, "app_config")
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("settings not initialized")
	}

	var stored storedConfig
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	cfg := &domain.AppConfig{
		LLM: domain.LLMConfig{
			BaseURL:     stored.LLM.BaseURL,
			Model:       stored.LLM.Model,
			Temperature: stored.LLM.Temperature,
		},
		Agent: stored.Agent,
	}

	if stored.LLM.EncryptedAPIKey != "" {
		key, err := s.secret.Decrypt(stored.LLM.EncryptedAPIKey)
		if err != nil {
			s.logger.Warn("failed to decrypt LLM API key", "error", err)
		} else {
			cfg.LLM.APIKey = key
		}
	}

	return cfg, nil
}

func (s *SettingsStore) saveToDB(ctx context.Context, cfg *domain.AppConfig) error {
	stored := storedConfig{
		LLM: storedLLMConfig{
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
		},
		Agent: cfg.Agent,
	}

	if cfg.LLM.APIKey != "" {
		enc, err := s.secret.Encrypt(cfg.LLM.APIKey)
		if err != nil {
			return fmt.Errorf("encrypt LLM API key: %w", err)
		}
		stored.LLM.EncryptedAPIKey = enc
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	return s.repo.SaveSetting(ctx, "app_config", string(raw))
}

// storedConfig is the DB representation with the API key encrypted.
type storedConfig struct {
	LLM   storedLLMConfig    `json:"llm"`
	Agent domain.AgentConfig `json:"agent"`
}

type storedLLMConfig struct {
	BaseURL         string  `json:"base_url"`
	EncryptedAPIKey string  `json:"encrypted_api_key,omitempty"`
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
}

func isMasked(s string) bool {
	return len(s) >= 4 && s[:4] == "****"
}
