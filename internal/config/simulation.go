package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spachava753/peerlab/internal/models"
)

const (
	defaultTopic   = "Improving sentiment analysis in natural language processing"
	defaultModel   = "gemini-2.0-flash-lite"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
)

// DefaultSimulationConfig returns a SimulationConfig with default values.
func DefaultSimulationConfig() models.SimulationConfig {
	return models.SimulationConfig{
		Topic:         defaultTopic,
		MaxSteps:      100,
		LogDir:        "logs",
		LogLevel:      "info",
		ConsoleOutput: true,
		Reward:        models.RewardBounds{Min: 1, Max: 1000},
		Panel:         models.PanelConfig{Concurrency: 1},
		LLM: models.LLMConfig{
			BaseURL:        defaultBaseURL,
			Model:          defaultModel,
			Temperature:    0.7,
			MaxTokens:      2048,
			TimeoutSeconds: 120,
		},
		Retry: models.RetryConfig{
			MaxAttempts:    5,
			InitialDelayMs: 1000,
			MaxDelayMs:     30000,
			Multiplier:     2.0,
		},
		GitHub: models.GitHubConfig{
			Repo: "ai-scientists-research",
		},
		Sandbox: models.SandboxConfig{
			Type: "none",
		},
	}
}

// LoadSimulationConfig loads and parses a config.yaml file.
func LoadSimulationConfig(path string) (models.SimulationConfig, error) {
	cfg := DefaultSimulationConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading simulation config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing simulation config: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyDefaults fills values an explicit but empty yaml key may have zeroed.
func applyDefaults(cfg *models.SimulationConfig) {
	def := DefaultSimulationConfig()
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = def.MaxSteps
	}
	if cfg.LogDir == "" {
		cfg.LogDir = def.LogDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.Reward.Min == 0 && cfg.Reward.Max == 0 {
		cfg.Reward = def.Reward
	}
	if cfg.Panel.Concurrency <= 0 {
		cfg.Panel.Concurrency = 1
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = def.LLM.BaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		cfg.LLM.TimeoutSeconds = def.LLM.TimeoutSeconds
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = def.Retry
	}
	if cfg.GitHub.Repo == "" {
		cfg.GitHub.Repo = def.GitHub.Repo
	}
	if cfg.Sandbox.Type == "" {
		cfg.Sandbox.Type = def.Sandbox.Type
	}
}

// Validate checks a resolved configuration.
func Validate(cfg models.SimulationConfig) error {
	if cfg.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be positive, got %d", cfg.MaxSteps)
	}
	if cfg.Reward.Min > cfg.Reward.Max {
		return fmt.Errorf("reward: min %d exceeds max %d", cfg.Reward.Min, cfg.Reward.Max)
	}
	if cfg.Review.MaxAttempts < 0 {
		return fmt.Errorf("review.max_attempts must not be negative, got %d", cfg.Review.MaxAttempts)
	}
	for i, a := range cfg.Agents {
		if !a.Role.Valid() {
			return fmt.Errorf("agents[%d]: role must be A or B, got %q", i, a.Role)
		}
	}
	if cfg.Panel.RosterPath != "" && cfg.Panel.RosterURL != "" {
		return fmt.Errorf("panel: cannot specify both 'roster_path' and 'roster_url'")
	}
	switch cfg.Sandbox.Type {
	case "none", "docker", "modal":
	default:
		return fmt.Errorf("sandbox: unsupported type %q", cfg.Sandbox.Type)
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel maps a log_level value to a slog level. The empty string is
// info.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// ApplyEnv overlays credentials and endpoints from the environment. lookup is
// usually os.LookupEnv.
func ApplyEnv(cfg *models.SimulationConfig, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.GitHub.TokenA, "GITHUB_TOKEN_A")
	set(&cfg.GitHub.TokenB, "GITHUB_TOKEN_B")
	set(&cfg.GitHub.Owner, "GITHUB_OWNER")
	set(&cfg.LLM.APIKey, "GEMINI_API_KEY")
	set(&cfg.LLM.BaseURL, "PEERLAB_LLM_BASE_URL")
}

// CheckCredentials reports the first missing secret needed for a live run.
func CheckCredentials(cfg models.SimulationConfig) error {
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("text generation API key not provided: set GEMINI_API_KEY")
	}
	if cfg.GitHub.Offline {
		return nil
	}
	if cfg.GitHub.TokenA == "" {
		return fmt.Errorf("GitHub token for scientist A not provided: set GITHUB_TOKEN_A")
	}
	if cfg.GitHub.TokenB == "" {
		return fmt.Errorf("GitHub token for scientist B not provided: set GITHUB_TOKEN_B")
	}
	if cfg.GitHub.Owner == "" {
		return fmt.Errorf("GitHub owner not provided: set GITHUB_OWNER or github.owner")
	}
	return nil
}
