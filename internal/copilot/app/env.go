package app

import (
	"fmt"
	"time"

	"github.com/parallels/devops-copilot/common/environment"
	"github.com/parallels/devops-copilot/internal/copilot/llm"
	"github.com/parallels/devops-copilot/internal/copilot/matrix"
	"github.com/parallels/devops-copilot/internal/copilot/memory"
	"github.com/parallels/devops-copilot/internal/copilot/nlp"
	"github.com/parallels/devops-copilot/internal/copilot/operations"
)

// CoreConfigFromEnv reads the pipeline settings shared by copilot and
// copilotctl. Runtime keys in the config store override the LLM model,
// endpoint and history length.
func CoreConfigFromEnv() CoreConfig {
	return CoreConfig{
		DatabasePath: environment.StringOr(environment.Key("DATABASE_PATH"), "./copilot.db"),
		RegistryPath: environment.StringOr(environment.Key("REGISTRY_PATH"), "./providers.yaml"),
		LLM: llm.Config{
			APIKey:        environment.StringOr(environment.Key("LLM_API_KEY"), ""),
			BaseURL:       environment.StringOr(environment.Key("LLM_ENDPOINT"), ""),
			Model:         environment.StringOr(environment.Key("LLM_MODEL"), ""),
			MaxTokens:     environment.IntOr(environment.Key("LLM_MAX_TOKENS"), 0),
			HeaderTimeout: environment.DurationOr(environment.Key("LLM_HEADER_TIMEOUT"), 0),
		},
		ManagedOnly:      environment.BoolOr(environment.Key("DOCKER_MANAGED_ONLY"), false),
		RateLimit:        environment.IntOr(environment.Key("RATE_LIMIT"), llm.DefaultRateLimit),
		RateWindow:       environment.DurationOr(environment.Key("RATE_WINDOW"), time.Minute),
		HistoryExchanges: environment.IntOr(environment.Key("HISTORY_EXCHANGES"), nlp.DefaultHistoryExchanges),
		MaxParallel:      environment.IntOr(environment.Key("MAX_PARALLEL"), operations.DefaultMaxParallel),
		Memory: memory.TrackerConfig{
			Cooldown:    environment.DurationOr(environment.Key("MEMORY_COOLDOWN"), 0),
			MaxMessages: environment.IntOr(environment.Key("MEMORY_MAX_MESSAGES"), 0),
			MaxTokens:   environment.IntOr(environment.Key("MEMORY_MAX_TOKENS"), 0),
		},
	}
}

// ConfigFromEnv reads the daemon configuration. Required Matrix settings are
// not checked here; see Validate.
func ConfigFromEnv() *Config {
	return &Config{
		Core: CoreConfigFromEnv(),
		Matrix: matrix.Config{
			Homeserver:     environment.StringOr(environment.Key("MATRIX_HOMESERVER"), ""),
			UserID:         environment.StringOr(environment.Key("MATRIX_USER_ID"), ""),
			AccessToken:    environment.StringOr(environment.Key("MATRIX_ACCESS_TOKEN"), ""),
			AdminRooms:     environment.StringSliceOr(environment.Key("MATRIX_ADMIN_ROOMS"), nil),
			AllowedSenders: environment.StringSliceOr(environment.Key("MATRIX_ALLOWED_SENDERS"), nil),
		},
		HTTPAddr:         environment.StringOr(environment.Key("HTTP_ADDR"), ""),
		RegistryDebounce: environment.DurationOr(environment.Key("REGISTRY_DEBOUNCE"), 200*time.Millisecond),
		StartupNotice:    environment.StringOr(environment.Key("STARTUP_NOTICE"), ""),
		ShutdownGrace:    environment.DurationOr(environment.Key("SHUTDOWN_GRACE"), 30*time.Second),
	}
}

// Validate reports the first missing required daemon setting.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"MATRIX_HOMESERVER", c.Matrix.Homeserver},
		{"MATRIX_USER_ID", c.Matrix.UserID},
		{"MATRIX_ACCESS_TOKEN", c.Matrix.AccessToken},
	}
	for _, r := range required {
		if r.value == "" {
			return missingSetting(r.name)
		}
	}
	if len(c.Matrix.AdminRooms) == 0 {
		return missingSetting("MATRIX_ADMIN_ROOMS")
	}
	return nil
}

func missingSetting(name string) error {
	return fmt.Errorf("app: %s is required", environment.Key(name))
}
