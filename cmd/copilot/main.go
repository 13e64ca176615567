package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/parallels/devops-copilot/common/environment"
	"github.com/parallels/devops-copilot/common/version"
	"github.com/parallels/devops-copilot/internal/copilot/app"
	"github.com/parallels/devops-copilot/internal/copilot/observability"
)

func main() {
	observability.Setup(
		environment.StringOr(environment.Key("LOG_LEVEL"), "info"),
		environment.StringOr(environment.Key("LOG_FORMAT"), "text"),
	)
	slog.Info("devops copilot", "version", version.Info())

	config := app.ConfigFromEnv()
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if config.Core.LLM.APIKey == "" {
		slog.Warn("COPILOT_LLM_API_KEY is not set; only endpoints that accept anonymous requests will work")
	}

	copilot, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize the copilot: %v\n", err)
		os.Exit(1)
	}
	defer copilot.Stop()

	if err := copilot.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running the copilot: %v\n", err)
		os.Exit(1)
	}
}
