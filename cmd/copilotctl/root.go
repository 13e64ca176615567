package main

import (
	"context"
	"fmt"
	"os"
	"os/user"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/parallels/devops-copilot/common/environment"
	"github.com/parallels/devops-copilot/common/version"
	"github.com/parallels/devops-copilot/internal/copilot/app"
	"github.com/parallels/devops-copilot/internal/copilot/conversation"
	"github.com/parallels/devops-copilot/internal/copilot/observability"
	"github.com/parallels/devops-copilot/internal/copilot/store"
)

// cliRoom is the room ID recorded for turns started from the terminal.
const cliRoom = "cli"

var (
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copilotctl",
		Short: "Talk to the virtual machine copilot from a terminal",
		Long: `copilotctl sends natural-language requests through the same pipeline as
the Matrix bot: intents are extracted, run against the local machines and
the provider registry, and summarised into a single reply.

Configuration comes from COPILOT_* environment variables, for example
COPILOT_DATABASE_PATH, COPILOT_REGISTRY_PATH and COPILOT_LLM_API_KEY.

Quick start:
  copilotctl ask "how many machines are running?"
  copilotctl chat
  copilotctl audit tail 20`,
		Version:       version.Info(),
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level, _ := cmd.Flags().GetString("log-level")
			observability.SetupWriter(cmd.ErrOrStderr(), level,
				environment.StringOr(environment.Key("LOG_FORMAT"), "text"))
		},
	}

	cmd.PersistentFlags().String("log-level",
		environment.StringOr(environment.Key("LOG_LEVEL"), "warn"),
		"Log level: debug, info, warn or error")

	cmd.AddCommand(askCommand())
	cmd.AddCommand(chatCommand())
	cmd.AddCommand(auditCommand())
	cmd.AddCommand(historyCommand())
	cmd.AddCommand(configCommand())

	return cmd
}

// openCore builds the full pipeline with progress notes going to stderr.
func openCore(cmd *cobra.Command) (*app.Core, error) {
	stderr := cmd.ErrOrStderr()
	return app.BuildCore(app.CoreConfigFromEnv(), func(_ context.Context, message string) {
		fmt.Fprintln(stderr, progressStyle.Render(message))
	})
}

// openStore opens only the database, for commands that do not talk to the
// engine or the machine host.
func openStore() (*store.Store, error) {
	return store.New(app.CoreConfigFromEnv().DatabasePath)
}

// newTurn addresses text as coming from the local user.
func newTurn(text string) conversation.Turn {
	sender := environment.StringOr(environment.Key("CLI_SENDER"), "")
	if sender == "" {
		if u, err := user.Current(); err == nil {
			sender = u.Username
		} else {
			sender = os.Getenv("USER")
		}
	}
	return conversation.Turn{RoomID: cliRoom, Sender: sender, Text: text}
}
