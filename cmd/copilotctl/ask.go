package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

func askCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <request>",
		Short: "Send one request and print the reply",
		Long: `Send a single natural-language request and print the reply on stdout.
Progress notes from long operations are printed on stderr.

Examples:
  copilotctl ask "stop demo1 and start demo2"
  copilotctl ask create web1 from ubuntu in the main catalog`,
		Args:         cobra.MinimumNArgs(1),
		RunE:         runAsk,
		SilenceUsage: true,
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fmt.Errorf("request must not be empty")
	}

	core, err := openCore(cmd)
	if err != nil {
		return err
	}
	defer core.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	reply := core.Handler.Handle(ctx, newTurn(text))
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}
