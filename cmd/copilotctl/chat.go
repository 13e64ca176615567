package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/parallels/devops-copilot/internal/copilot/conversation"
)

func chatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Long: `Read requests line by line and answer each one. Follow-up requests such as
"start it too" use the conversation so far. Type "exit" or press Ctrl+D to
leave; Ctrl+C cancels the request in progress.`,
		Args:         cobra.NoArgs,
		RunE:         runChat,
		SilenceUsage: true,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	core, err := openCore(cmd)
	if err != nil {
		return err
	}
	defer core.Close()

	interactive := false
	if f, ok := cmd.InOrStdin().(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return chatLoop(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), interactive, core.Handler.Handle)
}

// chatLoop runs one turn per non-empty input line until EOF or "exit".
func chatLoop(in io.Reader, out, errOut io.Writer, interactive bool, handle func(context.Context, conversation.Turn) string) error {
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(errOut, promptStyle.Render("> "))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		reply := handle(ctx, newTurn(line))
		cancel()
		fmt.Fprintln(out, reply)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(errOut, errorStyle.Render("read input: "+err.Error()))
		return err
	}
	return nil
}
