package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/parallels/devops-copilot/internal/copilot/store"
)

func historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [n]",
		Short: "Print the logged conversation of a room",
		Long: `Print the last n logged messages of a room, oldest first (default 20).
The room defaults to the one used by ask and chat.

Examples:
  copilotctl history
  copilotctl history 50 --room '!ops:example.com'
  copilotctl history --conversation 3f0c...`,
		Args:         cobra.MaximumNArgs(1),
		RunE:         runHistory,
		SilenceUsage: true,
	}
	cmd.Flags().String("room", cliRoom, "Room to read")
	cmd.Flags().String("conversation", "", "Print one conversation by ID instead of a room")
	cmd.Flags().StringP("output", "o", "table", "Output format: table or json")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	n := defaultTail
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("n must be a positive number, got %q", args[0])
		}
		n = v
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var msgs []store.ConversationMessage
	if id, _ := cmd.Flags().GetString("conversation"); id != "" {
		msgs, err = s.GetConversation(context.Background(), id)
	} else {
		room, _ := cmd.Flags().GetString("room")
		msgs, err = s.GetRoomConversationLog(context.Background(), room, n)
	}
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	return writeHistory(cmd.OutOrStdout(), msgs, output)
}

func writeHistory(w io.Writer, msgs []store.ConversationMessage, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(msgs)
	case "table", "":
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}

	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCONVERSATION\tSENDER\tROLE\tMESSAGE")
	for _, m := range msgs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			m.Timestamp.Local().Format("2006-01-02 15:04:05"),
			shortID(m.ConversationID),
			dash(m.Sender),
			m.Role,
			m.Content,
		)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return dash(id)
}
