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

const defaultTail = 20

func auditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}
	cmd.AddCommand(auditTailCommand())
	cmd.AddCommand(auditShowCommand())
	return cmd
}

func auditTailCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail [n]",
		Short: "Print the most recent audit entries",
		Long: `Print the n most recent audit entries, newest first (default 20).

Examples:
  copilotctl audit tail
  copilotctl audit tail 50 -o json`,
		Args:         cobra.MaximumNArgs(1),
		RunE:         runAuditTail,
		SilenceUsage: true,
	}
	cmd.Flags().StringP("output", "o", "table", "Output format: table or json")
	return cmd
}

func auditShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "show <trace-id>",
		Short:        "Print every audit entry of one turn",
		Args:         cobra.ExactArgs(1),
		RunE:         runAuditShow,
		SilenceUsage: true,
	}
	cmd.Flags().StringP("output", "o", "table", "Output format: table or json")
	return cmd
}

func runAuditTail(cmd *cobra.Command, args []string) error {
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

	entries, err := s.GetAuditLog(context.Background(), n)
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	return writeAudit(cmd.OutOrStdout(), entries, output)
}

func runAuditShow(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.GetAuditByTrace(context.Background(), args[0])
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	return writeAudit(cmd.OutOrStdout(), entries, output)
}

func writeAudit(w io.Writer, entries []store.AuditEntry, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "table", "":
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No audit entries found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTRACE\tACTOR\tCATEGORY\tACTION\tTARGET\tRESULT\tMESSAGE")
	for _, e := range entries {
		msg := e.Message
		if e.ErrorMessage != "" {
			msg = e.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.TraceID,
			dash(e.Actor),
			dash(e.Category),
			dash(e.Action),
			dash(e.Target),
			dash(e.Result),
			dash(msg),
		)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
