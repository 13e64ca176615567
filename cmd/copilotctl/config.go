package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/parallels/devops-copilot/internal/copilot/config"
)

func configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and change runtime settings",
		Long: `Runtime settings live in the copilot database and override the matching
environment variables. Known keys: llm.model, llm.endpoint,
llm.history_exchanges.`,
	}
	cmd.AddCommand(&cobra.Command{
		Use:          "get <key>",
		Short:        "Print one setting",
		Args:         cobra.ExactArgs(1),
		RunE:         runConfigGet,
		SilenceUsage: true,
	})
	cmd.AddCommand(&cobra.Command{
		Use:          "set <key> <value>",
		Short:        "Change one setting",
		Args:         cobra.ExactArgs(2),
		RunE:         runConfigSet,
		SilenceUsage: true,
	})
	cmd.AddCommand(&cobra.Command{
		Use:          "unset <key>",
		Short:        "Remove one setting",
		Args:         cobra.ExactArgs(1),
		RunE:         runConfigUnset,
		SilenceUsage: true,
	})
	cmd.AddCommand(&cobra.Command{
		Use:          "list",
		Short:        "Print every setting",
		Args:         cobra.NoArgs,
		RunE:         runConfigList,
		SilenceUsage: true,
	})
	return cmd
}

func withConfig(fn func(ctx context.Context, cs config.Store) error) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(context.Background(), config.New(s))
}

func checkKey(key string) error {
	if !slices.Contains(config.Keys, key) {
		return fmt.Errorf("unknown key %q (known keys: %v)", key, config.Keys)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if err := checkKey(args[0]); err != nil {
		return err
	}
	return withConfig(func(ctx context.Context, cs config.Store) error {
		v, err := cs.Get(ctx, args[0])
		if errors.Is(err, config.ErrNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is not set\n", args[0])
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	})
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if err := checkKey(args[0]); err != nil {
		return err
	}
	return withConfig(func(ctx context.Context, cs config.Store) error {
		if err := cs.Set(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
		return nil
	})
}

func runConfigUnset(cmd *cobra.Command, args []string) error {
	if err := checkKey(args[0]); err != nil {
		return err
	}
	return withConfig(func(ctx context.Context, cs config.Store) error {
		if err := cs.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s unset\n", args[0])
		return nil
	})
}

func runConfigList(cmd *cobra.Command, _ []string) error {
	return withConfig(func(ctx context.Context, cs config.Store) error {
		values, err := cs.List(ctx)
		if err != nil {
			return err
		}
		if len(values) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No settings stored.")
			return nil
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tVALUE")
		for _, k := range keys {
			fmt.Fprintf(tw, "%s\t%s\n", k, values[k])
		}
		return tw.Flush()
	})
}
