package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type pruneCommand struct {
	global *globalOptions
	format string
}

func newPruneCommand(global *globalOptions) *cobra.Command {
	pc := &pruneCommand{global: global}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Apply the retention policy and remove stale staging directories",
		Args:  cobra.NoArgs,
		RunE:  pc.run,
	}

	cmd.Flags().StringVar(&pc.format, "format", FormatTable, "Output format: table, json, yaml")

	return cmd
}

func (pc *pruneCommand) run(cmd *cobra.Command, _ []string) error {
	err := validateFormat(pc.format)
	if err != nil {
		return err
	}

	return pc.global.withSession(cmd, sessionOptions{}, func(ctx context.Context, s *session) error {
		result, pruneErr := s.engine.Prune(ctx)
		if result == nil {
			return pruneErr
		}

		out := cmd.OutOrStdout()

		done, err := writeStructured(out, pc.format, result)
		if done || pc.global.quiet {
			return errors.Join(pruneErr, err)
		}

		if len(result.Evicted) == 0 {
			fmt.Fprintln(out, "Nothing to evict")
		} else {
			okColor.Fprintf(out, "Evicted %d: %s\n", len(result.Evicted), strings.Join(result.Evicted, ", "))
		}

		if len(result.Protected) > 0 {
			infoColor.Fprintf(out, "Kept for restorable chains: %s\n", strings.Join(result.Protected, ", "))
		}

		if len(result.Staging) > 0 {
			fmt.Fprintf(out, "Removed %d stale staging directories\n", len(result.Staging))
		}

		return pruneErr
	})
}
