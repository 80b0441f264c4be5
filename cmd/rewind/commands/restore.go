package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
)

type restoreCommand struct {
	global *globalOptions
	dryRun bool
	format string
}

func newRestoreCommand(global *globalOptions) *cobra.Command {
	rc := &restoreCommand{global: global}

	cmd := &cobra.Command{
		Use:   "restore <name>",
		Short: "Restore the project to a checkpoint",
		Long: `Restore the project's tracked files to the state captured by a checkpoint.

Before anything is changed a FULL emergency backup of the current state is
written, so a restore can itself be undone.`,
		Args: cobra.ExactArgs(1),
		RunE: rc.run,
	}

	cmd.Flags().BoolVar(&rc.dryRun, "dry-run", false, "Resolve the chain without touching files")
	cmd.Flags().StringVar(&rc.format, "format", FormatTable, "Output format: table, json, yaml")

	return cmd
}

func (rc *restoreCommand) run(cmd *cobra.Command, args []string) error {
	err := validateFormat(rc.format)
	if err != nil {
		return err
	}

	return rc.global.withSession(cmd, sessionOptions{}, func(ctx context.Context, s *session) error {
		result, err := s.engine.Restore(ctx, args[0], rc.dryRun)
		if err != nil {
			return err
		}

		done, err := writeStructured(cmd.OutOrStdout(), rc.format, result)
		if done || rc.global.quiet {
			return err
		}

		printRestoreResult(cmd.OutOrStdout(), result)

		return nil
	})
}

func printRestoreResult(w io.Writer, result *checkpoint.RestoreResult) {
	if result.DryRun {
		infoColor.Fprintf(w, "Would restore %s (%s, %s)\n", result.Target, result.Kind, result.Strategy)
	} else {
		okColor.Fprintf(w, "Restored %s (%s, %s)\n", result.Target, result.Kind, result.Strategy)
	}

	fmt.Fprintf(w, "  chain: %s\n", strings.Join(result.Chain, " -> "))

	if result.BackupName != "" {
		fmt.Fprintf(w, "  backup: %s\n", result.BackupName)
	}

	if !result.DryRun {
		fmt.Fprintf(w, "  written: %d  deleted: %d\n", result.Written, result.Deleted)
	}

	for _, warning := range result.Warnings {
		warnColor.Fprintf(w, "  warning: %s\n", warning)
	}
}
