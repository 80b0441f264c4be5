package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
)

type changesCommand struct {
	global *globalOptions
	since  string
	format string
}

func newChangesCommand(global *globalOptions) *cobra.Command {
	cc := &changesCommand{global: global}

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Show files changed since the latest checkpoint",
		Args:  cobra.NoArgs,
		RunE:  cc.run,
	}

	cmd.Flags().StringVar(&cc.since, "since", "", "Compare with this checkpoint instead of the latest")
	cmd.Flags().StringVar(&cc.format, "format", FormatTable, "Output format: table, json, yaml")

	return cmd
}

func (cc *changesCommand) run(cmd *cobra.Command, _ []string) error {
	err := validateFormat(cc.format)
	if err != nil {
		return err
	}

	return cc.global.withSession(cmd, sessionOptions{}, func(ctx context.Context, s *session) error {
		var changes *checkpoint.ChangeSet

		if cc.since != "" {
			changes, err = s.engine.ChangesSince(ctx, cc.since)
		} else {
			changes, err = s.engine.ChangesSinceLast(ctx)
		}

		if err != nil {
			return err
		}

		done, err := writeStructured(cmd.OutOrStdout(), cc.format, changes)
		if done {
			return err
		}

		printChanges(cmd.OutOrStdout(), changes)

		return nil
	})
}

func printChanges(w io.Writer, changes *checkpoint.ChangeSet) {
	if changes.Empty() {
		fmt.Fprintln(w, "No changes")

		return
	}

	groups := []struct {
		mark  string
		paths []string
		color *color.Color
	}{
		{"+", changes.Added, okColor},
		{"~", changes.Modified, warnColor},
		{"-", changes.Deleted, errColor},
	}

	for _, group := range groups {
		for _, path := range group.paths {
			group.color.Fprintf(w, "%s %s\n", group.mark, path)
		}
	}

	fmt.Fprintf(w, "%d added, %d modified, %d deleted\n",
		len(changes.Added), len(changes.Modified), len(changes.Deleted))
}
