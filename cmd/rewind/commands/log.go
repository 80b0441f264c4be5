package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rewind/pkg/changelog"
)

type logCommand struct {
	global *globalOptions
	limit  int
	format string
}

func newLogCommand(global *globalOptions) *cobra.Command {
	lc := &logCommand{global: global}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the history of create, restore, and retention actions",
		Args:  cobra.NoArgs,
		RunE:  lc.run,
	}

	cmd.Flags().IntVarP(&lc.limit, "limit", "n", changelog.DefaultLimit, "Maximum entries to show")
	cmd.Flags().StringVar(&lc.format, "format", FormatTable, "Output format: table, json, yaml")

	return cmd
}

func (lc *logCommand) run(cmd *cobra.Command, _ []string) error {
	err := validateFormat(lc.format)
	if err != nil {
		return err
	}

	return lc.global.withSession(cmd, sessionOptions{}, func(ctx context.Context, s *session) error {
		if s.history == nil {
			return ErrChangelogDisabled
		}

		entries, err := s.history.Entries(ctx, lc.limit)
		if err != nil {
			return err
		}

		if entries == nil {
			entries = []changelog.Entry{}
		}

		done, err := writeStructured(cmd.OutOrStdout(), lc.format, entries)
		if done {
			return err
		}

		renderEntries(cmd.OutOrStdout(), entries)

		return nil
	})
}

func renderEntries(w io.Writer, entries []changelog.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history")

		return
	}

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"When", "Action", "Checkpoint", "Kind", "Files", "Bytes", "Detail"})

	for _, entry := range entries {
		tbl.AppendRow(table.Row{
			humanize.Time(entry.Time),
			opLabel(entry.Op),
			entry.Checkpoint,
			entry.Kind,
			entry.Files,
			humanize.IBytes(uint64(max(entry.Bytes, 0))),
			entry.Detail,
		})
	}

	tbl.Render()
}

func opLabel(op changelog.Op) string {
	switch op {
	case changelog.OpCreate:
		return okColor.Sprint(op)
	case changelog.OpRestore:
		return infoColor.Sprint(op)
	case changelog.OpBackup:
		return warnColor.Sprint(op)
	default:
		return errColor.Sprint(op)
	}
}
