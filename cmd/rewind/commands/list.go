package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
)

type listCommand struct {
	global *globalOptions
	format string
}

func newListCommand(global *globalOptions) *cobra.Command {
	lc := &listCommand{global: global}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, newest first",
		Args:  cobra.NoArgs,
		RunE:  lc.run,
	}

	cmd.Flags().StringVar(&lc.format, "format", FormatTable, "Output format: table, json, yaml")

	return cmd
}

func (lc *listCommand) run(cmd *cobra.Command, _ []string) error {
	err := validateFormat(lc.format)
	if err != nil {
		return err
	}

	return lc.global.withSession(cmd, sessionOptions{}, func(ctx context.Context, s *session) error {
		summaries, err := s.engine.List(ctx)
		if err != nil {
			return err
		}

		if summaries == nil {
			summaries = []checkpoint.Summary{}
		}

		done, err := writeStructured(cmd.OutOrStdout(), lc.format, summaries)
		if done {
			return err
		}

		renderSummaries(cmd.OutOrStdout(), summaries)

		return nil
	})
}

func renderSummaries(w io.Writer, summaries []checkpoint.Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No checkpoints")

		return
	}

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Name", "Kind", "Created", "Files", "Size", "Chain", "Description"})

	for _, sum := range summaries {
		kind := kindLabel(sum.Kind)
		if sum.Emergency {
			kind += warnColor.Sprint(" (backup)")
		}

		chain := fmt.Sprintf("%d", sum.ChainLength)
		if !sum.Restorable {
			chain = errColor.Sprint("broken")
		}

		tbl.AppendRow(table.Row{
			sum.Name,
			kind,
			humanize.Time(sum.Timestamp),
			sum.Files,
			humanize.IBytes(uint64(max(sum.Size, 0))),
			chain,
			sum.Description,
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d checkpoints", len(summaries))})
	tbl.Render()
}

func kindLabel(kind checkpoint.Kind) string {
	if kind == checkpoint.KindFull {
		return fullColor.Sprint(kind)
	}

	return deltaColor.Sprint(kind)
}
