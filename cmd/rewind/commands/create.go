package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
)

type createCommand struct {
	global      *globalOptions
	description string
	full        bool
	force       bool
}

func newCreateCommand(global *globalOptions) *cobra.Command {
	cc := &createCommand{global: global}

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Capture a checkpoint of the project",
		Long: `Capture a checkpoint of the project's tracked files.

The engine stores a FULL copy or an INCREMENTAL delta depending on the
configured policy. Nothing is written when no files are tracked, when the
latest checkpoint is younger than the cooldown, or when nothing changed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: cc.run,
	}

	cmd.Flags().StringVarP(&cc.description, "description", "d", "", "Checkpoint description")
	cmd.Flags().BoolVar(&cc.full, "full", false, "Force a FULL checkpoint")
	cmd.Flags().BoolVar(&cc.force, "force", false, "Create even within the cooldown or without changes")

	return cmd
}

func (cc *createCommand) run(cmd *cobra.Command, args []string) error {
	opts := checkpoint.CreateOptions{
		Description: cc.description,
		ForceFull:   cc.full,
		Force:       cc.force,
	}

	if len(args) == 1 {
		opts.Name = args[0]
	}

	return cc.global.withSession(cmd, sessionOptions{}, func(ctx context.Context, s *session) error {
		result, err := s.engine.Create(ctx, opts)
		if err != nil {
			return err
		}

		if !cc.global.quiet {
			printCreateResult(cmd.OutOrStdout(), result)
		}

		return nil
	})
}

func printCreateResult(w io.Writer, result *checkpoint.CreateResult) {
	switch result.Outcome {
	case checkpoint.OutcomeCreated:
		cp := result.Checkpoint
		okColor.Fprintf(w, "Created %s checkpoint %s\n", cp.Kind, cp.Name)
		fmt.Fprintf(w, "  files: %d  stored: %s  changes: +%d ~%d -%d\n",
			len(cp.Files), humanize.IBytes(uint64(max(cp.Stats.BytesStored, 0))),
			len(result.Changes.Added), len(result.Changes.Modified), len(result.Changes.Deleted))

		if len(result.Evicted) > 0 {
			infoColor.Fprintf(w, "  evicted: %s\n", strings.Join(result.Evicted, ", "))
		}
	case checkpoint.OutcomeNoFiles:
		warnColor.Fprintln(w, "No tracked files; nothing to checkpoint")
	case checkpoint.OutcomeTooRecent:
		warnColor.Fprintf(w, "Latest checkpoint is too recent; retry in %s or use --force\n",
			result.RetryAfter.Round(time.Second))
	case checkpoint.OutcomeNoChanges:
		warnColor.Fprintln(w, "No changes since the latest checkpoint")
	}
}
