package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/rewind/internal/watch"
	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
	"github.com/Sumatoshi-tech/rewind/pkg/observability"
)

type watchCommand struct {
	global      *globalOptions
	debounce    time.Duration
	metricsAddr string
}

func newWatchCommand(global *globalOptions) *cobra.Command {
	wc := &watchCommand{global: global}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Create checkpoints automatically as files change",
		Long: `Watch the project and create a checkpoint after each burst of changes
settles. The cooldown and no-change rules still apply, so rapid edits do not
flood the store. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: wc.run,
	}

	cmd.Flags().DurationVar(&wc.debounce, "debounce", 0, "Quiet period before a checkpoint (default: watch.debounce)")
	cmd.Flags().StringVar(&wc.metricsAddr, "metrics-addr", "", "Serve metrics and health checks on this address (default: watch.metrics_addr)")

	return cmd
}

func (wc *watchCommand) run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.SetContext(ctx)

	// The metrics address may come from config, so the registry is always built.
	so := sessionOptions{mode: observability.ModeWatch, prometheus: true}

	return wc.global.withSession(cmd, so, func(ctx context.Context, s *session) error {
		debounce := wc.debounce
		if debounce <= 0 {
			debounce = s.cfg.Watch.Debounce
		}

		addr := wc.metricsAddr
		if addr == "" {
			addr = s.cfg.Watch.MetricsAddr
		}

		matcher, err := s.lister.Matcher(s.root)
		if err != nil {
			return err
		}

		watcher, err := watch.New(s.root, s.engine,
			watch.WithDebounce(debounce),
			watch.WithMatcher(matcher),
			watch.WithSkipDirs(s.cfg.StoreDir(s.root)),
			watch.WithLogger(s.logger),
		)
		if err != nil {
			return err
		}

		initial, err := s.engine.Create(ctx, checkpoint.CreateOptions{Description: "watch started"})
		if err != nil {
			s.logger.WarnContext(ctx, "watch: initial checkpoint failed", slog.String("error", err.Error()))
		} else if !wc.global.quiet {
			printCreateResult(cmd.OutOrStdout(), initial)
		}

		if !wc.global.quiet {
			infoColor.Fprintf(cmd.OutOrStdout(), "Watching %s (debounce %s)\n", s.root, debounce)
		}

		group, groupCtx := errgroup.WithContext(ctx)

		group.Go(func() error { return watcher.Run(groupCtx) })

		if addr != "" {
			diag, diagErr := observability.NewDiagnosticsServer(addr, s.providers.MetricsHandler, storeReady(s))
			if diagErr != nil {
				return diagErr
			}

			s.logger.InfoContext(ctx, "watch: diagnostics listening", slog.String("addr", diag.Addr()))

			group.Go(func() error { return diag.Serve(groupCtx) })
		}

		return group.Wait()
	})
}

// storeReady reports the checkpoint store as ready once it can be listed.
func storeReady(s *session) observability.ReadyCheck {
	return func(ctx context.Context) error {
		_, err := s.engine.List(ctx)

		return err
	}
}
