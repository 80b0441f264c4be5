// Package commands implements CLI command handlers for rewind.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rewind/pkg/changelog"
	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
	"github.com/Sumatoshi-tech/rewind/pkg/config"
	"github.com/Sumatoshi-tech/rewind/pkg/fingerprint"
	"github.com/Sumatoshi-tech/rewind/pkg/observability"
	"github.com/Sumatoshi-tech/rewind/pkg/tracked"
	"github.com/Sumatoshi-tech/rewind/pkg/version"
)

// ErrChangelogDisabled is returned by commands that need the changelog when
// changelog.enabled is false.
var ErrChangelogDisabled = errors.New("changelog is disabled (changelog.enabled=false)")

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	project    string
	verbose    bool
	quiet      bool
	noColor    bool
}

// NewRootCommand builds the rewind command tree without the version command.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "rewind",
		Short: "Rewind - local project checkpoints",
		Long: `Rewind captures point-in-time copies of a project's files and restores
any captured state on demand.

Commands:
  create    Capture a checkpoint
  list      List checkpoints
  restore   Restore a checkpoint (an emergency backup is taken first)
  changes   Show changes since the latest checkpoint
  diff      Compare files with a checkpoint
  log       Show the action history
  prune     Apply retention
  watch     Create checkpoints automatically as files change`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if opts.noColor && !color.NoColor {
				color.NoColor = true //nolint:reassign // intentional override of library global
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: .rewind.yaml in project or $HOME)")
	root.PersistentFlags().StringVarP(&opts.project, "project", "C", ".", "Project directory")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress output")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newCreateCommand(opts),
		newListCommand(opts),
		newRestoreCommand(opts),
		newChangesCommand(opts),
		newDiffCommand(opts),
		newLogCommand(opts),
		newPruneCommand(opts),
		newWatchCommand(opts),
	)

	return root
}

// session is everything a command needs to talk to one project.
type session struct {
	root      string
	cfg       *config.Config
	engine    *checkpoint.Engine
	history   *changelog.SQLiteSink
	lister    *tracked.GitignoreLister
	providers observability.Providers
	logger    *slog.Logger
}

// sessionOptions tune how a session is opened.
type sessionOptions struct {
	mode       observability.AppMode
	prometheus bool
}

func (o *globalOptions) open(cmd *cobra.Command, so sessionOptions) (*session, error) {
	root, err := filepath.Abs(o.project)
	if err != nil {
		return nil, fmt.Errorf("resolve project: %w", err)
	}

	cfg, err := config.LoadConfig(o.configPath, root)
	if err != nil {
		return nil, err
	}

	if so.mode == "" {
		so.mode = observability.ModeCLI
	}

	obsCfg := cfg.Observability(so.mode, version.Version)
	obsCfg.Prometheus = so.prometheus
	obsCfg.LogOutput = cmd.ErrOrStderr()

	switch {
	case o.verbose:
		obsCfg.LogLevel = slog.LevelDebug
	case o.quiet:
		obsCfg.LogLevel = slog.LevelError
	}

	providers, err := observability.Init(cmd.Context(), obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	s := &session{root: root, cfg: cfg, providers: providers, logger: providers.Logger}

	err = s.build()
	if err != nil {
		return nil, errors.Join(err, s.close(cmd.Context()))
	}

	return s, nil
}

func (s *session) build() error {
	policy, err := s.cfg.Policy()
	if err != nil {
		return err
	}

	metrics, err := observability.NewCheckpointMetrics(s.providers.Meter)
	if err != nil {
		return err
	}

	var sink changelog.Sink = changelog.NopSink{}

	if s.cfg.Changelog.Enabled {
		s.history, err = changelog.OpenSQLite(s.cfg.ChangelogPath(s.root), s.logger)
		if err != nil {
			return err
		}

		sink = s.history
	}

	s.lister = tracked.NewGitignoreLister(
		tracked.WithPatterns(s.cfg.Tracking.Ignore),
		tracked.WithGitignore(s.cfg.Tracking.UseGitignore),
		tracked.WithLogger(s.logger),
	)

	s.engine, err = checkpoint.NewEngine(s.root, policy,
		checkpoint.WithStoreDir(s.cfg.StoreDir(s.root)),
		checkpoint.WithLister(s.lister),
		checkpoint.WithHasher(fingerprint.NewHasher(s.cfg.Hashing.Workers, s.logger)),
		checkpoint.WithSink(sink),
		checkpoint.WithLogger(s.logger),
		checkpoint.WithTracer(s.providers.Tracer),
		checkpoint.WithMetrics(metrics),
	)

	return err
}

func (s *session) close(ctx context.Context) error {
	var historyErr error

	if s.history != nil {
		historyErr = s.history.Close()
	}

	if ctx == nil {
		ctx = context.Background()
	}

	return errors.Join(historyErr, s.providers.Shutdown(ctx))
}

// withSession opens a session, runs fn, and closes the session.
func (o *globalOptions) withSession(
	cmd *cobra.Command,
	so sessionOptions,
	fn func(ctx context.Context, s *session) error,
) (err error) {
	s, err := o.open(cmd, so)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, s.close(context.WithoutCancel(cmd.Context())))
	}()

	return fn(cmd.Context(), s)
}
