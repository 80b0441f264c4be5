package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/rewind/pkg/archive"
	"github.com/Sumatoshi-tech/rewind/pkg/changelog"
	"github.com/Sumatoshi-tech/rewind/pkg/fingerprint"
	"github.com/Sumatoshi-tech/rewind/pkg/observability"
	"github.com/Sumatoshi-tech/rewind/pkg/tracked"
)

// DefaultStoreDir is the store location relative to the project root.
const DefaultStoreDir = ".rewind/checkpoints"

// Span names.
const (
	spanCreate    = "rewind.create"
	spanRestore   = "rewind.restore"
	spanRetention = "rewind.retention"
)

// Outcome tells what a create request did.
type Outcome string

// Create outcomes. Only OutcomeCreated writes a checkpoint.
const (
	OutcomeCreated   Outcome = "created"
	OutcomeNoFiles   Outcome = "no_files"
	OutcomeTooRecent Outcome = "too_recent"
	OutcomeNoChanges Outcome = "no_changes"
)

// CreateOptions are the caller's knobs for one create request.
type CreateOptions struct {
	// Name is a human hint for the checkpoint name; it is slugged and
	// suffixed with the creation time.
	Name string
	// Description is free text stored in the manifest.
	Description string
	// ForceFull requests a FULL checkpoint.
	ForceFull bool
	// Force bypasses the cooldown and the no-changes check.
	Force bool
}

// CreateResult reports a create request.
type CreateResult struct {
	Outcome Outcome
	// Checkpoint is the written manifest; nil unless Outcome is OutcomeCreated.
	Checkpoint *Checkpoint
	// Changes is the change set relative to the previous latest checkpoint.
	Changes ChangeSet
	// Evicted lists checkpoints removed by retention after the write.
	Evicted []string
	// RetryAfter is the remaining cooldown for OutcomeTooRecent.
	RetryAfter time.Duration
}

// Created reports whether a checkpoint was written.
func (r *CreateResult) Created() bool {
	return r.Outcome == OutcomeCreated
}

// PruneResult reports a retention run.
type PruneResult struct {
	Evicted   []string `json:"evicted"   yaml:"evicted"`
	Protected []string `json:"protected" yaml:"protected"`
	Staging   []string `json:"staging"   yaml:"staging"`
}

// Engine runs checkpoint operations for one project directory. Calls are
// expected to be serialized by the caller.
type Engine struct {
	root     string
	storeDir string
	store    *Store
	policy   Policy
	lister   tracked.Lister
	hasher   *fingerprint.Hasher
	sink     changelog.Sink
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.CheckpointMetrics
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithStoreDir sets the store directory. Relative paths are resolved
// against the project root.
func WithStoreDir(dir string) Option {
	return func(e *Engine) {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(e.root, filepath.FromSlash(dir))
		}

		e.storeDir = dir
	}
}

// WithLister sets the tracked-file lister.
func WithLister(lister tracked.Lister) Option {
	return func(e *Engine) { e.lister = lister }
}

// WithHasher sets the fingerprint hasher.
func WithHasher(hasher *fingerprint.Hasher) Option {
	return func(e *Engine) { e.hasher = hasher }
}

// WithSink sets the changelog sink.
func WithSink(sink changelog.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithMetrics sets the metric instruments.
func WithMetrics(metrics *observability.CheckpointMetrics) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine for the project at root.
func NewEngine(root string, policy Policy, opts ...Option) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat project root: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", tracked.ErrNotDirectory, abs)
	}

	e := &Engine{
		root:     abs,
		storeDir: filepath.Join(abs, filepath.FromSlash(DefaultStoreDir)),
		policy:   policy,
		sink:     changelog.NopSink{},
		logger:   slog.Default(),
		tracer:   nooptrace.NewTracerProvider().Tracer(observability.InstrumentationName),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.store = NewStore(e.storeDir, e.logger)

	if e.lister == nil {
		e.lister = tracked.NewGitignoreLister(tracked.WithLogger(e.logger))
	}

	if e.hasher == nil {
		e.hasher = fingerprint.NewHasher(0, e.logger)
	}

	if e.metrics == nil {
		e.metrics = observability.NoopCheckpointMetrics()
	}

	if e.policy.Codec == "" {
		e.policy.Codec = DefaultPolicy().Codec
	}

	return e, nil
}

// Root returns the absolute project root.
func (e *Engine) Root() string {
	return e.root
}

// Store returns the checkpoint store.
func (e *Engine) Store() *Store {
	return e.store
}

// Policy returns the engine policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Create captures the current tracked-file state.
func (e *Engine) Create(ctx context.Context, opts CreateOptions) (result *CreateResult, err error) {
	ctx, span := e.tracer.Start(ctx, spanCreate)
	start := e.now()

	defer func() {
		e.metrics.RecordDuration(ctx, "create", observability.Status(err), e.now().Sub(start))
		endSpan(span, err)
	}()

	result, err = e.create(ctx, opts)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("checkpoint.outcome", string(result.Outcome)))

	if !result.Created() {
		e.metrics.RecordSkipped(ctx, string(result.Outcome))
		e.logger.InfoContext(ctx, "checkpoint skipped", slog.String("outcome", string(result.Outcome)))

		return result, nil
	}

	cp := result.Checkpoint
	span.SetAttributes(
		attribute.String("checkpoint.kind", string(cp.Kind)),
		attribute.Int("checkpoint.files", len(cp.Files)),
		attribute.Int64("checkpoint.bytes_stored", cp.Stats.BytesStored),
	)

	return result, nil
}

func (e *Engine) create(ctx context.Context, opts CreateOptions) (*CreateResult, error) {
	files, err := e.trackedFiles(ctx)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return &CreateResult{Outcome: OutcomeNoFiles}, nil
	}

	graph, err := e.store.Graph()
	if err != nil {
		return nil, err
	}

	latest := graph.Latest()
	now := e.now()

	if !opts.Force && latest != nil && e.policy.Cooldown > 0 {
		if elapsed := now.Sub(latest.Timestamp); elapsed < e.policy.Cooldown {
			return &CreateResult{Outcome: OutcomeTooRecent, RetryAfter: e.policy.Cooldown - elapsed}, nil
		}
	}

	set, files, err := e.fingerprint(ctx, files)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return &CreateResult{Outcome: OutcomeNoFiles}, nil
	}

	changes := DetectChanges(set, files, latest)
	if !opts.Force && latest != nil && changes.Empty() {
		return &CreateResult{Outcome: OutcomeNoChanges, Changes: changes}, nil
	}

	input := SelectionInput{
		ForceFull: opts.ForceFull,
		Last:      latest,
		Changed:   changes.Len(),
		Files:     len(files),
	}

	if latest != nil {
		chain, chainErr := graph.Resolve(latest.Name)
		if chainErr != nil {
			e.logger.WarnContext(ctx, "latest checkpoint is unrestorable, forcing full",
				slog.String("name", latest.Name), slog.String("error", chainErr.Error()))
		}

		input.LastChain = chain
	}

	snap := snapshot{
		name:        e.newName(graph, now, opts.Name, opts.Description),
		description: opts.Description,
		kind:        e.policy.SelectKind(input),
		timestamp:   now,
		files:       files,
		set:         set,
		base:        latest,
		changes:     changes,
		codec:       e.policy.Codec,
		level:       e.policy.CompressionLevel,
	}

	cp, err := e.store.write(ctx, e.root, snap)
	if err != nil {
		return nil, fmt.Errorf("write checkpoint: %w", err)
	}

	e.recordCreated(ctx, cp, changelog.OpCreate)

	evicted := e.retain(ctx, nil)

	return &CreateResult{Outcome: OutcomeCreated, Checkpoint: cp, Changes: changes, Evicted: evicted}, nil
}

// backup writes a FULL emergency checkpoint of the current state. It skips
// the cooldown and change checks and accepts an empty tree. Retention after
// the write never evicts pinned checkpoints or their chains.
func (e *Engine) backup(ctx context.Context, target string, pinned []string) (*Checkpoint, error) {
	files, err := e.trackedFiles(ctx)
	if err != nil {
		return nil, err
	}

	set, files, err := e.fingerprint(ctx, files)
	if err != nil {
		return nil, err
	}

	graph, err := e.store.Graph()
	if err != nil {
		return nil, err
	}

	now := e.now()

	cp, err := e.store.write(ctx, e.root, snapshot{
		name:        e.newName(graph, now, emergencySlug),
		description: "Emergency backup before restoring " + target,
		kind:        KindFull,
		emergency:   true,
		timestamp:   now,
		files:       files,
		set:         set,
		changes:     DetectChanges(set, files, graph.Latest()),
		codec:       e.policy.Codec,
		level:       e.policy.CompressionLevel,
	})
	if err != nil {
		return nil, err
	}

	e.recordCreated(ctx, cp, changelog.OpBackup)
	e.retain(ctx, append(slices.Clone(pinned), cp.Name))

	return cp, nil
}

// List returns summaries of every checkpoint, newest first.
func (e *Engine) List(_ context.Context) ([]Summary, error) {
	graph, err := e.store.Graph()
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, graph.Len())

	for _, cp := range graph.Checkpoints() {
		chain, chainErr := graph.Resolve(cp.Name)

		summaries = append(summaries, Summary{
			Name:        cp.Name,
			Timestamp:   cp.Timestamp,
			Description: cp.Description,
			Kind:        cp.Kind,
			Emergency:   cp.Emergency,
			Files:       len(cp.Files),
			Size:        cp.Size,
			Base:        cp.Base,
			Stats:       cp.Stats,
			ChainLength: len(chain),
			Restorable:  chainErr == nil,
		})
	}

	return summaries, nil
}

// Get returns the manifest of the named checkpoint.
func (e *Engine) Get(_ context.Context, name string) (*Checkpoint, error) {
	return e.store.Load(name)
}

// ChangesSinceLast compares the current state with the latest checkpoint.
func (e *Engine) ChangesSinceLast(ctx context.Context) (*ChangeSet, error) {
	graph, err := e.store.Graph()
	if err != nil {
		return nil, err
	}

	return e.changesAgainst(ctx, graph.Latest())
}

// ChangesSince compares the current state with the named checkpoint.
func (e *Engine) ChangesSince(ctx context.Context, name string) (*ChangeSet, error) {
	cp, err := e.store.Load(name)
	if err != nil {
		return nil, err
	}

	return e.changesAgainst(ctx, cp)
}

func (e *Engine) changesAgainst(ctx context.Context, reference *Checkpoint) (*ChangeSet, error) {
	files, err := e.trackedFiles(ctx)
	if err != nil {
		return nil, err
	}

	set, files, err := e.fingerprint(ctx, files)
	if err != nil {
		return nil, err
	}

	changes := DetectChanges(set, files, reference)

	return &changes, nil
}

// Prune applies retention and sweeps stale staging directories.
func (e *Engine) Prune(ctx context.Context) (*PruneResult, error) {
	ctx, span := e.tracer.Start(ctx, spanRetention)
	defer span.End()

	graph, err := e.store.Graph()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	plan := e.policy.Retention.Plan(graph, e.now(), nil)

	evicted, evictErr := e.store.evict(plan)
	staging, sweepErr := e.store.SweepStaging(e.now().Add(-StaleStagingAge))

	e.metrics.RecordEvicted(ctx, len(evicted))
	e.recordEvictions(ctx, evicted)

	span.SetAttributes(
		attribute.Int("retention.evicted", len(evicted)),
		attribute.Int("retention.protected", len(plan.Protected)),
	)

	result := &PruneResult{Evicted: evicted, Protected: plan.Protected, Staging: staging}

	err = errors.Join(evictErr, sweepErr)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return result, fmt.Errorf("prune: %w", err)
	}

	return result, nil
}

// ReadFile returns the content of path as captured by the named checkpoint.
func (e *Engine) ReadFile(_ context.Context, name, path string) ([]byte, error) {
	graph, err := e.store.Graph()
	if err != nil {
		return nil, err
	}

	chain, err := graph.Resolve(name)
	if err != nil {
		return nil, err
	}

	if !chain.Target().Tracks(path) {
		return nil, fmt.Errorf("%w: %s in %s", ErrFileNotTracked, path, name)
	}

	for i := len(chain) - 1; i >= 0; i-- {
		link := chain[i]
		if !link.Stores(path) {
			continue
		}

		data, readErr := archive.ReadFile(e.store.PayloadPath(link), link.PayloadCodec(), path)
		if readErr != nil {
			return nil, fmt.Errorf("read %s from %s: %w", path, link.Name, readErr)
		}

		return data, nil
	}

	return nil, &ChainError{Target: name, Missing: chain[0].Name}
}

// retain applies retention after a write. Failures are logged, not returned.
func (e *Engine) retain(ctx context.Context, pinned []string) []string {
	ctx, span := e.tracer.Start(ctx, spanRetention)
	defer span.End()

	graph, err := e.store.Graph()
	if err != nil {
		e.logger.WarnContext(ctx, "retention: cannot read store", slog.String("error", err.Error()))

		return nil
	}

	plan := e.policy.Retention.Plan(graph, e.now(), pinned)

	evicted, err := e.store.evict(plan)
	if err != nil {
		e.logger.WarnContext(ctx, "retention: eviction incomplete", slog.String("error", err.Error()))
	}

	_, err = e.store.SweepStaging(e.now().Add(-StaleStagingAge))
	if err != nil {
		e.logger.WarnContext(ctx, "retention: staging sweep incomplete", slog.String("error", err.Error()))
	}

	if len(plan.Protected) > 0 {
		e.logger.DebugContext(ctx, "retention: kept chain members", slog.Any("names", plan.Protected))
	}

	span.SetAttributes(attribute.Int("retention.evicted", len(evicted)))
	e.metrics.RecordEvicted(ctx, len(evicted))
	e.recordEvictions(ctx, evicted)

	return evicted
}

// trackedFiles lists tracked files, excluding anything inside the store.
func (e *Engine) trackedFiles(ctx context.Context) ([]string, error) {
	files, err := e.lister.List(ctx, e.root)
	if err != nil {
		return nil, fmt.Errorf("list tracked files: %w", err)
	}

	storeRel, relErr := filepath.Rel(e.root, e.store.Dir())
	if relErr != nil || !filepath.IsLocal(storeRel) {
		return files, nil
	}

	prefix := filepath.ToSlash(storeRel) + "/"

	return slices.DeleteFunc(files, func(path string) bool {
		return strings.HasPrefix(path, prefix)
	}), nil
}

// fingerprint hashes files and drops the ones that could not be read.
func (e *Engine) fingerprint(ctx context.Context, files []string) (fingerprint.Set, []string, error) {
	set, err := e.hasher.Hash(ctx, e.root, files)
	if err != nil {
		return nil, nil, err
	}

	readable := make([]string, 0, len(set))

	for _, path := range files {
		if _, ok := set[path]; ok {
			readable = append(readable, path)
		}
	}

	return set, readable, nil
}

func (e *Engine) newName(graph *Graph, at time.Time, hints ...string) string {
	return NewName(at, func(name string) bool {
		if _, ok := graph.Get(name); ok {
			return true
		}

		_, statErr := os.Lstat(e.store.Path(name))

		return statErr == nil
	}, hints...)
}

func (e *Engine) recordCreated(ctx context.Context, cp *Checkpoint, op changelog.Op) {
	e.metrics.RecordCreated(ctx, string(cp.Kind), cp.Emergency, cp.Stats.BytesStored)
	e.logger.InfoContext(ctx, "checkpoint created",
		slog.String("name", cp.Name),
		slog.String("kind", string(cp.Kind)),
		slog.Int("files", len(cp.Files)),
		slog.Int("changed", cp.Stats.FilesChanged),
		slog.Int64("bytes_stored", cp.Stats.BytesStored))

	e.sink.Record(ctx, changelog.Entry{
		Time:       cp.Timestamp,
		Op:         op,
		Checkpoint: cp.Name,
		Kind:       string(cp.Kind),
		Files:      len(cp.Files),
		Bytes:      cp.Stats.BytesStored,
		Detail:     cp.Description,
	})
}

func (e *Engine) recordEvictions(ctx context.Context, evicted []string) {
	for _, name := range evicted {
		e.logger.InfoContext(ctx, "checkpoint evicted", slog.String("name", name))
		e.sink.Record(ctx, changelog.Entry{Time: e.now(), Op: changelog.OpPrune, Checkpoint: name})
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}
