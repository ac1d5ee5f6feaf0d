package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultSampleSize is the number of events an activation emits.
const DefaultSampleSize = 10

// SourceConfig is the immutable configuration of one source instance.
type SourceConfig struct {
	Name  string
	Scope Scope

	// Kinds are the item kinds emitted; empty means files and comments.
	Kinds []ItemKind

	// TypeFilter holds accepted MIME types and ".ext" extensions.
	TypeFilter []string

	NumberOfParents     int
	IncludeScopeDetails bool
	Start               StartMode
	SampleSize          int
	SeenBound           int
}

// Validate checks the configuration bounds. Failures wrap ErrConfiguration.
func (c *SourceConfig) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}

	if c.Scope.Kind == ScopeNode && c.Scope.ID == "" {
		errs = append(errs, errors.New("node scope requires an id"))
	}

	if c.Scope.Kind == ScopeResource && c.Scope.ID == "" {
		errs = append(errs, errors.New("resource scope requires an id"))
	}

	if c.NumberOfParents < MinParents || c.NumberOfParents > MaxParents {
		errs = append(errs, fmt.Errorf("number_of_parents %d out of range [%d, %d]",
			c.NumberOfParents, MinParents, MaxParents))
	}

	if c.SampleSize < 0 {
		errs = append(errs, fmt.Errorf("sample_size %d must not be negative", c.SampleSize))
	}

	if c.SeenBound < 0 {
		errs = append(errs, fmt.Errorf("seen_window %d must not be negative", c.SeenBound))
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: source %q: %w", ErrConfiguration, c.Name, errors.Join(errs...))
}

// RunReport summarizes one run.
type RunReport struct {
	RunID      string
	Source     string
	Kind       RunKind
	StartedAt  time.Time
	Duration   time.Duration
	Pages      int
	Discovered int
	Relevant   int
	Emitted    int
	Skipped    int

	// Committed is set when the cursor and node index were persisted.
	Committed bool
	// Primed is set when the run only established the initial cursor.
	Primed bool
	// AlreadyActive is set when Activate found the source already active.
	AlreadyActive bool

	Err error
}

// Status returns "ok" or "failed" for journals and tables.
func (r *RunReport) Status() string {
	if r.Err != nil {
		return "failed"
	}

	return "ok"
}

// runContext is the explicit per-run state threaded through traversal,
// filtering, normalization and emission.
type runContext struct {
	id           string
	source       string
	kind         RunKind
	scope        Scope
	cursor       Cursor
	committed    bool
	nodes        NodeSet
	seen         *SeenWindow
	limit        int
	parents      int
	scopeDetails bool
}

// Source is the run orchestrator of one source instance. It owns the cursor,
// seen window and node index; a Source must never run concurrently with
// itself.
type Source struct {
	cfg        SourceConfig
	provider   Provider
	store      CursorStore
	filter     *Filter
	traverser  *Traverser
	normalizer *Normalizer
	emitter    *DedupEmitter
	logger     *slog.Logger

	nowFunc  func() time.Time
	newRunID func() string
}

// NewSource wires a source instance. The configuration is validated here so
// a bad source fails before it is ever scheduled.
func NewSource(cfg SourceConfig, provider Provider, store CursorStore, sink Sink, logger *slog.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.SampleSize == 0 {
		cfg.SampleSize = DefaultSampleSize
	}

	if cfg.SeenBound == 0 {
		cfg.SeenBound = DefaultSeenBound
	}

	if cfg.Scope.Provider == "" {
		cfg.Scope.Provider = provider.Name()
	}

	logger = logger.With(slog.String("source", cfg.Name))

	return &Source{
		cfg:        cfg,
		provider:   provider,
		store:      store,
		filter:     NewFilter(cfg.Kinds, cfg.TypeFilter),
		traverser:  NewTraverser(provider, logger),
		normalizer: NewNormalizer(provider, logger),
		emitter:    NewDedupEmitter(sink, store, logger),
		logger:     logger,
		nowFunc:    time.Now,
		newRunID:   func() string { return uuid.New().String() },
	}, nil
}

// Name returns the configured source name.
func (s *Source) Name() string {
	return s.cfg.Name
}

// Config returns a copy of the source configuration.
func (s *Source) Config() SourceConfig {
	return s.cfg
}

// Activate performs the one-shot deploy: a bounded sample run that emits at
// most SampleSize of the newest relevant events and moves the source to
// Active. The cursor and node index are never committed by a sample run, so
// the first scheduled run still sees every real event.
func (s *Source) Activate(ctx context.Context) (*RunReport, error) {
	rep := s.newReport(RunDeploy)

	life, err := s.store.Lifecycle(ctx, s.cfg.Name)
	if err != nil {
		return s.finish(ctx, rep, err)
	}

	if life == Active {
		s.logger.Info("source already active, skipping sample run")
		rep.AlreadyActive = true

		return s.finish(ctx, rep, nil)
	}

	return s.finish(ctx, rep, s.sample(ctx, rep))
}

func (s *Source) sample(ctx context.Context, rep *RunReport) error {
	rc, err := s.begin(ctx, rep, s.cfg.SampleSize)
	if err != nil {
		return err
	}

	walk, err := s.traverser.Walk(ctx, rc)
	if err != nil {
		return err
	}

	rep.Pages = walk.Pages
	rep.Discovered = len(walk.Items)

	events, err := s.normalize(ctx, rc, rep, walk)
	if err != nil {
		return err
	}

	// Events are sorted oldest first, so the sample is the tail.
	if len(events) > s.cfg.SampleSize {
		events = events[len(events)-s.cfg.SampleSize:]
	}

	if err := s.emit(ctx, rc, rep, events); err != nil {
		return err
	}

	return s.store.SetLifecycle(ctx, s.cfg.Name, Active)
}

// Run performs one scheduled run: traversal, filter, normalize, dedup-emit,
// then cursor commit. Any failure before the commit leaves the cursor and
// node index exactly as they were.
func (s *Source) Run(ctx context.Context) (*RunReport, error) {
	rep := s.newReport(RunSchedule)

	life, err := s.store.Lifecycle(ctx, s.cfg.Name)
	if err != nil {
		return s.finish(ctx, rep, err)
	}

	if life != Active {
		return s.finish(ctx, rep, ErrNotActivated)
	}

	return s.finish(ctx, rep, s.scheduled(ctx, rep))
}

func (s *Source) scheduled(ctx context.Context, rep *RunReport) error {
	rc, err := s.begin(ctx, rep, 0)
	if err != nil {
		return err
	}

	walk, err := s.traverser.Walk(ctx, rc)
	if err != nil {
		return err
	}

	rep.Pages = walk.Pages
	rep.Discovered = len(walk.Items)

	if !rc.committed && s.cfg.Start == StartNow {
		s.logger.Info("priming cursor, historical items are not emitted",
			slog.Int("discovered", len(walk.Items)),
		)

		rep.Primed = true

		return s.commit(ctx, rc, rep, walk)
	}

	events, err := s.normalize(ctx, rc, rep, walk)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		s.logger.Info("no new items this run")
	}

	if err := s.emit(ctx, rc, rep, events); err != nil {
		return err
	}

	return s.commit(ctx, rc, rep, walk)
}

// begin loads persisted state into a fresh run context.
func (s *Source) begin(ctx context.Context, rep *RunReport, limit int) (*runContext, error) {
	st, err := s.store.LoadState(ctx, s.cfg.Scope.Key())
	if err != nil {
		return nil, err
	}

	return &runContext{
		id:           rep.RunID,
		source:       s.cfg.Name,
		kind:         rep.Kind,
		scope:        s.cfg.Scope,
		cursor:       st.Cursor,
		committed:    st.Committed,
		nodes:        NewNodeSet(st.Nodes...),
		seen:         NewSeenWindow(s.cfg.SeenBound, st.Seen),
		limit:        limit,
		parents:      s.cfg.NumberOfParents,
		scopeDetails: s.cfg.IncludeScopeDetails,
	}, nil
}

// normalize filters the walk output and maps the survivors to ordered events.
func (s *Source) normalize(ctx context.Context, rc *runContext, rep *RunReport, walk *WalkResult) ([]Event, error) {
	relevant := make([]Item, 0, len(walk.Items))

	for i := range walk.Items {
		item := &walk.Items[i]

		r := s.filter.Evaluate(item, rc.scope, walk.Nodes)
		if !r.Included {
			s.logger.Debug("item not relevant",
				slog.String("item_id", item.ID),
				slog.String("reason", r.Reason),
			)

			continue
		}

		relevant = append(relevant, *item)
	}

	rep.Relevant = len(relevant)

	return s.normalizer.Normalize(ctx, rc, relevant)
}

func (s *Source) emit(ctx context.Context, rc *runContext, rep *RunReport, events []Event) error {
	res, err := s.emitter.Emit(ctx, rc, events)
	rep.Emitted = res.Emitted
	rep.Skipped = res.Skipped

	return err
}

func (s *Source) commit(ctx context.Context, rc *runContext, rep *RunReport, walk *WalkResult) error {
	if err := s.store.Commit(ctx, rc.scope.Key(), walk.Cursor, walk.Nodes.Slice()); err != nil {
		return err
	}

	rep.Committed = true

	return nil
}

func (s *Source) newReport(kind RunKind) *RunReport {
	return &RunReport{
		RunID:     s.newRunID(),
		Source:    s.cfg.Name,
		Kind:      kind,
		StartedAt: s.nowFunc(),
	}
}

// finish stamps the report, journals it, and wraps a failure in RunError.
func (s *Source) finish(ctx context.Context, rep *RunReport, err error) (*RunReport, error) {
	rep.Duration = s.nowFunc().Sub(rep.StartedAt)

	if err != nil {
		rep.Err = &RunError{Source: s.cfg.Name, Kind: rep.Kind, Err: err}
	}

	if journal, ok := s.store.(RunJournal); ok {
		// The run context may already be canceled; the journal is best effort.
		if jErr := journal.RecordRun(context.WithoutCancel(ctx), rep); jErr != nil {
			s.logger.Warn("failed to journal run",
				slog.String("run_id", rep.RunID),
				slog.String("error", jErr.Error()),
			)
		}
	}

	attrs := []any{
		slog.String("run_id", rep.RunID),
		slog.String("kind", string(rep.Kind)),
		slog.Int("pages", rep.Pages),
		slog.Int("discovered", rep.Discovered),
		slog.Int("relevant", rep.Relevant),
		slog.Int("emitted", rep.Emitted),
		slog.Int("skipped", rep.Skipped),
		slog.Bool("committed", rep.Committed),
		slog.Duration("duration", rep.Duration),
	}

	if rep.Err != nil {
		s.logger.Error("run failed", append(attrs, slog.String("error", err.Error()))...)
		return rep, rep.Err
	}

	s.logger.Info("run finished", attrs...)

	return rep, nil
}
