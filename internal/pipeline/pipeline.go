// Package pipeline runs the labeling stages in order: flowsheet unpacking,
// cohort, suspected infection, component rollups for both window variants,
// severity scores, differences and labels. Every stage fully replaces its
// output relation, so a failed run is recovered by running it again.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/clinlabel/sepsis/internal/component"
	"github.com/clinlabel/sepsis/internal/config"
	"github.com/clinlabel/sepsis/internal/database"
	"github.com/clinlabel/sepsis/internal/metrics"
	"github.com/clinlabel/sepsis/internal/models"
	"github.com/clinlabel/sepsis/internal/repositories"
)

// Stage names used in logs, metrics and errors.
const (
	StageFlowsheets = "flowsheets"
	StageCohort     = "cohort"
	StageInfection  = "suspected_infection"
	StageComponents = "components"
	StageScore      = "score"
	StageDifference = "difference"
	StageLabel      = "label"
)

// Output relation suffixes, prefixed with the cohort name.
const (
	RelAdmissions = "admission_rollup"
	RelInfections = "susp_inf_rollup"
	RelScore      = "sofa_score"
	RelDifference = "sofa_difference"
	RelLabeled    = "admission_rollup_labeled"
)

// Result is what a run produced. Relations maps every materialized relation
// to its row count and is empty when nothing was saved.
type Result struct {
	RunID       string
	Admissions  []models.Admission
	Infections  []models.SuspectedInfection
	Rollups     []component.Rollup
	Scores      map[models.WindowVariant][]models.SofaScore
	Differences []models.SofaDifference
	Labeled     []models.LabeledAdmission
	Relations   map[string]int
	Plan        []PlannedQuery
}

// Runner executes the pipeline against one database.
type Runner struct {
	db       *bun.DB
	cfg      config.Config
	store    *repositories.Store
	registry *component.Registry
	metrics  *metrics.Recorder
	logger   zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger; the default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithRegistry replaces the default component registry.
func WithRegistry(reg *component.Registry) Option {
	return func(r *Runner) { r.registry = reg }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// New validates cfg and prepares a Runner.
func New(db *bun.DB, cfg config.Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		db:     db,
		cfg:    cfg,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = component.Default()
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}

	names := make([]string, 0, len(cfg.FlowsheetNames))
	for name := range cfg.FlowsheetNames {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.registry.SetNames(name, cfg.FlowsheetNames[name]); err != nil {
			return nil, fmt.Errorf("%w: flowsheet_names.%s: %v", config.ErrInvalid, name, err)
		}
	}

	r.store = repositories.NewStore(db, cfg.Dataset, repositories.WithQueryRate(cfg.QueriesPerSecond))
	return r, nil
}

// Run opens the database named by cfg and runs the pipeline once.
func Run(ctx context.Context, cfg config.Config, opts ...Option) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := database.NewDB(cfg.DatabaseDSN, cfg.DebugSQL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	r, err := New(db, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

// Metrics returns the recorder the runner reports to.
func (r *Runner) Metrics() *metrics.Recorder {
	return r.metrics
}

// Run executes every stage. In print-only mode it only plans.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	logger := r.logger.With().
		Str("run_id", runID).
		Str("cohort", r.cfg.CohortName).
		Logger()

	res := &Result{
		RunID:     runID,
		Scores:    make(map[models.WindowVariant][]models.SofaScore, len(models.Variants)),
		Relations: make(map[string]int),
	}

	logger.Info().
		Str("dataset", r.cfg.Dataset).
		Str("output_dataset", r.cfg.OutputDataset).
		Bool("save_to_database", r.cfg.SaveToDatabase).
		Bool("extract_flowsheets", r.cfg.ExtractFlowsheets).
		Int("components", len(r.registry.Variables())).
		Msg("starting labeling run")

	if r.cfg.PrintOnly {
		res.Plan = r.Plan()
		for _, q := range res.Plan {
			ev := logger.Info().Str("stage", q.Stage).Str("relation", q.Relation)
			if q.SQL != "" {
				ev = ev.Str("sql", q.SQL)
			}
			ev.Msg("planned")
		}
		return res, nil
	}

	start := time.Now()
	err := r.run(ctx, logger, res)
	if err == nil {
		r.metrics.MarkSuccess(time.Now())
	}
	if r.cfg.MetricsFile != "" {
		if werr := r.metrics.WriteFile(r.cfg.MetricsFile); werr != nil {
			logger.Warn().Err(werr).Str("path", r.cfg.MetricsFile).Msg("failed to write metrics")
		}
	}
	if err != nil {
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("labeling run failed")
		return nil, err
	}

	logger.Info().
		Int("admissions", len(res.Admissions)).
		Int("suspected_infections", len(res.Infections)).
		Int("labeled", len(res.Labeled)).
		Dur("duration", time.Since(start)).
		Msg("labeling run finished")
	return res, nil
}

func (r *Runner) run(ctx context.Context, logger zerolog.Logger, res *Result) error {
	src := factSource{store: component.StoreSource{Store: r.store, Flowsheet: r.cfg.FlowsheetRelation()}}

	if r.cfg.ExtractFlowsheets {
		rows, err := r.extractFlowsheets(ctx, logger, res)
		if err != nil {
			return err
		}
		if !r.cfg.SaveToDatabase {
			src.flowsheets, src.inMemory = rows, true
		}
	}

	admissions, err := r.cohort(ctx, logger, res)
	if err != nil {
		return err
	}
	res.Admissions = admissions

	infections, err := r.infections(ctx, logger, res, admissions)
	if err != nil {
		return err
	}
	res.Infections = infections

	rollups, err := r.components(ctx, logger, res, src, infections)
	if err != nil {
		return err
	}
	res.Rollups = rollups

	for _, variant := range models.Variants {
		scores, err := r.score(ctx, logger, res, variant, infections, rollups)
		if err != nil {
			return err
		}
		res.Scores[variant] = scores
	}

	diffs, err := r.difference(ctx, logger, res)
	if err != nil {
		return err
	}
	res.Differences = diffs

	labeled, err := r.label(ctx, logger, res, admissions, diffs)
	if err != nil {
		return err
	}
	res.Labeled = labeled
	return nil
}

// stage times fn and reports it. Errors that are not already a StageError
// are wrapped in one naming relation.
func (r *Runner) stage(ctx context.Context, logger zerolog.Logger, name, relation string, fn func(ctx context.Context) (int, error)) error {
	start := time.Now()
	n, err := fn(ctx)
	elapsed := time.Since(start)
	r.metrics.ObserveStage(name, elapsed, err)

	if err != nil {
		if _, ok := err.(*StageError); !ok {
			err = &StageError{Stage: name, Relation: r.qualify(relation), Err: err}
		}
		return err
	}

	if relation != "" {
		r.metrics.SetRows(relation, n)
	}
	logger.Info().
		Str("stage", name).
		Str("relation", relation).
		Int("rows", n).
		Dur("duration", elapsed).
		Msg("stage complete")
	return nil
}

func (r *Runner) qualify(relation string) string {
	if relation == "" {
		return ""
	}
	return r.cfg.Namespace + "." + relation
}

// usesFlowsheets reports whether any registered component reads the
// flowsheet relation.
func (r *Runner) usesFlowsheets() bool {
	for _, v := range r.registry.Variables() {
		if v.Select.Kind == models.FactObservation {
			return true
		}
		if v.Ratio != nil && v.Ratio.Denominator.Kind == models.FactObservation {
			return true
		}
	}
	return false
}
