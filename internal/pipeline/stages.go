package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinlabel/sepsis/internal/cohort"
	"github.com/clinlabel/sepsis/internal/component"
	"github.com/clinlabel/sepsis/internal/config"
	"github.com/clinlabel/sepsis/internal/label"
	"github.com/clinlabel/sepsis/internal/models"
	"github.com/clinlabel/sepsis/internal/repositories"
	"github.com/clinlabel/sepsis/internal/retry"
	"github.com/clinlabel/sepsis/internal/sofa"
	"github.com/clinlabel/sepsis/internal/sources/flowsheet"
)

// Concept sets anchoring the suspected-infection pairing.
var (
	bloodCultures = models.ConceptSet{IDs: []int64{models.BloodCultureAncestor}, Descendants: true}
	antibiotics   = models.ConceptSet{IDs: []int64{models.SystemicAbxAncestor}, Descendants: true}
	visitConcepts = []int64{models.VisitInpatient, models.VisitERAndInpatient}
)

func (r *Runner) extractFlowsheets(ctx context.Context, logger zerolog.Logger, res *Result) ([]models.FlowsheetValue, error) {
	relation := r.cfg.FlowsheetRelation()
	var rows []models.FlowsheetValue
	err := r.stage(ctx, logger, StageFlowsheets, relation, func(ctx context.Context) (int, error) {
		var err error
		rows, err = flowsheet.NewExtractor(r.store, logger).Extract(ctx)
		if err != nil {
			return 0, err
		}
		return len(rows), r.save(ctx, logger, res, relation, func(ctx context.Context) error {
			return repositories.Materialize(ctx, r.db, relation, rows)
		}, len(rows))
	})
	return rows, err
}

func (r *Runner) cohort(ctx context.Context, logger zerolog.Logger, res *Result) ([]models.Admission, error) {
	relation := r.cfg.AdmissionTable()
	var admissions []models.Admission

	if r.cfg.PreExistingCohort != "" {
		err := r.stage(ctx, logger, StageCohort, relation, func(ctx context.Context) (int, error) {
			var err error
			admissions, err = readRequired[models.Admission](ctx, r, relation)
			return len(admissions), err
		})
		return admissions, err
	}

	err := r.stage(ctx, logger, StageCohort, relation, func(ctx context.Context) (int, error) {
		visits, err := r.store.Visits(ctx, visitConcepts...)
		if err != nil {
			return 0, err
		}
		persons, err := r.store.Demographics(ctx)
		if err != nil {
			return 0, err
		}
		admissions = cohort.BuildAdmissions(visits, persons, cohort.Options{
			VisitConcepts: visitConcepts,
			MinStayHour:   r.cfg.MinStayHour,
			Limit:         r.cfg.Limit,
		})
		if len(admissions) == 0 {
			return 0, ErrEmptyRelation
		}
		return len(admissions), r.save(ctx, logger, res, relation, func(ctx context.Context) error {
			return repositories.Materialize(ctx, r.db, relation, admissions)
		}, len(admissions))
	})
	return admissions, err
}

func (r *Runner) infections(ctx context.Context, logger zerolog.Logger, res *Result, admissions []models.Admission) ([]models.SuspectedInfection, error) {
	relation := r.cfg.Table(RelInfections)
	var infections []models.SuspectedInfection

	err := r.stage(ctx, logger, StageInfection, relation, func(ctx context.Context) (int, error) {
		cultures, err := r.store.Measurements(ctx, bloodCultures)
		if err != nil {
			return 0, err
		}
		abx, err := r.store.Drugs(ctx, antibiotics)
		if err != nil {
			return 0, err
		}
		infections = cohort.ResolveIndex(admissions, cultures, abx, cohort.InfectionOptions{
			AdmitLeadDays:        r.cfg.Infection.AdmitLeadDays,
			CultureBeforeAbxDays: r.cfg.Infection.CultureBeforeAbxDays,
			CultureAfterAbxDays:  r.cfg.Infection.CultureAfterAbxDays,
		})
		logger.Debug().
			Int("cultures", len(cultures)).
			Int("antibiotics", len(abx)).
			Msg("paired blood cultures with antibiotics")
		if len(infections) == 0 {
			return 0, ErrEmptyRelation
		}
		return len(infections), r.save(ctx, logger, res, relation, func(ctx context.Context) error {
			return repositories.Materialize(ctx, r.db, relation, infections)
		}, len(infections))
	})
	return infections, err
}

type job struct {
	variable component.Variable
	variant  models.WindowVariant
	relation string
}

// components extracts every registered variable for both variants. Jobs are
// independent and run concurrently; the first failure cancels the rest.
func (r *Runner) components(ctx context.Context, logger zerolog.Logger, res *Result, src factSource, infections []models.SuspectedInfection) ([]component.Rollup, error) {
	var jobs []job
	for _, variant := range models.Variants {
		for _, v := range r.registry.Variables() {
			jobs = append(jobs, job{variable: v, variant: variant, relation: r.cfg.Table(v.Relation(variant))})
		}
	}
	rollups := make([]component.Rollup, len(jobs))

	err := r.stage(ctx, logger, StageComponents, "", func(ctx context.Context) (int, error) {
		if !r.cfg.ExtractFlowsheets && r.usesFlowsheets() {
			relation := r.cfg.FlowsheetRelation()
			ok, err := repositories.RelationExists(ctx, r.db, relation)
			if err != nil {
				return 0, err
			}
			if !ok {
				return 0, &StageError{Stage: StageComponents, Relation: r.qualify(relation), Err: ErrMissingRelation}
			}
		}

		cache := component.NewCache(src)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.MaxParallel)

		for i, j := range jobs {
			g.Go(func() error {
				start := time.Now()
				rollup, err := component.Extract(gctx, cache, j.variable, j.variant, r.cfg.Windows.For(j.variable.Select.Kind), infections)
				if err != nil {
					return &StageError{Stage: StageComponents, Relation: r.qualify(j.relation), Err: err}
				}
				if r.cfg.SaveToDatabase {
					if err := r.materialize(gctx, logger, j.relation, func(ctx context.Context) error {
						return repositories.Materialize(ctx, r.db, j.relation, rollup.Values)
					}); err != nil {
						return &StageError{Stage: StageComponents, Relation: r.qualify(j.relation), Err: err}
					}
				}

				r.metrics.SetRows(j.relation, len(rollup.Values))
				ev := logger.Debug()
				if len(rollup.Values) == 0 {
					ev = logger.Warn()
				}
				ev.Str("component", j.variable.Name).
					Str("variant", string(j.variant)).
					Str("relation", j.relation).
					Int("rows", len(rollup.Values)).
					Dur("duration", time.Since(start)).
					Msg("component rollup")
				rollups[i] = rollup
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return 0, err
		}

		total := 0
		for i, rollup := range rollups {
			total += len(rollup.Values)
			if r.cfg.SaveToDatabase {
				res.Relations[jobs[i].relation] = len(rollup.Values)
			}
		}
		return total, nil
	})
	if err != nil {
		return nil, err
	}
	return rollups, nil
}

func (r *Runner) score(ctx context.Context, logger zerolog.Logger, res *Result, variant models.WindowVariant, infections []models.SuspectedInfection, rollups []component.Rollup) ([]models.SofaScore, error) {
	relation := r.cfg.Table(RelScore + variant.Suffix())
	var scores []models.SofaScore

	err := r.stage(ctx, logger, StageScore, relation, func(ctx context.Context) (int, error) {
		values, err := r.values(ctx, variant, rollups)
		if err != nil {
			return 0, err
		}
		scores, err = sofa.ScoreAll(infections, values, sofa.Options{Pediatric: r.cfg.PediatricScoring})
		if errors.Is(err, sofa.ErrMissingComponent) {
			return 0, fmt.Errorf("%w: %w", ErrMissingRelation, err)
		}
		if err != nil {
			return 0, err
		}
		return len(scores), r.save(ctx, logger, res, relation, func(ctx context.Context) error {
			return repositories.Materialize(ctx, r.db, relation, scores)
		}, len(scores))
	})
	return scores, err
}

// values collects the component values of variant. Saved rollups are read
// back from their relations so a rollup that was never materialized stops
// scoring instead of being taken as empty.
func (r *Runner) values(ctx context.Context, variant models.WindowVariant, rollups []component.Rollup) (component.Values, error) {
	if !r.cfg.SaveToDatabase {
		var own []component.Rollup
		for _, rollup := range rollups {
			if rollup.Variant == variant {
				own = append(own, rollup)
			}
		}
		return component.Index(own...), nil
	}

	values := make(component.Values)
	for _, v := range r.registry.Variables() {
		rows, err := readRequired[models.ComponentValue](ctx, r, r.cfg.Table(v.Relation(variant)))
		if err != nil && !errors.Is(err, ErrEmptyRelation) {
			return nil, err
		}
		values.Add(v.Column, rows)
	}
	return values, nil
}

func (r *Runner) difference(ctx context.Context, logger zerolog.Logger, res *Result) ([]models.SofaDifference, error) {
	relation := r.cfg.Table(RelDifference)
	var diffs []models.SofaDifference

	err := r.stage(ctx, logger, StageDifference, relation, func(ctx context.Context) (int, error) {
		current, ok := res.Scores[models.VariantCurrent]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingRelation, r.cfg.Table(RelScore))
		}
		prior, ok := res.Scores[models.VariantPrior]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingRelation, r.cfg.Table(RelScore+models.VariantPrior.Suffix()))
		}
		diffs = label.Difference(current, prior)
		return len(diffs), r.save(ctx, logger, res, relation, func(ctx context.Context) error {
			return repositories.Materialize(ctx, r.db, relation, diffs)
		}, len(diffs))
	})
	return diffs, err
}

func (r *Runner) label(ctx context.Context, logger zerolog.Logger, res *Result, admissions []models.Admission, diffs []models.SofaDifference) ([]models.LabeledAdmission, error) {
	relation := r.cfg.Table(RelLabeled)
	var labeled []models.LabeledAdmission

	err := r.stage(ctx, logger, StageLabel, relation, func(ctx context.Context) (int, error) {
		labeled = label.Apply(admissions, diffs, label.Options{UnmatchedNull: r.cfg.UnmatchedLabel == config.UnmatchedNull})

		positive, negative, unlabeled := 0, 0, 0
		for i := range labeled {
			switch {
			case labeled[i].SepsisLabel == nil:
				unlabeled++
			case labeled[i].IsSeptic():
				positive++
			default:
				negative++
			}
		}
		r.metrics.SetLabels(positive, negative, unlabeled)
		logger.Info().
			Int("septic", positive).
			Int("not_septic", negative).
			Int("unlabeled", unlabeled).
			Msg("labeled admissions")

		return len(labeled), r.save(ctx, logger, res, relation, func(ctx context.Context) error {
			return repositories.Materialize(ctx, r.db, relation, labeled)
		}, len(labeled))
	})
	return labeled, err
}

// save materializes a stage output when the run saves to the database.
func (r *Runner) save(ctx context.Context, logger zerolog.Logger, res *Result, relation string, write func(ctx context.Context) error, rows int) error {
	if !r.cfg.SaveToDatabase {
		return nil
	}
	if err := r.materialize(ctx, logger, relation, write); err != nil {
		return err
	}
	res.Relations[relation] = rows
	return nil
}

func (r *Runner) materialize(ctx context.Context, logger zerolog.Logger, relation string, write func(ctx context.Context) error) error {
	return retry.Do(ctx, r.cfg.Retry, func(attempt int, err error, wait time.Duration) {
		logger.Warn().
			Err(err).
			Str("relation", relation).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("retrying materialization")
	}, write)
}

// readRequired reads a relation a stage joins on. A relation that does not
// exist is ErrMissingRelation, one without rows ErrEmptyRelation.
func readRequired[T any](ctx context.Context, r *Runner, relation string) ([]T, error) {
	ok, err := repositories.RelationExists(ctx, r.db, relation)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRelation, relation)
	}
	rows, err := repositories.ReadRelation[T](ctx, r.db, relation)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyRelation, relation)
	}
	return rows, nil
}

// ExtractFlowsheets runs only the flowsheet stage and returns the unpacked rows.
func (r *Runner) ExtractFlowsheets(ctx context.Context) ([]models.FlowsheetValue, error) {
	res := &Result{Relations: make(map[string]int)}
	return r.extractFlowsheets(ctx, r.logger, res)
}
