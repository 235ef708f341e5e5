package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	// Migration 2: indexes on the lookup paths of the extractors
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		indexes := []string{
			"CREATE INDEX IF NOT EXISTS idx_visit_person ON visit_occurrence(person_id, visit_start_datetime)",
			"CREATE INDEX IF NOT EXISTS idx_measurement_concept ON measurement(measurement_concept_id, person_id)",
			"CREATE INDEX IF NOT EXISTS idx_observation_concept ON observation(observation_concept_id, person_id)",
			"CREATE INDEX IF NOT EXISTS idx_drug_concept ON drug_exposure(drug_concept_id, person_id)",
			"CREATE INDEX IF NOT EXISTS idx_ancestor_ancestor ON concept_ancestor(ancestor_concept_id)",
		}

		for _, idx := range indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return err
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		indexes := []string{
			"DROP INDEX IF EXISTS idx_visit_person",
			"DROP INDEX IF EXISTS idx_measurement_concept",
			"DROP INDEX IF EXISTS idx_observation_concept",
			"DROP INDEX IF EXISTS idx_drug_concept",
			"DROP INDEX IF EXISTS idx_ancestor_ancestor",
		}

		for _, idx := range indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return err
			}
		}

		return nil
	})
}
