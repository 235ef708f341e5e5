package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/clinlabel/sepsis/internal/models"
)

func init() {
	// Migration 1: OMOP tables
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		modelsList := []interface{}{
			(*models.Person)(nil),
			(*models.VisitOccurrence)(nil),
			(*models.Concept)(nil),
			(*models.ConceptAncestor)(nil),
			(*models.Measurement)(nil),
			(*models.Observation)(nil),
			(*models.DrugExposure)(nil),
		}

		for _, model := range modelsList {
			if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return err
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		modelsList := []interface{}{
			(*models.DrugExposure)(nil),
			(*models.Observation)(nil),
			(*models.Measurement)(nil),
			(*models.ConceptAncestor)(nil),
			(*models.Concept)(nil),
			(*models.VisitOccurrence)(nil),
			(*models.Person)(nil),
		}

		for _, model := range modelsList {
			if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
				return err
			}
		}

		return nil
	})
}
