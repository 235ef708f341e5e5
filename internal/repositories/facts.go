package repositories

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/clinlabel/sepsis/internal/models"
)

// MeasurementQuery selects the measurements of set.
func (s *Store) MeasurementQuery(set models.ConceptSet, rows *[]models.Measurement) *bun.SelectQuery {
	q := s.db.NewSelect().
		Model(rows).
		ModelTableExpr("? AS m", bun.Safe(s.table("measurement")))
	return s.whereConcept(q, "m.measurement_concept_id", set).
		Order("m.person_id", "m.measurement_datetime")
}

// Measurements loads the measurements of set, ordered by person and time.
func (s *Store) Measurements(ctx context.Context, set models.ConceptSet) ([]models.Measurement, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	var rows []models.Measurement
	if err := s.MeasurementQuery(set, &rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select measurements %v: %w", set.IDs, err)
	}
	return rows, nil
}

// DrugQuery selects the drug exposures of set.
func (s *Store) DrugQuery(set models.ConceptSet, rows *[]models.DrugExposure) *bun.SelectQuery {
	q := s.db.NewSelect().
		Model(rows).
		ModelTableExpr("? AS de", bun.Safe(s.table("drug_exposure")))
	return s.whereConcept(q, "de.drug_concept_id", set).
		Order("de.person_id", "de.drug_exposure_start_datetime")
}

// Drugs loads the drug exposures of set, ordered by person and start.
func (s *Store) Drugs(ctx context.Context, set models.ConceptSet) ([]models.DrugExposure, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	var rows []models.DrugExposure
	if err := s.DrugQuery(set, &rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select drug exposures %v: %w", set.IDs, err)
	}
	return rows, nil
}

// VisitQuery selects visits of the given visit concepts.
func (s *Store) VisitQuery(visitConcepts []int64, rows *[]models.VisitOccurrence) *bun.SelectQuery {
	q := s.db.NewSelect().
		Model(rows).
		ModelTableExpr("? AS vo", bun.Safe(s.table("visit_occurrence")))
	if len(visitConcepts) > 0 {
		q = q.Where("vo.visit_concept_id IN (?)", bun.In(visitConcepts))
	}
	return q.Order("vo.person_id", "vo.visit_start_datetime", "vo.visit_occurrence_id")
}

// Visits loads visits of the given concepts; none means every visit.
func (s *Store) Visits(ctx context.Context, visitConcepts ...int64) ([]models.VisitOccurrence, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	var rows []models.VisitOccurrence
	if err := s.VisitQuery(visitConcepts, &rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select visits: %w", err)
	}
	return rows, nil
}

// DemographicsQuery selects persons with gender, race and ethnicity names.
func (s *Store) DemographicsQuery() *bun.SelectQuery {
	concept := bun.Safe(s.table("concept"))
	return s.db.NewSelect().
		TableExpr("? AS p", bun.Safe(s.table("person"))).
		ColumnExpr("p.person_id, p.birth_datetime").
		ColumnExpr("gc.concept_name AS gender_name").
		ColumnExpr("rc.concept_name AS race_name").
		ColumnExpr("ec.concept_name AS ethnicity_name").
		Join("LEFT JOIN ? AS gc ON gc.concept_id = p.gender_concept_id", concept).
		Join("LEFT JOIN ? AS rc ON rc.concept_id = p.race_concept_id", concept).
		Join("LEFT JOIN ? AS ec ON ec.concept_id = p.ethnicity_concept_id", concept).
		OrderExpr("p.person_id")
}

// Demographics loads every person keyed by id.
func (s *Store) Demographics(ctx context.Context) (map[int64]models.Demographics, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	var rows []models.Demographics
	if err := s.DemographicsQuery().Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("select persons: %w", err)
	}
	out := make(map[int64]models.Demographics, len(rows))
	for _, r := range rows {
		out[r.PersonID] = r
	}
	return out, nil
}

// ObservationQuery selects every observation with its source concept name.
func (s *Store) ObservationQuery() *bun.SelectQuery {
	return s.db.NewSelect().
		TableExpr("? AS ob", bun.Safe(s.table("observation"))).
		ColumnExpr("ob.observation_id, ob.person_id, ob.observation_concept_id, ob.observation_datetime").
		ColumnExpr("ob.value_as_number, ob.value_as_string, ob.observation_source_value, ob.unit_source_value").
		ColumnExpr("cpt.concept_name").
		Join("LEFT JOIN ? AS cpt ON cpt.concept_id = ob.observation_source_concept_id", bun.Safe(s.table("concept"))).
		OrderExpr("ob.observation_id")
}

// Observations loads the raw observations to unpack into flowsheet rows.
func (s *Store) Observations(ctx context.Context) ([]models.RawObservation, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	var rows []models.RawObservation
	if err := s.ObservationQuery().Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("select observations: %w", err)
	}
	return rows, nil
}

// FlowsheetQuery selects unpacked flowsheet rows by display name from relation.
func (s *Store) FlowsheetQuery(relation string, names []string, rows *[]models.FlowsheetValue) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(rows).
		ModelTableExpr("? AS fv", bun.Safe(relation)).
		Where("fv.display_name IN (?)", bun.In(names)).
		Order("fv.person_id", "fv.observation_datetime", "fv.observation_id")
}

// Flowsheets loads unpacked flowsheet rows whose display name is in names.
func (s *Store) Flowsheets(ctx context.Context, relation string, names []string) ([]models.FlowsheetValue, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	var rows []models.FlowsheetValue
	if err := s.FlowsheetQuery(relation, names, &rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select flowsheet rows from %s: %w", relation, err)
	}
	return rows, nil
}
