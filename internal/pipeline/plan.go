package pipeline

import (
	"github.com/uptrace/bun"

	"github.com/clinlabel/sepsis/internal/component"
	"github.com/clinlabel/sepsis/internal/models"
)

// PlannedQuery is one step of a print-only run. SQL is empty for stages
// computed in process from upstream relations.
type PlannedQuery struct {
	Stage    string `json:"stage"`
	Relation string `json:"relation"`
	SQL      string `json:"sql,omitempty"`
}

// Plan lists, in execution order, the relations a run would produce and
// the fact-store queries behind them. Nothing is executed.
func (r *Runner) Plan() []PlannedQuery {
	var plan []PlannedQuery
	add := func(stage, relation, sql string) {
		plan = append(plan, PlannedQuery{Stage: stage, Relation: r.qualify(relation), SQL: sql})
	}

	if r.cfg.ExtractFlowsheets {
		add(StageFlowsheets, r.cfg.FlowsheetRelation(), r.store.ObservationQuery().String())
	}

	admissions := r.cfg.AdmissionTable()
	if r.cfg.PreExistingCohort != "" {
		add(StageCohort, admissions, r.db.NewSelect().
			Model(new([]models.Admission)).
			ModelTableExpr("? AS adm", bun.Safe(admissions)).
			String())
	} else {
		add(StageCohort, admissions, r.store.VisitQuery(visitConcepts, new([]models.VisitOccurrence)).String())
		add(StageCohort, admissions, r.store.DemographicsQuery().String())
	}

	infections := r.cfg.Table(RelInfections)
	add(StageInfection, infections, r.store.MeasurementQuery(bloodCultures, new([]models.Measurement)).String())
	add(StageInfection, infections, r.store.DrugQuery(antibiotics, new([]models.DrugExposure)).String())

	for _, variant := range models.Variants {
		for _, v := range r.registry.Variables() {
			relation := r.cfg.Table(v.Relation(variant))
			add(StageComponents, relation, r.selectorQuery(v.Select))
			if v.Ratio != nil {
				add(StageComponents, relation, r.selectorQuery(v.Ratio.Denominator))
			}
		}
	}

	for _, variant := range models.Variants {
		add(StageScore, r.cfg.Table(RelScore+variant.Suffix()), "")
	}
	add(StageDifference, r.cfg.Table(RelDifference), "")
	add(StageLabel, r.cfg.Table(RelLabeled), "")
	return plan
}

func (r *Runner) selectorQuery(sel component.Selector) string {
	switch sel.Kind {
	case models.FactMeasurement:
		return r.store.MeasurementQuery(sel.Concepts, new([]models.Measurement)).String()
	case models.FactDrug:
		return r.store.DrugQuery(sel.Concepts, new([]models.DrugExposure)).String()
	default:
		return r.store.FlowsheetQuery(r.cfg.FlowsheetRelation(), sel.Names, new([]models.FlowsheetValue)).String()
	}
}
