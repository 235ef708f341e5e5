package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/clinlabel/sepsis/internal/database"
	"github.com/clinlabel/sepsis/internal/migrations"
	"github.com/clinlabel/sepsis/internal/models"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := database.NewDB("file:"+t.Name()+"?mode=memory&cache=shared", false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := migrations.RunMigrations(context.Background(), db, zerolog.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustInsert(t *testing.T, db *bun.DB, model interface{}) {
	t.Helper()
	if _, err := db.NewInsert().Model(model).Exec(context.Background()); err != nil {
		t.Fatalf("insert %T: %v", model, err)
	}
}

func ptr[T any](v T) *T { return &v }

func TestMeasurementsFollowValidDescendants(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	retired := "D"
	mustInsert(t, db, &[]models.Concept{
		{ConceptID: 100, ConceptName: "Platelets"},
		{ConceptID: 101, ConceptName: "Platelets [#/volume] in Blood"},
		{ConceptID: 102, ConceptName: "Platelets retired", InvalidReason: &retired},
		{ConceptID: 200, ConceptName: "Sodium"},
	})
	mustInsert(t, db, &[]models.ConceptAncestor{
		{AncestorConceptID: 100, DescendantConceptID: 100},
		{AncestorConceptID: 100, DescendantConceptID: 101},
		{AncestorConceptID: 100, DescendantConceptID: 102},
	})
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	mustInsert(t, db, &[]models.Measurement{
		{MeasurementID: 1, PersonID: 1, MeasurementConceptID: 100, MeasurementDatetime: at, ValueAsNumber: ptr(120.0)},
		{MeasurementID: 2, PersonID: 1, MeasurementConceptID: 101, MeasurementDatetime: at.Add(time.Hour), ValueAsNumber: ptr(90.0)},
		{MeasurementID: 3, PersonID: 1, MeasurementConceptID: 102, MeasurementDatetime: at, ValueAsNumber: ptr(10.0)},
		{MeasurementID: 4, PersonID: 1, MeasurementConceptID: 200, MeasurementDatetime: at, ValueAsNumber: ptr(140.0)},
	})

	store := NewStore(db, "main")

	rows, err := store.Measurements(ctx, models.ConceptSet{IDs: []int64{100}, Descendants: true})
	if err != nil {
		t.Fatalf("measurements: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].MeasurementID != 1 || rows[1].MeasurementID != 2 {
		t.Fatalf("unexpected rows %+v", rows)
	}

	rows, err = store.Measurements(ctx, models.ConceptSet{IDs: []int64{101}})
	if err != nil {
		t.Fatalf("measurements: %v", err)
	}
	if len(rows) != 1 || rows[0].MeasurementID != 2 {
		t.Fatalf("expected only the direct concept, got %+v", rows)
	}
}

func TestDemographicsResolvesNames(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	mustInsert(t, db, &[]models.Concept{
		{ConceptID: 8507, ConceptName: "MALE"},
		{ConceptID: 8527, ConceptName: "White"},
	})
	born := time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	mustInsert(t, db, &[]models.Person{
		{PersonID: 7, GenderConceptID: 8507, RaceConceptID: 8527, BirthDatetime: &born},
	})

	people, err := NewStore(db, "main").Demographics(ctx)
	if err != nil {
		t.Fatalf("demographics: %v", err)
	}
	p, ok := people[7]
	if !ok {
		t.Fatalf("person 7 missing")
	}
	if p.GenderName == nil || *p.GenderName != "MALE" {
		t.Fatalf("gender name: %v", p.GenderName)
	}
	if p.EthnicityName != nil {
		t.Fatalf("expected no ethnicity name, got %q", *p.EthnicityName)
	}
}

func TestMaterializeReplaces(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	relation := "main.sepsis_platelet_rollup"
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	first := []models.ComponentValue{
		{PersonID: 1, AdmitDate: day, AdmitDatetime: day, Measure: "min_platelet", Value: models.Float(40)},
		{PersonID: 2, AdmitDate: day, AdmitDatetime: day, Measure: "min_platelet"},
	}
	if err := Materialize(ctx, db, relation, first); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if err := Materialize(ctx, db, relation, first[:1]); err != nil {
		t.Fatalf("rematerialize: %v", err)
	}

	n, err := CountRows(ctx, db, relation)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected full replace, got %d rows", n)
	}

	rows, err := ReadRelation[models.ComponentValue](ctx, db, relation)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 || !rows[0].Value.Valid || rows[0].Value.Float64 != 40 {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestRelationExists(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	ok, err := RelationExists(ctx, db, "main.measurement")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		t.Fatalf("expected measurement to exist")
	}

	ok, err = RelationExists(ctx, db, "main.sepsis_missing_rollup")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatalf("expected missing relation")
	}
}

func TestQueryRateOption(t *testing.T) {
	s := NewStore(nil, "main", WithQueryRate(0))
	if s.limiter != nil {
		t.Fatalf("zero rate must not throttle")
	}
	s = NewStore(nil, "main", WithQueryRate(5))
	if s.limiter == nil {
		t.Fatalf("expected limiter")
	}
	if err := s.wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}
