package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Person is the OMOP person relation, reduced to the columns the labeler reads.
type Person struct {
	bun.BaseModel `bun:"table:person,alias:p"`

	PersonID           int64      `bun:"person_id,pk" json:"person_id"`
	GenderConceptID    int64      `bun:"gender_concept_id" json:"gender_concept_id"`
	RaceConceptID      int64      `bun:"race_concept_id" json:"race_concept_id"`
	EthnicityConceptID int64      `bun:"ethnicity_concept_id" json:"ethnicity_concept_id"`
	BirthDatetime      *time.Time `bun:"birth_datetime" json:"birth_datetime,omitempty"`
}

// VisitOccurrence is a single recorded visit.
type VisitOccurrence struct {
	bun.BaseModel `bun:"table:visit_occurrence,alias:vo"`

	VisitOccurrenceID  int64      `bun:"visit_occurrence_id,pk" json:"visit_occurrence_id"`
	PersonID           int64      `bun:"person_id,notnull" json:"person_id"`
	VisitConceptID     int64      `bun:"visit_concept_id,notnull" json:"visit_concept_id"`
	VisitStartDatetime *time.Time `bun:"visit_start_datetime" json:"visit_start_datetime,omitempty"`
	VisitEndDatetime   *time.Time `bun:"visit_end_datetime" json:"visit_end_datetime,omitempty"`
}

// Measurement is a lab or vital measurement.
type Measurement struct {
	bun.BaseModel `bun:"table:measurement,alias:m"`

	MeasurementID        int64     `bun:"measurement_id,pk" json:"measurement_id"`
	PersonID             int64     `bun:"person_id,notnull" json:"person_id"`
	MeasurementConceptID int64     `bun:"measurement_concept_id,notnull" json:"measurement_concept_id"`
	MeasurementDatetime  time.Time `bun:"measurement_datetime,notnull" json:"measurement_datetime"`
	ValueAsNumber        *float64  `bun:"value_as_number" json:"value_as_number,omitempty"`
	UnitConceptID        int64     `bun:"unit_concept_id" json:"unit_concept_id"`
}

// Observation holds raw observations, including packed flowsheet rows.
type Observation struct {
	bun.BaseModel `bun:"table:observation,alias:ob"`

	ObservationID              int64     `bun:"observation_id,pk" json:"observation_id"`
	PersonID                   int64     `bun:"person_id,notnull" json:"person_id"`
	ObservationConceptID       int64     `bun:"observation_concept_id,notnull" json:"observation_concept_id"`
	ObservationSourceConceptID int64     `bun:"observation_source_concept_id" json:"observation_source_concept_id"`
	ObservationDatetime        time.Time `bun:"observation_datetime,notnull" json:"observation_datetime"`
	ValueAsNumber              *float64  `bun:"value_as_number" json:"value_as_number,omitempty"`
	ValueAsString              *string   `bun:"value_as_string" json:"value_as_string,omitempty"`
	ObservationSourceValue     *string   `bun:"observation_source_value" json:"observation_source_value,omitempty"`
	UnitSourceValue            *string   `bun:"unit_source_value" json:"unit_source_value,omitempty"`
}

// DrugExposure is a single drug administration interval.
type DrugExposure struct {
	bun.BaseModel `bun:"table:drug_exposure,alias:de"`

	DrugExposureID            int64      `bun:"drug_exposure_id,pk" json:"drug_exposure_id"`
	PersonID                  int64      `bun:"person_id,notnull" json:"person_id"`
	DrugConceptID             int64      `bun:"drug_concept_id,notnull" json:"drug_concept_id"`
	DrugExposureStartDatetime time.Time  `bun:"drug_exposure_start_datetime,notnull" json:"drug_exposure_start_datetime"`
	DrugExposureEndDatetime   *time.Time `bun:"drug_exposure_end_datetime" json:"drug_exposure_end_datetime,omitempty"`
}

// Concept is an OMOP vocabulary entry.
type Concept struct {
	bun.BaseModel `bun:"table:concept,alias:c"`

	ConceptID     int64   `bun:"concept_id,pk" json:"concept_id"`
	ConceptName   string  `bun:"concept_name,notnull" json:"concept_name"`
	InvalidReason *string `bun:"invalid_reason" json:"invalid_reason,omitempty"`
}

// ConceptAncestor is the transitive closure of the concept hierarchy.
type ConceptAncestor struct {
	bun.BaseModel `bun:"table:concept_ancestor,alias:ca"`

	AncestorConceptID   int64 `bun:"ancestor_concept_id,pk" json:"ancestor_concept_id"`
	DescendantConceptID int64 `bun:"descendant_concept_id,pk" json:"descendant_concept_id"`
}

// IsValid reports whether the concept is still active in the vocabulary.
func (c *Concept) IsValid() bool {
	return c.InvalidReason == nil || *c.InvalidReason == ""
}

// ConceptSet selects facts by concept. With Descendants set, the valid
// descendants of every listed concept in the vocabulary are selected too.
type ConceptSet struct {
	IDs         []int64 `json:"ids"`
	Descendants bool    `json:"descendants"`
}

// Demographics is a person with concept names resolved.
type Demographics struct {
	PersonID      int64      `bun:"person_id" json:"person_id"`
	BirthDatetime *time.Time `bun:"birth_datetime" json:"birth_datetime,omitempty"`
	GenderName    *string    `bun:"gender_name" json:"gender_name,omitempty"`
	RaceName      *string    `bun:"race_name" json:"race_name,omitempty"`
	EthnicityName *string    `bun:"ethnicity_name" json:"ethnicity_name,omitempty"`
}
