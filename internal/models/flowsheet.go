package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// FlowsheetValue is one unpacked flowsheet row.
type FlowsheetValue struct {
	bun.BaseModel `bun:"table:meas_vals_json,alias:fv"`

	ObservationID       int64     `bun:"observation_id,notnull" json:"observation_id"`
	PersonID            int64     `bun:"person_id,notnull" json:"person_id"`
	VisitOccurrenceID   *int64    `bun:"visit_occurrence_id" json:"visit_occurrence_id,omitempty"`
	ObservationDatetime time.Time `bun:"observation_datetime,notnull" json:"observation_datetime"`
	SourceDisplayName   *string   `bun:"source_display_name" json:"source_display_name,omitempty"`
	DisplayName         *string   `bun:"display_name" json:"display_name,omitempty"`
	MeasValue           *string   `bun:"meas_value" json:"meas_value,omitempty"`
	Units               *string   `bun:"units" json:"units,omitempty"`
}

// Number parses the measured value; ok is false for empty or non-numeric text.
func (f *FlowsheetValue) Number() (float64, bool) {
	if f.MeasValue == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*f.MeasValue), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// RawObservation is an observation row with its source concept name, as read
// for flowsheet unpacking.
type RawObservation struct {
	ObservationID          int64     `bun:"observation_id" json:"observation_id"`
	PersonID               int64     `bun:"person_id" json:"person_id"`
	ObservationConceptID   int64     `bun:"observation_concept_id" json:"observation_concept_id"`
	ObservationDatetime    time.Time `bun:"observation_datetime" json:"observation_datetime"`
	ValueAsNumber          *float64  `bun:"value_as_number" json:"value_as_number,omitempty"`
	ValueAsString          *string   `bun:"value_as_string" json:"value_as_string,omitempty"`
	ObservationSourceValue *string   `bun:"observation_source_value" json:"observation_source_value,omitempty"`
	UnitSourceValue        *string   `bun:"unit_source_value" json:"unit_source_value,omitempty"`
	ConceptName            *string   `bun:"concept_name" json:"concept_name,omitempty"`
}
