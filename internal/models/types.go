package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// WindowVariant selects which time band around the index date a rollup covers.
type WindowVariant string

const (
	VariantCurrent WindowVariant = "current"
	VariantPrior   WindowVariant = "prior"
)

// Variants lists both window variants in materialization order.
var Variants = []WindowVariant{VariantCurrent, VariantPrior}

// Suffix is appended to relation names of the variant.
func (v WindowVariant) Suffix() string {
	if v == VariantPrior {
		return "_prior"
	}
	return ""
}

// Valid reports whether v is a known variant.
func (v WindowVariant) Valid() bool {
	return v == VariantCurrent || v == VariantPrior
}

// FactKind identifies the fact-store relation a clinical fact comes from.
type FactKind string

const (
	FactMeasurement FactKind = "measurement"
	FactObservation FactKind = "observation"
	FactDrug        FactKind = "drug"
)

// OMOP visit concepts that qualify as inpatient or ER-to-inpatient stays.
const (
	VisitInpatient       int64 = 9201
	VisitERAndInpatient  int64 = 262
	FlowsheetConceptID   int64 = 2000006253
	BloodCultureAncestor int64 = 4107893
	SystemicAbxAncestor  int64 = 21602796
)

// OMOP unit concepts used by normalization.
const (
	UnitMilligramPerDeciliter int64 = 8840
	UnitMicrogramPerDeciliter int64 = 8837
	UnitMicromolePerLiter     int64 = 8749
	UnitMillimolePerLiter     int64 = 8753
)

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NullableFloat64 handles nullable float columns.
type NullableFloat64 struct {
	Float64 float64
	Valid   bool
}

// Float returns a valid NullableFloat64 holding v.
func Float(v float64) NullableFloat64 {
	return NullableFloat64{Float64: v, Valid: true}
}

func (n NullableFloat64) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Float64, nil
}

func (n *NullableFloat64) Scan(value interface{}) error {
	if value == nil {
		n.Float64 = 0
		n.Valid = false
		return nil
	}

	switch v := value.(type) {
	case float64:
		n.Float64 = v
	case int64:
		n.Float64 = float64(v)
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return err
		}
		n.Float64 = f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		n.Float64 = f
	default:
		return errors.New("failed to scan NullableFloat64")
	}

	n.Valid = true
	return nil
}

func (n NullableFloat64) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

func (n *NullableFloat64) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullableFloat64{}
		return nil
	}
	if err := json.Unmarshal(data, &n.Float64); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// Less reports whether n holds a value strictly below limit. NULL is never below.
func (n NullableFloat64) Less(limit float64) bool {
	return n.Valid && n.Float64 < limit
}

// AtLeast reports whether n holds a value at or above limit. NULL never is.
func (n NullableFloat64) AtLeast(limit float64) bool {
	return n.Valid && n.Float64 >= limit
}
