// Package component turns raw clinical facts into one summary value per
// admission and window variant. Variables are declarative records kept in a
// Registry; a single extractor evaluates all of them.
package component

import (
	"errors"
	"fmt"
	"time"

	"github.com/clinlabel/sepsis/internal/models"
)

var (
	// ErrIncompleteVariable is returned when a variable lacks a rule it needs.
	ErrIncompleteVariable = errors.New("incomplete variable")
	// ErrDuplicateVariable is returned when a name or column is registered twice.
	ErrDuplicateVariable = errors.New("duplicate variable")
	// ErrUnknownVariable is returned for names missing from the registry.
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrNotFlowsheet is returned when display names are set on a variable
	// that does not read flowsheet observations.
	ErrNotFlowsheet = errors.New("variable does not read flowsheets")
)

// Aggregation reduces the in-window values of an admission.
type Aggregation string

const (
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
	AggCount Aggregation = "count"
)

// Shape says what a single aggregated value is.
type Shape string

const (
	// ShapeValue aggregates fact values directly.
	ShapeValue Shape = "value"
	// ShapeExposureDays aggregates drug exposure lengths in days, end-start+1.
	ShapeExposureDays Shape = "exposure_days"
	// ShapeDailyTotal sums values per calendar day, scales partial admission
	// and discharge days to 24 hours, then aggregates the daily totals.
	ShapeDailyTotal Shape = "daily_total"
	// ShapeRatio divides each numerator by its nearest preceding denominator.
	ShapeRatio Shape = "ratio"
)

// Selector picks the facts of a variable.
type Selector struct {
	Kind     models.FactKind   `json:"kind"`
	Concepts models.ConceptSet `json:"concepts"`
	// Names lists flowsheet display names, used when Kind is observation.
	Names []string `json:"names,omitempty"`
}

// Validate checks that the selector can be resolved by a fact source.
func (s Selector) Validate() error {
	switch s.Kind {
	case models.FactMeasurement, models.FactDrug:
		if len(s.Concepts.IDs) == 0 {
			return fmt.Errorf("%s selector needs concept ids", s.Kind)
		}
	case models.FactObservation:
		if len(s.Names) == 0 {
			return errors.New("observation selector needs display names")
		}
	default:
		return fmt.Errorf("unknown fact kind %q", s.Kind)
	}
	return nil
}

// Normalizer converts a raw value to the unit the scorer expects. ok is
// false when the value is outside the variable's domain.
type Normalizer func(value float64, unit int64) (v float64, ok bool)

// Ratio describes the denominator of a ratio variable.
type Ratio struct {
	Denominator Selector
	Normalize   Normalizer
	MaxGap      time.Duration
}

// Variable is the declarative description of one component.
type Variable struct {
	Name      string
	Column    string
	Select    Selector
	Normalize Normalizer
	Shape     Shape
	Aggregate Aggregation
	// RequireText keeps only facts carrying non-empty text, for counted modes.
	RequireText bool
	Ratio       *Ratio
}

// Validate reports what the variable is missing, wrapped in ErrIncompleteVariable.
func (v Variable) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s: %s", ErrIncompleteVariable, v.Name, fmt.Sprintf(format, args...))
	}

	if v.Name == "" {
		return fmt.Errorf("%w: missing name", ErrIncompleteVariable)
	}
	if v.Column == "" {
		return fail("missing value column")
	}
	if err := v.Select.Validate(); err != nil {
		return fail("%v", err)
	}

	switch v.Aggregate {
	case AggMin, AggMax, AggCount:
	case "":
		return fail("missing aggregation")
	default:
		return fail("unknown aggregation %q", v.Aggregate)
	}

	switch v.shape() {
	case ShapeValue:
	case ShapeExposureDays:
		if v.Select.Kind != models.FactDrug {
			return fail("exposure days need drug facts")
		}
	case ShapeDailyTotal:
		if v.Aggregate == AggCount {
			return fail("daily totals cannot be counted")
		}
	case ShapeRatio:
		if v.Ratio == nil {
			return fail("ratio without denominator")
		}
		if err := v.Ratio.Denominator.Validate(); err != nil {
			return fail("denominator: %v", err)
		}
		if v.Ratio.Denominator.Kind == models.FactDrug || v.Select.Kind == models.FactDrug {
			return fail("ratios need valued facts")
		}
		if v.Ratio.MaxGap <= 0 {
			return fail("ratio needs a positive pairing gap")
		}
		if v.Aggregate == AggCount {
			return fail("ratios cannot be counted")
		}
	default:
		return fail("unknown shape %q", v.Shape)
	}

	if v.Aggregate == AggCount && v.Shape != "" && v.Shape != ShapeValue {
		return fail("count applies to plain values only")
	}
	return nil
}

func (v Variable) shape() Shape {
	if v.Shape == "" {
		return ShapeValue
	}
	return v.Shape
}

// Relation returns the rollup relation suffix, e.g. platelet_rollup_prior.
func (v Variable) Relation(variant models.WindowVariant) string {
	return v.Name + "_rollup" + variant.Suffix()
}
