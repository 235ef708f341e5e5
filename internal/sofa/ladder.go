// Package sofa maps component values to organ sub-scores and totals.
package sofa

import "github.com/clinlabel/sepsis/internal/models"

// Direction says which side of a cut point is severe.
type Direction int

const (
	// Below scores values strictly under a cut point.
	Below Direction = iota
	// AtLeast scores values at or over a cut point.
	AtLeast
)

// Step is one rung of a ladder.
type Step struct {
	Cut   float64
	Score int
}

// Ladder is an ordered threshold table, most severe rung first. The first
// matching rung wins; NULL and unmatched values score 0.
type Ladder struct {
	Direction Direction
	Steps     []Step
}

// Eval scores v.
func (l Ladder) Eval(v models.NullableFloat64) int {
	for _, s := range l.Steps {
		if l.Direction == Below && v.Less(s.Cut) {
			return s.Score
		}
		if l.Direction == AtLeast && v.AtLeast(s.Cut) {
			return s.Score
		}
	}
	return 0
}

func below(cuts ...float64) Ladder {
	return ladder(Below, cuts)
}

func atLeast(cuts ...float64) Ladder {
	return ladder(AtLeast, cuts)
}

// ladder builds a 4-3-2-1 ladder from cut points in severity order.
func ladder(d Direction, cuts []float64) Ladder {
	steps := make([]Step, len(cuts))
	for i, c := range cuts {
		steps[i] = Step{Cut: c, Score: 4 - i}
	}
	return Ladder{Direction: d, Steps: steps}
}

var (
	PlateletLadder  = below(20, 50, 100, 150)
	BilirubinLadder = atLeast(12, 6, 2, 1.2)
	GCSLadder       = below(6, 10, 13, 15)
	UrineLadder     = below(200, 500)

	// Respiratory ladders; the two most severe rungs apply only under ventilation.
	PaO2FiO2Ladder = below(100, 200, 300, 400)
	SpO2FiO2Ladder = below(148, 221, 264, 292)
)

// AgeBand holds the age-dependent cut points for patients of at least
// MinMonths months.
type AgeBand struct {
	MinMonths  int
	Creatinine Ladder
	MAPCutoff  float64
}

// AgeBands runs from oldest to youngest; the last band catches everyone.
var AgeBands = []AgeBand{
	{MinMonths: 216, Creatinine: atLeast(5, 3.5, 2, 1.2), MAPCutoff: 70},
	{MinMonths: 144, Creatinine: atLeast(4.2, 2.9, 1.7, 1.0), MAPCutoff: 67},
	{MinMonths: 60, Creatinine: atLeast(2.6, 1.8, 1.1, 0.7), MAPCutoff: 65},
	{MinMonths: 24, Creatinine: atLeast(2.3, 1.6, 0.9, 0.6), MAPCutoff: 62},
	{MinMonths: 12, Creatinine: atLeast(1.5, 1.1, 0.6, 0.4), MAPCutoff: 60},
	{MinMonths: 1, Creatinine: atLeast(1.2, 0.8, 0.5, 0.3), MAPCutoff: 55},
	{MinMonths: 0, Creatinine: atLeast(1.6, 1.2, 1.0, 0.8), MAPCutoff: 46},
}

// AdultBand is the band of patients 18 years and older.
var AdultBand = AgeBands[0]

// BandFor picks the band of an age in months. Unknown ages use the adult band.
func BandFor(ageMonths *int) AgeBand {
	if ageMonths == nil {
		return AdultBand
	}
	for _, b := range AgeBands {
		if *ageMonths >= b.MinMonths {
			return b
		}
	}
	return AgeBands[len(AgeBands)-1]
}
