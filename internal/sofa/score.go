package sofa

import (
	"errors"
	"fmt"

	"github.com/clinlabel/sepsis/internal/component"
	"github.com/clinlabel/sepsis/internal/models"
)

// ErrMissingComponent is returned when a component the score needs was not collected.
var ErrMissingComponent = errors.New("missing component")

// Shock indicator cut points.
const (
	ShockMAPCutoff     = 65
	ShockLactateCutoff = 2
	// ShockSum is the indicator sum flagged as shock. Exactly this value
	// counts; a patient positive on all three indicators is not flagged.
	ShockSum = 2
)

// Options selects the scoring path.
type Options struct {
	// Pediatric enables age-banded creatinine and cardiovascular scoring
	// and the vasopressor-class rungs. Otherwise adult cut points apply and
	// any vasopressor scores 2.
	Pediatric bool
}

// RequiredColumns lists the component columns Score reads.
var RequiredColumns = []string{
	component.ColMinPlatelet,
	component.ColMaxBilirubin,
	component.ColMaxCreatinine,
	component.ColMaxDopamineDays,
	component.ColMaxDobutamineDays,
	component.ColMaxEpinephrineDays,
	component.ColMaxNorepinephrineDays,
	component.ColMinMAP,
	component.ColCountVentMode,
	component.ColMinPaO2FiO2,
	component.ColMinSpO2FiO2,
	component.ColMinGCS,
	component.ColMinUrineDaily,
	component.ColMaxLactate,
}

// Check returns ErrMissingComponent naming the first column not collected.
func Check(values component.Values) error {
	for _, col := range RequiredColumns {
		if !values.Has(col) {
			return fmt.Errorf("%w: %s", ErrMissingComponent, col)
		}
	}
	return nil
}

// ScoreAll scores every suspected-infection admission. Admissions without
// any component value still get a row with all sub-scores 0.
func ScoreAll(infections []models.SuspectedInfection, values component.Values, opts Options) ([]models.SofaScore, error) {
	if err := Check(values); err != nil {
		return nil, err
	}
	out := make([]models.SofaScore, 0, len(infections))
	for i := range infections {
		out = append(out, Score(&infections[i], values, opts))
	}
	return out, nil
}

// Score evaluates one admission.
func Score(si *models.SuspectedInfection, values component.Values, opts Options) models.SofaScore {
	key := si.Key()
	get := func(col string) models.NullableFloat64 { return values.Get(col, key) }

	s := models.SofaScore{
		PersonID:        si.PersonID,
		AdmitDate:       models.DateOf(si.AdmitDate),
		DischargeDate:   models.DateOf(si.DischargeDate),
		MinBloodCulture: si.MinBloodCulture,
		MinSystemicAbx:  si.MinSystemicAbx,
		IndexDate:       si.IndexDate,
		AgeInMonths:     si.AgeInMonths,

		MinPlatelet:           get(component.ColMinPlatelet),
		MaxBilirubin:          get(component.ColMaxBilirubin),
		MaxCreatinine:         get(component.ColMaxCreatinine),
		MaxDopamineDays:       get(component.ColMaxDopamineDays),
		MaxDobutamineDays:     get(component.ColMaxDobutamineDays),
		MaxEpinephrineDays:    get(component.ColMaxEpinephrineDays),
		MaxNorepinephrineDays: get(component.ColMaxNorepinephrineDays),
		MinMAP:                get(component.ColMinMAP),
		CountVentMode:         get(component.ColCountVentMode),
		MinPaO2FiO2Ratio:      get(component.ColMinPaO2FiO2),
		MinSpO2FiO2Ratio:      get(component.ColMinSpO2FiO2),
		MinGCS:                get(component.ColMinGCS),
		MinUrineDaily:         get(component.ColMinUrineDaily),
		MaxLactate:            get(component.ColMaxLactate),
	}

	band := AdultBand
	if opts.Pediatric {
		band = BandFor(si.AgeInMonths)
	}

	s.PlatSOFA = PlateletLadder.Eval(s.MinPlatelet)
	s.BiliSOFA = BilirubinLadder.Eval(s.MaxBilirubin)
	s.CreaSOFA = band.Creatinine.Eval(s.MaxCreatinine)
	s.CvSOFA = Cardiovascular(s, band, opts)
	ventilated := s.CountVentMode.Valid
	s.PaO2RespSOFA = Respiratory(PaO2FiO2Ladder, s.MinPaO2FiO2Ratio, ventilated)
	s.SpO2RespSOFA = Respiratory(SpO2FiO2Ladder, s.MinSpO2FiO2Ratio, ventilated)
	s.RespSOFA = max(s.PaO2RespSOFA, s.SpO2RespSOFA)
	s.GcsSOFA = GCSLadder.Eval(s.MinGCS)
	s.UrineSOFA = UrineLadder.Eval(s.MinUrineDaily)

	s.VasoShock = boolInt(hasVasopressor(s))
	s.MapShock = boolInt(s.MinMAP.Less(ShockMAPCutoff))
	s.LactShock = boolInt(s.MaxLactate.Valid && s.MaxLactate.Float64 > ShockLactateCutoff)
	s.ShockScore = s.VasoShock + s.MapShock + s.LactShock
	s.Shock = IsShock(s.ShockScore)

	for _, o := range models.Organs {
		s.SofaTotal += s.OrganScore(o)
	}
	s.HasData = hasData(s)
	return s
}

// Cardiovascular scores vasopressor use and MAP. On the pediatric path
// epinephrine or norepinephrine scores 3, dopamine or dobutamine 2, and MAP
// under the band cutoff 1.
func Cardiovascular(s models.SofaScore, band AgeBand, opts Options) int {
	if !opts.Pediatric {
		switch {
		case hasVasopressor(s):
			return 2
		case s.MinMAP.Less(AdultBand.MAPCutoff):
			return 1
		}
		return 0
	}
	switch {
	case s.MaxEpinephrineDays.Valid || s.MaxNorepinephrineDays.Valid:
		return 3
	case s.MaxDopamineDays.Valid || s.MaxDobutamineDays.Valid:
		return 2
	case s.MinMAP.Less(band.MAPCutoff):
		return 1
	}
	return 0
}

// Respiratory scores an oxygenation ratio. Rungs 4 and 3 need ventilation;
// without it the ladder resumes at rung 2.
func Respiratory(l Ladder, ratio models.NullableFloat64, ventilated bool) int {
	for _, step := range l.Steps {
		if step.Score >= 3 && !ventilated {
			continue
		}
		if ratio.Less(step.Cut) {
			return step.Score
		}
	}
	return 0
}

// IsShock applies the exact-sum shock rule.
func IsShock(sum int) bool {
	return sum == ShockSum
}

func hasVasopressor(s models.SofaScore) bool {
	return s.MaxDopamineDays.Valid || s.MaxDobutamineDays.Valid ||
		s.MaxEpinephrineDays.Valid || s.MaxNorepinephrineDays.Valid
}

func hasData(s models.SofaScore) bool {
	for _, v := range []models.NullableFloat64{
		s.MinPlatelet, s.MaxBilirubin, s.MaxCreatinine, s.MaxDopamineDays,
		s.MaxDobutamineDays, s.MaxEpinephrineDays, s.MaxNorepinephrineDays,
		s.MinMAP, s.CountVentMode, s.MinPaO2FiO2Ratio, s.MinSpO2FiO2Ratio,
		s.MinGCS, s.MinUrineDaily, s.MaxLactate,
	} {
		if v.Valid {
			return true
		}
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
