package cohort

import (
	"time"

	"github.com/clinlabel/sepsis/internal/models"
)

// InfectionOptions holds the day offsets of culture/antibiotic pairing.
type InfectionOptions struct {
	AdmitLeadDays        int
	CultureBeforeAbxDays int
	CultureAfterAbxDays  int
}

// DefaultInfectionOptions returns the standard offsets: events from the day
// before admission, culture from 3 days before to 1 day after the antibiotic.
func DefaultInfectionOptions() InfectionOptions {
	return InfectionOptions{AdmitLeadDays: 1, CultureBeforeAbxDays: 3, CultureAfterAbxDays: 1}
}

// ResolveIndex pairs blood cultures with systemic antibiotic starts inside
// each admission and anchors the admission at the earlier of the first paired
// culture and the first paired antibiotic. Admissions without a pair are
// dropped; there is at most one row per admission.
func ResolveIndex(admissions []models.Admission, cultures []models.Measurement, antibiotics []models.DrugExposure, opts InfectionOptions) []models.SuspectedInfection {
	culturesByPerson := make(map[int64][]time.Time)
	for _, m := range cultures {
		culturesByPerson[m.PersonID] = append(culturesByPerson[m.PersonID], m.MeasurementDatetime)
	}
	abxByPerson := make(map[int64][]time.Time)
	for _, d := range antibiotics {
		abxByPerson[d.PersonID] = append(abxByPerson[d.PersonID], d.DrugExposureStartDatetime)
	}

	seen := make(map[models.AdmissionKey]bool)
	var out []models.SuspectedInfection
	for i := range admissions {
		a := &admissions[i]
		if seen[a.Key()] {
			continue
		}
		minBC, minAbx, ok := pair(a, culturesByPerson[a.PersonID], abxByPerson[a.PersonID], opts)
		if !ok {
			continue
		}
		seen[a.Key()] = true

		index := minBC
		if minAbx.Before(index) {
			index = minAbx
		}
		out = append(out, models.SuspectedInfection{
			PersonID:          a.PersonID,
			AdmitDate:         a.AdmitDate,
			AdmitDatetime:     a.AdmitDatetime,
			DischargeDate:     a.DischargeDate,
			DischargeDatetime: a.DischargeDatetime,
			MinBloodCulture:   minBC,
			MinSystemicAbx:    minAbx,
			IndexDate:         index,
			AgeInMonths:       a.AgeInMonths,
		})
	}
	return out
}

func pair(a *models.Admission, cultures, antibiotics []time.Time, opts InfectionOptions) (time.Time, time.Time, bool) {
	from := models.DateOf(a.AdmitDate).AddDate(0, 0, -opts.AdmitLeadDays)
	to := models.DateOf(a.DischargeDate)
	inStay := func(t time.Time) bool {
		d := models.DateOf(t)
		return !d.Before(from) && !d.After(to)
	}

	var minBC, minAbx time.Time
	found := false
	for _, abx := range antibiotics {
		if !inStay(abx) {
			continue
		}
		abxDay := models.DateOf(abx)
		earliest := abxDay.AddDate(0, 0, -opts.CultureBeforeAbxDays)
		latest := abxDay.AddDate(0, 0, opts.CultureAfterAbxDays)
		for _, bc := range cultures {
			if !inStay(bc) {
				continue
			}
			bcDay := models.DateOf(bc)
			if bcDay.Before(earliest) || bcDay.After(latest) {
				continue
			}
			if !found || bc.Before(minBC) {
				minBC = bc
			}
			if !found || abx.Before(minAbx) {
				minAbx = abx
			}
			found = true
		}
	}
	return minBC, minAbx, found
}
