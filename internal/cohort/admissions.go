// Package cohort turns visits into admissions and anchors admissions at a
// suspected-infection index date.
package cohort

import (
	"sort"
	"time"

	"github.com/clinlabel/sepsis/internal/models"
)

// AdultAgeYears is the age above which a patient counts as adult.
const AdultAgeYears = 18

// Options controls admission building.
type Options struct {
	// VisitConcepts lists the qualifying visit types; empty means inpatient and ER-to-inpatient.
	VisitConcepts []int64
	// MinStayHour keeps visits lasting more than this many whole hours. Nil disables the filter.
	MinStayHour *int
	// Limit caps the number of qualifying visits considered. Zero means no cap.
	Limit int
}

type endpoint struct {
	at    time.Time
	delta int
}

// BuildAdmissions merges each person's overlapping or touching visits into
// maximal stays and attaches demographics. Persons missing from persons are
// skipped. The result is ordered by person and admit time.
func BuildAdmissions(visits []models.VisitOccurrence, persons map[int64]models.Demographics, opts Options) []models.Admission {
	qualifying := filterVisits(visits, persons, opts)

	byPerson := make(map[int64][]endpoint)
	var ids []int64
	for _, v := range qualifying {
		if _, ok := byPerson[v.PersonID]; !ok {
			ids = append(ids, v.PersonID)
		}
		byPerson[v.PersonID] = append(byPerson[v.PersonID],
			endpoint{at: *v.VisitStartDatetime, delta: 1},
			endpoint{at: *v.VisitEndDatetime, delta: -1})
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []models.Admission
	for _, id := range ids {
		for _, stay := range sweep(byPerson[id]) {
			out = append(out, newAdmission(id, stay[0], stay[1], persons[id]))
		}
	}
	return out
}

func filterVisits(visits []models.VisitOccurrence, persons map[int64]models.Demographics, opts Options) []models.VisitOccurrence {
	concepts := opts.VisitConcepts
	if len(concepts) == 0 {
		concepts = []int64{models.VisitInpatient, models.VisitERAndInpatient}
	}
	allowed := make(map[int64]bool, len(concepts))
	for _, c := range concepts {
		allowed[c] = true
	}

	var out []models.VisitOccurrence
	for _, v := range visits {
		if !allowed[v.VisitConceptID] || v.VisitStartDatetime == nil || v.VisitEndDatetime == nil {
			continue
		}
		if !v.VisitEndDatetime.After(*v.VisitStartDatetime) {
			continue
		}
		if _, ok := persons[v.PersonID]; !ok {
			continue
		}
		if opts.MinStayHour != nil {
			hours := int(v.VisitEndDatetime.Sub(*v.VisitStartDatetime) / time.Hour)
			if hours <= *opts.MinStayHour {
				continue
			}
		}
		out = append(out, v)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PersonID != out[j].PersonID {
			return out[i].PersonID < out[j].PersonID
		}
		return out[i].VisitStartDatetime.Before(*out[j].VisitStartDatetime)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// sweep walks the endpoints in time order keeping a running count of open
// visits. Endpoints sharing a timestamp are netted first, so a visit ending
// exactly when the next one starts does not close the stay.
func sweep(points []endpoint) [][2]time.Time {
	sort.Slice(points, func(i, j int) bool { return points[i].at.Before(points[j].at) })

	var stays [][2]time.Time
	open := 0
	var admit time.Time
	for i := 0; i < len(points); {
		at := points[i].at
		net := 0
		for ; i < len(points) && points[i].at.Equal(at); i++ {
			net += points[i].delta
		}
		if open == 0 && net > 0 {
			admit = at
		}
		open += net
		if open == 0 && net != 0 {
			stays = append(stays, [2]time.Time{admit, at})
		}
	}
	return stays
}

func newAdmission(personID int64, admit, discharge time.Time, p models.Demographics) models.Admission {
	a := models.Admission{
		PersonID:          personID,
		AdmitDatetime:     admit,
		AdmitDate:         models.DateOf(admit),
		DischargeDatetime: discharge,
		DischargeDate:     models.DateOf(discharge),
		BirthDatetime:     p.BirthDatetime,
		GenderName:        p.GenderName,
		RaceName:          p.RaceName,
		EthnicityName:     p.EthnicityName,
		AdultAtAdmission:  true,
	}
	if p.BirthDatetime != nil {
		years := YearsBetween(*p.BirthDatetime, admit)
		months := MonthsBetween(*p.BirthDatetime, admit)
		a.AgeInYears = &years
		a.AgeInMonths = &months
		a.AdultAtAdmission = years > AdultAgeYears
	}
	return a
}

// YearsBetween counts calendar-year boundaries crossed from birth to at.
func YearsBetween(birth, at time.Time) int {
	return at.UTC().Year() - birth.UTC().Year()
}

// MonthsBetween counts calendar-month boundaries crossed from birth to at.
func MonthsBetween(birth, at time.Time) int {
	b, a := birth.UTC(), at.UTC()
	return (a.Year()-b.Year())*12 + int(a.Month()) - int(b.Month())
}
