package models

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// Admission is one maximal inpatient stay built from contiguous visits.
type Admission struct {
	bun.BaseModel `bun:"table:admission_rollup,alias:adm"`

	PersonID          int64      `bun:"person_id,notnull" json:"person_id"`
	AdmitDatetime     time.Time  `bun:"admit_datetime,notnull" json:"admit_datetime"`
	AdmitDate         time.Time  `bun:"admit_date,notnull" json:"admit_date"`
	DischargeDatetime time.Time  `bun:"discharge_datetime,notnull" json:"discharge_datetime"`
	DischargeDate     time.Time  `bun:"discharge_date,notnull" json:"discharge_date"`
	BirthDatetime     *time.Time `bun:"birth_datetime" json:"birth_datetime,omitempty"`
	GenderName        *string    `bun:"gender_name" json:"gender_name,omitempty"`
	RaceName          *string    `bun:"race_name" json:"race_name,omitempty"`
	EthnicityName     *string    `bun:"ethnicity_name" json:"ethnicity_name,omitempty"`
	AgeInYears        *int       `bun:"age_in_years" json:"age_in_years,omitempty"`
	AgeInMonths       *int       `bun:"age_in_months" json:"age_in_months,omitempty"`
	AdultAtAdmission  bool       `bun:"adult_at_admission" json:"adult_at_admission"`
}

// Key identifies the admission in every downstream relation.
func (a *Admission) Key() AdmissionKey {
	return AdmissionKey{PersonID: a.PersonID, AdmitDate: DateOf(a.AdmitDate)}
}

// Validate checks the interval invariant.
func (a *Admission) Validate() error {
	if a.PersonID == 0 {
		return errors.New("person_id is required")
	}
	if !a.DischargeDatetime.After(a.AdmitDatetime) {
		return errors.New("discharge must be after admit")
	}
	return nil
}

// AdmissionKey joins admissions, rollups and scores.
type AdmissionKey struct {
	PersonID  int64
	AdmitDate time.Time
}

// Before orders keys by person then admit date.
func (k AdmissionKey) Before(o AdmissionKey) bool {
	if k.PersonID != o.PersonID {
		return k.PersonID < o.PersonID
	}
	return k.AdmitDate.Before(o.AdmitDate)
}

// SuspectedInfection anchors an admission at its index date.
type SuspectedInfection struct {
	bun.BaseModel `bun:"table:susp_inf_rollup,alias:si"`

	PersonID          int64     `bun:"person_id,notnull" json:"person_id"`
	AdmitDate         time.Time `bun:"admit_date,notnull" json:"admit_date"`
	AdmitDatetime     time.Time `bun:"admit_datetime,notnull" json:"admit_datetime"`
	DischargeDate     time.Time `bun:"discharge_date,notnull" json:"discharge_date"`
	DischargeDatetime time.Time `bun:"discharge_datetime,notnull" json:"discharge_datetime"`
	MinBloodCulture   time.Time `bun:"min_bc,notnull" json:"min_bc"`
	MinSystemicAbx    time.Time `bun:"min_systemic_abx,notnull" json:"min_systemic_abx"`
	IndexDate         time.Time `bun:"index_date,notnull" json:"index_date"`
	AgeInMonths       *int      `bun:"age_in_months" json:"age_in_months,omitempty"`
}

// Key identifies the admission the infection belongs to.
func (s *SuspectedInfection) Key() AdmissionKey {
	return AdmissionKey{PersonID: s.PersonID, AdmitDate: DateOf(s.AdmitDate)}
}
