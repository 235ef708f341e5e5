package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SofaDifference compares the current and prior evaluation of one admission.
type SofaDifference struct {
	bun.BaseModel `bun:"table:sofa_difference,alias:sd"`

	PersonID      int64     `bun:"person_id,notnull" json:"person_id"`
	AdmitDate     time.Time `bun:"admit_date,notnull" json:"admit_date"`
	DischargeDate time.Time `bun:"discharge_date,notnull" json:"discharge_date"`

	SofaScoreCurrent int  `bun:"sofa_score_current,notnull" json:"sofa_score_current"`
	SofaScorePrior   int  `bun:"sofa_score_prior,notnull" json:"sofa_score_prior"`
	SofaScoreDiff    int  `bun:"sofa_score_diff,notnull" json:"sofa_score_diff"`
	SofaCurrent      bool `bun:"sofa_current,notnull" json:"sofa_current"`
	SofaPrior        bool `bun:"sofa_prior,notnull" json:"sofa_prior"`
	SofaDiff         bool `bun:"sofa_diff,notnull" json:"sofa_diff"`

	ShockScoreCurrent int  `bun:"shock_score,notnull" json:"shock_score"`
	ShockScorePrior   int  `bun:"shock_score_prior,notnull" json:"shock_score_prior"`
	ShockScoreDiff    int  `bun:"shock_score_diff,notnull" json:"shock_score_diff"`
	Shock             bool `bun:"shock,notnull" json:"shock"`
	ShockPrior        bool `bun:"shock_prior,notnull" json:"shock_prior"`
	ShockDiff         bool `bun:"shock_diff,notnull" json:"shock_diff"`

	PlatSOFAGT2Diff  bool `bun:"plat_sofa_gt2_diff,notnull" json:"plat_sofa_gt2_diff"`
	BiliSOFAGT2Diff  bool `bun:"bili_sofa_gt2_diff,notnull" json:"bili_sofa_gt2_diff"`
	CreaSOFAGT2Diff  bool `bun:"crea_sofa_gt2_diff,notnull" json:"crea_sofa_gt2_diff"`
	CvSOFAGT2Diff    bool `bun:"cv_sofa_gt2_diff,notnull" json:"cv_sofa_gt2_diff"`
	RespSOFAGT2Diff  bool `bun:"resp_sofa_gt2_diff,notnull" json:"resp_sofa_gt2_diff"`
	GcsSOFAGT2Diff   bool `bun:"gcs_sofa_gt2_diff,notnull" json:"gcs_sofa_gt2_diff"`
	UrineSOFAGT2Diff bool `bun:"urine_sofa_gt2_diff,notnull" json:"urine_sofa_gt2_diff"`

	VasoShockDiff bool `bun:"vaso_shock_diff,notnull" json:"vaso_shock_diff"`
	MapShockDiff  bool `bun:"map_shock_diff,notnull" json:"map_shock_diff"`
	LactShockDiff bool `bun:"lact_shock_diff,notnull" json:"lact_shock_diff"`

	PriorHasData bool `bun:"prior_has_data,notnull" json:"prior_has_data"`
}

// Key identifies the admission of the difference.
func (d *SofaDifference) Key() AdmissionKey {
	return AdmissionKey{PersonID: d.PersonID, AdmitDate: DateOf(d.AdmitDate)}
}

// LabeledAdmission is the admission cohort with the sepsis label attached.
type LabeledAdmission struct {
	bun.BaseModel `bun:"table:admission_rollup_labeled,alias:la"`

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

	SofaDiff    *int `bun:"sofa_diff" json:"sofa_diff,omitempty"`
	ShockDiff   *int `bun:"shock_diff" json:"shock_diff,omitempty"`
	SepsisLabel *int `bun:"sepsis" json:"sepsis"`
}

// IsSeptic reports a positive label.
func (l *LabeledAdmission) IsSeptic() bool {
	return l.SepsisLabel != nil && *l.SepsisLabel == 1
}
