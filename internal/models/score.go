package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Organ names the SOFA organ systems in scoring order.
type Organ string

const (
	OrganCoagulation    Organ = "plat"
	OrganLiver          Organ = "bili"
	OrganRenal          Organ = "crea"
	OrganCardiovascular Organ = "cv"
	OrganRespiratory    Organ = "resp"
	OrganNeurological   Organ = "gcs"
	OrganUrine          Organ = "urine"
)

// Organs lists every organ that contributes to the SOFA total.
var Organs = []Organ{
	OrganCoagulation, OrganLiver, OrganRenal, OrganCardiovascular,
	OrganRespiratory, OrganNeurological, OrganUrine,
}

// SofaScore is one admission's severity evaluation for a single window variant.
type SofaScore struct {
	bun.BaseModel `bun:"table:sofa_score,alias:ss"`

	PersonID        int64     `bun:"person_id,notnull" json:"person_id"`
	AdmitDate       time.Time `bun:"admit_date,notnull" json:"admit_date"`
	DischargeDate   time.Time `bun:"discharge_date,notnull" json:"discharge_date"`
	MinBloodCulture time.Time `bun:"min_bc,notnull" json:"min_bc"`
	MinSystemicAbx  time.Time `bun:"min_systemic_abx,notnull" json:"min_systemic_abx"`
	IndexDate       time.Time `bun:"index_date,notnull" json:"index_date"`
	AgeInMonths     *int      `bun:"age_in_months" json:"age_in_months,omitempty"`

	MinPlatelet   NullableFloat64 `bun:"min_platelet,type:double precision" json:"min_platelet"`
	PlatSOFA      int             `bun:"plat_sofa,notnull" json:"plat_sofa"`
	MaxBilirubin  NullableFloat64 `bun:"max_bilirubin,type:double precision" json:"max_bilirubin"`
	BiliSOFA      int             `bun:"bili_sofa,notnull" json:"bili_sofa"`
	MaxCreatinine NullableFloat64 `bun:"max_creatinine,type:double precision" json:"max_creatinine"`
	CreaSOFA      int             `bun:"crea_sofa,notnull" json:"crea_sofa"`

	MaxDopamineDays       NullableFloat64 `bun:"max_dopamine_days,type:double precision" json:"max_dopamine_days"`
	MaxDobutamineDays     NullableFloat64 `bun:"max_dobutamine_days,type:double precision" json:"max_dobutamine_days"`
	MaxEpinephrineDays    NullableFloat64 `bun:"max_epinephrine_days,type:double precision" json:"max_epinephrine_days"`
	MaxNorepinephrineDays NullableFloat64 `bun:"max_norepinephrine_days,type:double precision" json:"max_norepinephrine_days"`
	MinMAP                NullableFloat64 `bun:"min_map,type:double precision" json:"min_map"`
	CvSOFA                int             `bun:"cv_sofa,notnull" json:"cv_sofa"`

	CountVentMode    NullableFloat64 `bun:"count_vent_mode,type:double precision" json:"count_vent_mode"`
	MinPaO2FiO2Ratio NullableFloat64 `bun:"min_pao2fio2_ratio,type:double precision" json:"min_pao2fio2_ratio"`
	PaO2RespSOFA     int             `bun:"pao2_resp_sofa,notnull" json:"pao2_resp_sofa"`
	MinSpO2FiO2Ratio NullableFloat64 `bun:"min_spo2fio2_ratio,type:double precision" json:"min_spo2fio2_ratio"`
	SpO2RespSOFA     int             `bun:"spo2_resp_sofa,notnull" json:"spo2_resp_sofa"`
	RespSOFA         int             `bun:"resp_sofa,notnull" json:"resp_sofa"`

	MinGCS        NullableFloat64 `bun:"min_gcs,type:double precision" json:"min_gcs"`
	GcsSOFA       int             `bun:"gcs_sofa,notnull" json:"gcs_sofa"`
	MinUrineDaily NullableFloat64 `bun:"min_urine_daily,type:double precision" json:"min_urine_daily"`
	UrineSOFA     int             `bun:"urine_sofa,notnull" json:"urine_sofa"`
	MaxLactate    NullableFloat64 `bun:"max_lactate,type:double precision" json:"max_lactate"`

	VasoShock  int  `bun:"vaso_shock,notnull" json:"vaso_shock"`
	MapShock   int  `bun:"map_shock,notnull" json:"map_shock"`
	LactShock  int  `bun:"lact_shock,notnull" json:"lact_shock"`
	ShockScore int  `bun:"shock_score,notnull" json:"shock_score"`
	Shock      bool `bun:"shock,notnull" json:"shock"`

	SofaTotal int  `bun:"sofa_total,notnull" json:"sofa_total"`
	HasData   bool `bun:"has_data,notnull" json:"has_data"`
}

// Key identifies the admission of the score.
func (s *SofaScore) Key() AdmissionKey {
	return AdmissionKey{PersonID: s.PersonID, AdmitDate: DateOf(s.AdmitDate)}
}

// OrganScore returns the sub-score of one organ system.
func (s *SofaScore) OrganScore(o Organ) int {
	switch o {
	case OrganCoagulation:
		return s.PlatSOFA
	case OrganLiver:
		return s.BiliSOFA
	case OrganRenal:
		return s.CreaSOFA
	case OrganCardiovascular:
		return s.CvSOFA
	case OrganRespiratory:
		return s.RespSOFA
	case OrganNeurological:
		return s.GcsSOFA
	case OrganUrine:
		return s.UrineSOFA
	}
	return 0
}

// IsSOFAPositive reports a total of at least two points.
func (s *SofaScore) IsSOFAPositive() bool {
	return s.SofaTotal >= 2
}
