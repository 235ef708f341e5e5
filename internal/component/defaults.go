package component

import (
	"time"

	"github.com/clinlabel/sepsis/internal/models"
)

// Variable names of the default registry.
const (
	Platelet       = "platelet"
	Creatinine     = "creatinine"
	Bilirubin      = "bilirubin"
	GCS            = "gcs"
	Vent           = "vent"
	Lactate        = "lactate"
	PaO2FiO2       = "pao2_fio2"
	SpO2FiO2       = "spo2_fio2"
	Dopamine       = "dopamine"
	Dobutamine     = "dobutamine"
	Epinephrine    = "epinephrine"
	Norepinephrine = "norepinephrine"
	MAP            = "map"
	Urine          = "urine"
)

// FiO2Denominator names the FiO2 readings the ratio variables divide by.
const FiO2Denominator = "fio2"

// Value columns the scorer reads.
const (
	ColMinPlatelet           = "min_platelet"
	ColMaxCreatinine         = "max_creatinine"
	ColMaxBilirubin          = "max_bilirubin"
	ColMinGCS                = "min_gcs"
	ColCountVentMode         = "count_vent_mode"
	ColMaxLactate            = "max_lactate"
	ColMinPaO2FiO2           = "min_pao2fio2_ratio"
	ColMinSpO2FiO2           = "min_spo2fio2_ratio"
	ColMaxDopamineDays       = "max_dopamine_days"
	ColMaxDobutamineDays     = "max_dobutamine_days"
	ColMaxEpinephrineDays    = "max_epinephrine_days"
	ColMaxNorepinephrineDays = "max_norepinephrine_days"
	ColMinMAP                = "min_map"
	ColMinUrineDaily         = "min_urine_daily"
)

// Flowsheet display names.
var (
	FiO2Names  = []string{"FiO2", "FiO2 (%)", "O2 % (FiO2)", "Oxygen Concentration (%)"}
	SpO2Names  = []string{"SpO2", "SpO2 (%)", "Pulse Oximetry"}
	VentNames  = []string{"Vent Mode", "Ventilator Mode", "Mechanical Ventilation Mode"}
	MAPNames   = []string{"MAP", "Mean Arterial Pressure", "MAP (mmHg)", "Arterial Line MAP (mmHg)"}
	UrineNames = []string{"Urine", "Urine Output", "Urine (mL)", "Voided Urine (mL)", "Foley Output (mL)"}
)

// RxNorm ingredient concepts of the vasopressor agents.
const (
	DopamineIngredient       int64 = 1337860
	DobutamineIngredient     int64 = 1337720
	EpinephrineIngredient    int64 = 1343916
	NorepinephrineIngredient int64 = 1321341
)

// RatioMaxGap bounds how far a denominator may precede its numerator.
const RatioMaxGap = 24 * time.Hour

func measurements(descendants bool, ids ...int64) Selector {
	return Selector{Kind: models.FactMeasurement, Concepts: models.ConceptSet{IDs: ids, Descendants: descendants}}
}

func flowsheets(names []string) Selector {
	return Selector{Kind: models.FactObservation, Names: names}
}

func drug(ingredient int64) Selector {
	return Selector{Kind: models.FactDrug, Concepts: models.ConceptSet{IDs: []int64{ingredient}, Descendants: true}}
}

func fio2() *Ratio {
	return &Ratio{Denominator: flowsheets(FiO2Names), Normalize: NormalizeFiO2, MaxGap: RatioMaxGap}
}

// DefaultVariables returns the variables the severity score is built from.
func DefaultVariables() []Variable {
	return []Variable{
		{Name: Platelet, Column: ColMinPlatelet, Select: measurements(true, 37037425, 40654106), Normalize: Positive, Aggregate: AggMin},
		{Name: Creatinine, Column: ColMaxCreatinine, Select: measurements(true, 37029387, 4013964, 2212294, 3051825), Normalize: NormalizeCreatinine, Aggregate: AggMax},
		{Name: Bilirubin, Column: ColMaxBilirubin, Select: measurements(true, 3024128, 3006140), Normalize: NormalizeBilirubin, Aggregate: AggMax},
		{Name: GCS, Column: ColMinGCS, Select: measurements(false, 3032652), Normalize: Between(3, 15), Aggregate: AggMin},
		{Name: Vent, Column: ColCountVentMode, Select: flowsheets(VentNames), Aggregate: AggCount, RequireText: true},
		{Name: Lactate, Column: ColMaxLactate, Select: measurements(true, 3047181, 3014111), Normalize: NormalizeLactate, Aggregate: AggMax},
		{Name: PaO2FiO2, Column: ColMinPaO2FiO2, Select: measurements(true, 3027315, 3027801), Normalize: Positive, Shape: ShapeRatio, Aggregate: AggMin, Ratio: fio2()},
		{Name: SpO2FiO2, Column: ColMinSpO2FiO2, Select: flowsheets(SpO2Names), Normalize: Between(1, 100), Shape: ShapeRatio, Aggregate: AggMin, Ratio: fio2()},
		{Name: Dopamine, Column: ColMaxDopamineDays, Select: drug(DopamineIngredient), Shape: ShapeExposureDays, Aggregate: AggMax},
		{Name: Dobutamine, Column: ColMaxDobutamineDays, Select: drug(DobutamineIngredient), Shape: ShapeExposureDays, Aggregate: AggMax},
		{Name: Epinephrine, Column: ColMaxEpinephrineDays, Select: drug(EpinephrineIngredient), Shape: ShapeExposureDays, Aggregate: AggMax},
		{Name: Norepinephrine, Column: ColMaxNorepinephrineDays, Select: drug(NorepinephrineIngredient), Shape: ShapeExposureDays, Aggregate: AggMax},
		{Name: MAP, Column: ColMinMAP, Select: flowsheets(MAPNames), Normalize: Positive, Aggregate: AggMin},
		{Name: Urine, Column: ColMinUrineDaily, Select: flowsheets(UrineNames), Normalize: NonNegative, Shape: ShapeDailyTotal, Aggregate: AggMin},
	}
}

// Default returns a fresh registry holding DefaultVariables.
func Default() *Registry {
	r := NewRegistry()
	for _, v := range DefaultVariables() {
		r.MustRegister(v)
	}
	return r
}
