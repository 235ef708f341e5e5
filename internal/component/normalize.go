package component

import "github.com/clinlabel/sepsis/internal/models"

// Conversion factors to the units of the scoring ladders.
const (
	creatinineMicromolToMg = 0.0113122
	creatinineMicrogToMg   = 0.001
	bilirubinMicromolPerMg = 17.1
	lactateMgPerMmol       = 9.008
	minFiO2                = 0.21
	maxFiO2                = 1.0
)

// Positive keeps values above zero.
func Positive(v float64, _ int64) (float64, bool) {
	return v, v > 0
}

// NonNegative keeps values of zero or more.
func NonNegative(v float64, _ int64) (float64, bool) {
	return v, v >= 0
}

// Between keeps values in [lo, hi].
func Between(lo, hi float64) Normalizer {
	return func(v float64, _ int64) (float64, bool) {
		return v, v >= lo && v <= hi
	}
}

// NormalizeCreatinine converts µmol/L and µg/dL to mg/dL.
func NormalizeCreatinine(v float64, unit int64) (float64, bool) {
	switch unit {
	case models.UnitMicromolePerLiter:
		v *= creatinineMicromolToMg
	case models.UnitMicrogramPerDeciliter:
		v *= creatinineMicrogToMg
	}
	return v, v > 0
}

// NormalizeBilirubin converts µmol/L to mg/dL.
func NormalizeBilirubin(v float64, unit int64) (float64, bool) {
	if unit == models.UnitMicromolePerLiter {
		v /= bilirubinMicromolPerMg
	}
	return v, v > 0
}

// NormalizeLactate converts mg/dL to mmol/L.
func NormalizeLactate(v float64, unit int64) (float64, bool) {
	if unit == models.UnitMilligramPerDeciliter {
		v /= lactateMgPerMmol
	}
	return v, v > 0
}

// NormalizeFiO2 reads values above 1 as percentages and clamps the fraction
// to [0.21, 1]. Non-positive readings are discarded.
func NormalizeFiO2(v float64, _ int64) (float64, bool) {
	if v <= 0 {
		return 0, false
	}
	if v > 1 {
		v /= 100
	}
	switch {
	case v < minFiO2:
		v = minFiO2
	case v > maxFiO2:
		v = maxFiO2
	}
	return v, true
}
