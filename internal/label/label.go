// Package label compares current and prior severity and labels admissions.
package label

import (
	"github.com/clinlabel/sepsis/internal/models"
	"github.com/clinlabel/sepsis/internal/sofa"
)

// Threshold is the SOFA increase that makes an admission septic.
const Threshold = 2

// Options controls labeling of admissions without a suspected infection.
type Options struct {
	// UnmatchedNull leaves the label NULL instead of 0.
	UnmatchedNull bool
}

// Difference pairs every current score with the prior score of the same
// admission. A missing prior score counts as all zeros and is reported
// through PriorHasData.
func Difference(current, prior []models.SofaScore) []models.SofaDifference {
	priorByKey := make(map[models.AdmissionKey]*models.SofaScore, len(prior))
	for i := range prior {
		priorByKey[prior[i].Key()] = &prior[i]
	}

	out := make([]models.SofaDifference, 0, len(current))
	for i := range current {
		c := &current[i]
		p, ok := priorByKey[c.Key()]
		if !ok {
			p = &models.SofaScore{}
		}
		out = append(out, diff(c, p))
	}
	return out
}

func diff(c, p *models.SofaScore) models.SofaDifference {
	d := models.SofaDifference{
		PersonID:      c.PersonID,
		AdmitDate:     c.AdmitDate,
		DischargeDate: c.DischargeDate,

		SofaScoreCurrent: c.SofaTotal,
		SofaScorePrior:   p.SofaTotal,
		SofaScoreDiff:    c.SofaTotal - p.SofaTotal,
		SofaCurrent:      c.IsSOFAPositive(),
		SofaPrior:        p.IsSOFAPositive(),

		ShockScoreCurrent: c.ShockScore,
		ShockScorePrior:   p.ShockScore,
		ShockScoreDiff:    c.ShockScore - p.ShockScore,
		Shock:             sofa.IsShock(c.ShockScore),
		ShockPrior:        sofa.IsShock(p.ShockScore),

		PlatSOFAGT2Diff:  c.PlatSOFA-p.PlatSOFA >= 2,
		BiliSOFAGT2Diff:  c.BiliSOFA-p.BiliSOFA >= 2,
		CreaSOFAGT2Diff:  c.CreaSOFA-p.CreaSOFA >= 2,
		CvSOFAGT2Diff:    c.CvSOFA-p.CvSOFA >= 2,
		RespSOFAGT2Diff:  c.RespSOFA-p.RespSOFA >= 2,
		GcsSOFAGT2Diff:   c.GcsSOFA-p.GcsSOFA >= 2,
		UrineSOFAGT2Diff: c.UrineSOFA-p.UrineSOFA >= 2,

		VasoShockDiff: c.VasoShock-p.VasoShock == 1,
		MapShockDiff:  c.MapShock-p.MapShock == 1,
		LactShockDiff: c.LactShock-p.LactShock == 1,

		PriorHasData: p.HasData,
	}
	d.SofaDiff = IsSeptic(d.SofaScoreDiff)
	d.ShockDiff = d.ShockScoreDiff == 2
	return d
}

// IsSeptic applies the label threshold to a SOFA difference.
func IsSeptic(sofaDiff int) bool {
	return sofaDiff >= Threshold
}

// Apply joins differences onto every admission and sets the label.
func Apply(admissions []models.Admission, diffs []models.SofaDifference, opts Options) []models.LabeledAdmission {
	byKey := make(map[models.AdmissionKey]*models.SofaDifference, len(diffs))
	for i := range diffs {
		byKey[diffs[i].Key()] = &diffs[i]
	}

	out := make([]models.LabeledAdmission, 0, len(admissions))
	for i := range admissions {
		a := &admissions[i]
		l := models.LabeledAdmission{
			PersonID:          a.PersonID,
			AdmitDatetime:     a.AdmitDatetime,
			AdmitDate:         a.AdmitDate,
			DischargeDatetime: a.DischargeDatetime,
			DischargeDate:     a.DischargeDate,
			BirthDatetime:     a.BirthDatetime,
			GenderName:        a.GenderName,
			RaceName:          a.RaceName,
			EthnicityName:     a.EthnicityName,
			AgeInYears:        a.AgeInYears,
			AgeInMonths:       a.AgeInMonths,
			AdultAtAdmission:  a.AdultAtAdmission,
		}

		if d, ok := byKey[a.Key()]; ok {
			sofaDiff, shockDiff := d.SofaScoreDiff, d.ShockScoreDiff
			label := 0
			if IsSeptic(sofaDiff) {
				label = 1
			}
			l.SofaDiff, l.ShockDiff, l.SepsisLabel = &sofaDiff, &shockDiff, &label
		} else if !opts.UnmatchedNull {
			label := 0
			l.SepsisLabel = &label
		}
		out = append(out, l)
	}
	return out
}
