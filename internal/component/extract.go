package component

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/clinlabel/sepsis/internal/models"
)

// Rollup is one variable's values for one window variant. Admissions
// without an in-window fact have no entry.
type Rollup struct {
	Variable Variable
	Variant  models.WindowVariant
	Values   []models.ComponentValue
}

// Extract evaluates v for every suspected-infection admission in the window
// band of variant.
func Extract(ctx context.Context, src FactSource, v Variable, variant models.WindowVariant, windows models.VariantWindows, infections []models.SuspectedInfection) (Rollup, error) {
	if err := v.Validate(); err != nil {
		return Rollup{}, err
	}
	if !variant.Valid() {
		return Rollup{}, fmt.Errorf("unknown window variant %q", variant)
	}
	window := windows.For(variant)
	if err := window.Validate(); err != nil {
		return Rollup{}, fmt.Errorf("%s window: %w", variant, err)
	}

	facts, err := src.Facts(ctx, v.Select)
	if err != nil {
		return Rollup{}, fmt.Errorf("load %s facts: %w", v.Name, err)
	}
	byPerson := groupByPerson(facts)

	var denominators map[int64][]Fact
	if v.shape() == ShapeRatio {
		raw, err := src.Facts(ctx, v.Ratio.Denominator)
		if err != nil {
			return Rollup{}, fmt.Errorf("load %s denominators: %w", v.Name, err)
		}
		denominators = groupByPerson(normalizeAll(raw, v.Ratio.Normalize))
	}

	rollup := Rollup{Variable: v, Variant: variant}
	for i := range infections {
		if err := ctx.Err(); err != nil {
			return Rollup{}, err
		}
		si := &infections[i]
		personFacts := byPerson[si.PersonID]
		if len(personFacts) == 0 {
			continue
		}

		var value float64
		var ok bool
		switch v.shape() {
		case ShapeValue:
			value, ok = v.plain(personFacts, window, si.IndexDate)
		case ShapeExposureDays:
			value, ok = v.exposure(personFacts, window, si.IndexDate)
		case ShapeDailyTotal:
			value, ok = v.daily(personFacts, window, si)
		case ShapeRatio:
			value, ok = v.ratio(personFacts, duringStay(denominators[si.PersonID], si), window, si.IndexDate)
		}
		if !ok {
			continue
		}

		rollup.Values = append(rollup.Values, models.ComponentValue{
			PersonID:      si.PersonID,
			AdmitDate:     si.AdmitDate,
			AdmitDatetime: si.AdmitDatetime,
			Measure:       v.Column,
			Value:         models.Float(value),
		})
	}

	sort.SliceStable(rollup.Values, func(i, j int) bool {
		a, b := rollup.Values[i], rollup.Values[j]
		if a.PersonID != b.PersonID {
			return a.PersonID < b.PersonID
		}
		if !a.AdmitDate.Equal(b.AdmitDate) {
			return a.AdmitDate.Before(b.AdmitDate)
		}
		return a.AdmitDatetime.Before(b.AdmitDatetime)
	})
	return rollup, nil
}

func (v Variable) valueOf(f Fact) (float64, bool) {
	if !f.HasValue {
		return 0, false
	}
	if v.Normalize == nil {
		return f.Value, true
	}
	return v.Normalize(f.Value, f.Unit)
}

func (v Variable) plain(facts []Fact, w models.Window, index time.Time) (float64, bool) {
	acc := newAccumulator(v.Aggregate)
	for _, f := range facts {
		if !w.Contains(index, f.Start) {
			continue
		}
		if v.RequireText && f.Text == "" {
			continue
		}
		if v.Aggregate == AggCount {
			acc.add(1)
			continue
		}
		if x, ok := v.valueOf(f); ok {
			acc.add(x)
		}
	}
	return acc.result()
}

func (v Variable) exposure(facts []Fact, w models.Window, index time.Time) (float64, bool) {
	acc := newAccumulator(v.Aggregate)
	for _, f := range facts {
		if !w.Overlaps(index, f.Start, f.End) {
			continue
		}
		acc.add(float64(daysBetween(f.Start, f.End) + 1))
	}
	return acc.result()
}

type dayTotal struct {
	sum         float64
	first, last time.Time
}

// daily sums in-window readings per calendar day and scales the partial
// admission and discharge days to a 24-hour equivalent.
func (v Variable) daily(facts []Fact, w models.Window, si *models.SuspectedInfection) (float64, bool) {
	days := make(map[time.Time]*dayTotal)
	for _, f := range facts {
		if !w.Contains(si.IndexDate, f.Start) {
			continue
		}
		x, ok := v.valueOf(f)
		if !ok {
			continue
		}
		day := models.DateOf(f.Start)
		t, seen := days[day]
		if !seen {
			t = &dayTotal{first: f.Start, last: f.Start}
			days[day] = t
		}
		t.sum += x
		if f.Start.Before(t.first) {
			t.first = f.Start
		}
		if f.Start.After(t.last) {
			t.last = f.Start
		}
	}

	admitDay := models.DateOf(si.AdmitDatetime)
	dischargeDay := models.DateOf(si.DischargeDatetime)

	acc := newAccumulator(v.Aggregate)
	for day, t := range days {
		acc.add(AdjustDailyTotal(day, t.sum, t.first, t.last, admitDay, dischargeDay))
	}
	return acc.result()
}

// AdjustDailyTotal scales the total of day to 24 hours when day is the
// admission or discharge day. Interior days are returned unscaled.
func AdjustDailyTotal(day time.Time, total float64, first, last, admitDay, dischargeDay time.Time) float64 {
	midnight := day.Add(24 * time.Hour)
	var hours float64
	switch {
	case day.Equal(admitDay) && day.Equal(dischargeDay):
		hours = last.Sub(first).Hours()
	case day.Equal(admitDay):
		hours = midnight.Sub(first).Hours()
	case day.Equal(dischargeDay):
		hours = last.Sub(day).Hours()
	default:
		return total
	}
	if hours <= 0 {
		return total
	}
	return total * 24 / hours
}

func (v Variable) ratio(numerators, denominators []Fact, w models.Window, index time.Time) (float64, bool) {
	acc := newAccumulator(v.Aggregate)
	for _, n := range numerators {
		if !w.Contains(index, n.Start) {
			continue
		}
		num, ok := v.valueOf(n)
		if !ok {
			continue
		}
		den, ok := PrecedingDenominator(denominators, n.Start, v.Ratio.MaxGap)
		if !ok || den == 0 {
			continue
		}
		acc.add(num / den)
	}
	return acc.result()
}

// PrecedingDenominator returns the value of the latest fact at or before at,
// provided it is no more than maxGap earlier. facts must be sorted by Start.
func PrecedingDenominator(facts []Fact, at time.Time, maxGap time.Duration) (float64, bool) {
	i := sort.Search(len(facts), func(i int) bool { return facts[i].Start.After(at) })
	if i == 0 {
		return 0, false
	}
	f := facts[i-1]
	if at.Sub(f.Start) > maxGap {
		return 0, false
	}
	return f.Value, true
}

// duringStay narrows facts, sorted by Start, to those recorded between
// admission and discharge of si, both inclusive.
func duringStay(facts []Fact, si *models.SuspectedInfection) []Fact {
	lo := sort.Search(len(facts), func(i int) bool { return !facts[i].Start.Before(si.AdmitDatetime) })
	hi := sort.Search(len(facts), func(i int) bool { return facts[i].Start.After(si.DischargeDatetime) })
	if lo >= hi {
		return nil
	}
	return facts[lo:hi]
}

func normalizeAll(facts []Fact, normalize Normalizer) []Fact {
	out := make([]Fact, 0, len(facts))
	for _, f := range facts {
		if !f.HasValue {
			continue
		}
		if normalize != nil {
			x, ok := normalize(f.Value, f.Unit)
			if !ok {
				continue
			}
			f.Value = x
		}
		out = append(out, f)
	}
	return out
}

func groupByPerson(facts []Fact) map[int64][]Fact {
	out := make(map[int64][]Fact)
	for _, f := range facts {
		out[f.PersonID] = append(out[f.PersonID], f)
	}
	for _, list := range out {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Start.Before(list[j].Start) })
	}
	return out
}

func daysBetween(start, end time.Time) int {
	return int(models.DateOf(end).Sub(models.DateOf(start)).Hours() / 24)
}

type accumulator struct {
	agg   Aggregation
	value float64
	n     int
}

func newAccumulator(agg Aggregation) *accumulator {
	return &accumulator{agg: agg}
}

func (a *accumulator) add(x float64) {
	switch {
	case a.agg == AggCount:
		a.value++
	case a.n == 0:
		a.value = x
	case a.agg == AggMin && x < a.value:
		a.value = x
	case a.agg == AggMax && x > a.value:
		a.value = x
	}
	a.n++
}

func (a *accumulator) result() (float64, bool) {
	return a.value, a.n > 0
}
