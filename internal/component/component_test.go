package component

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clinlabel/sepsis/internal/models"
)

var index = time.Date(2024, 2, 10, 9, 30, 0, 0, time.UTC)

func infection(person int64, admit, discharge time.Time) models.SuspectedInfection {
	return models.SuspectedInfection{
		PersonID:          person,
		AdmitDate:         models.DateOf(admit),
		AdmitDatetime:     admit,
		DischargeDate:     models.DateOf(discharge),
		DischargeDatetime: discharge,
		IndexDate:         index,
	}
}

type staticSource map[string][]Fact

func (s staticSource) Facts(_ context.Context, sel Selector) ([]Fact, error) {
	return s[sel.Key()], nil
}

func value(x float64) Fact {
	return Fact{Value: x, HasValue: true}
}

func at(f Fact, person int64, t time.Time) Fact {
	f.PersonID, f.Start, f.End = person, t, t
	return f
}

func mustVariable(t *testing.T, name string) Variable {
	t.Helper()
	v, err := Default().Get(name)
	if err != nil {
		t.Fatalf("get %s: %v", name, err)
	}
	return v
}

func single(t *testing.T, r Rollup) float64 {
	t.Helper()
	if len(r.Values) != 1 {
		t.Fatalf("expected one value, got %+v", r.Values)
	}
	if !r.Values[0].Value.Valid {
		t.Fatalf("expected a value")
	}
	return r.Values[0].Value.Float64
}

func TestWindowsNeverOverlap(t *testing.T) {
	w := models.DefaultWindows()
	start := index.AddDate(0, 0, -15)
	for ts := start; ts.Before(index.AddDate(0, 0, 10)); ts = ts.Add(37 * time.Minute) {
		if w.Current.Contains(index, ts) && w.Prior.Contains(index, ts) {
			t.Fatalf("%v is in both windows", ts)
		}
		if w.Current.Overlaps(index, ts, ts) && w.Prior.Overlaps(index, ts, ts) {
			t.Fatalf("point exposure %v is in both windows", ts)
		}
	}
}

func TestWindowBoundaries(t *testing.T) {
	w := models.DefaultWindows()
	day := models.DateOf(index)
	cases := []struct {
		at      time.Time
		current bool
		prior   bool
	}{
		{day.AddDate(0, 0, -2), true, false},
		{day.AddDate(0, 0, -2).Add(-time.Second), false, true},
		{day.AddDate(0, 0, 1).Add(23 * time.Hour), true, false},
		{day.AddDate(0, 0, 2), false, false},
		{day.AddDate(0, 0, -10), false, true},
		{day.AddDate(0, 0, -10).Add(-time.Second), false, false},
	}
	for _, c := range cases {
		if got := w.Current.Contains(index, c.at); got != c.current {
			t.Fatalf("current.Contains(%v) = %v", c.at, got)
		}
		if got := w.Prior.Contains(index, c.at); got != c.prior {
			t.Fatalf("prior.Contains(%v) = %v", c.at, got)
		}
	}
}

func TestExtractPlateletPerVariant(t *testing.T) {
	v := mustVariable(t, Platelet)
	admit := index.AddDate(0, 0, -1)
	si := []models.SuspectedInfection{infection(1, admit, admit.AddDate(0, 0, 5))}
	src := staticSource{v.Select.Key(): {
		at(value(180), 1, index.AddDate(0, 0, -5)),
		at(value(220), 1, index.AddDate(0, 0, -4)),
		at(value(40), 1, index),
		at(value(60), 1, index.Add(20*time.Hour)),
		at(value(-1), 1, index),
		at(value(5), 2, index),
	}}

	cur, err := Extract(context.Background(), src, v, models.VariantCurrent, models.DefaultWindows(), si)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := single(t, cur); got != 40 {
		t.Fatalf("current min platelet = %v", got)
	}
	if cur.Values[0].Measure != ColMinPlatelet {
		t.Fatalf("measure = %s", cur.Values[0].Measure)
	}

	prior, err := Extract(context.Background(), src, v, models.VariantPrior, models.DefaultWindows(), si)
	if err != nil {
		t.Fatalf("extract prior: %v", err)
	}
	if got := single(t, prior); got != 180 {
		t.Fatalf("prior min platelet = %v", got)
	}
}

func TestExtractNoFactsNoRow(t *testing.T) {
	v := mustVariable(t, Lactate)
	si := []models.SuspectedInfection{infection(1, index, index.AddDate(0, 0, 3))}
	src := staticSource{v.Select.Key(): {at(value(4), 1, index.AddDate(0, 0, -20))}}

	r, err := Extract(context.Background(), src, v, models.VariantCurrent, models.DefaultWindows(), si)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(r.Values) != 0 {
		t.Fatalf("expected no rows, got %+v", r.Values)
	}
}

func TestExtractCreatinineUnits(t *testing.T) {
	v := mustVariable(t, Creatinine)
	si := []models.SuspectedInfection{infection(1, index, index.AddDate(0, 0, 3))}
	micromol := at(value(300), 1, index)
	micromol.Unit = models.UnitMicromolePerLiter
	src := staticSource{v.Select.Key(): {micromol, at(value(1.1), 1, index)}}

	r, err := Extract(context.Background(), src, v, models.VariantCurrent, models.DefaultWindows(), si)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := single(t, r); math.Abs(got-3.39366) > 1e-6 {
		t.Fatalf("max creatinine = %v", got)
	}
}

func TestNormalizers(t *testing.T) {
	if v, _ := NormalizeLactate(18.016, models.UnitMilligramPerDeciliter); math.Abs(v-2) > 1e-9 {
		t.Fatalf("lactate = %v", v)
	}
	if v, _ := NormalizeBilirubin(34.2, models.UnitMicromolePerLiter); math.Abs(v-2) > 1e-9 {
		t.Fatalf("bilirubin = %v", v)
	}
	if v, _ := NormalizeCreatinine(1500, models.UnitMicrogramPerDeciliter); math.Abs(v-1.5) > 1e-9 {
		t.Fatalf("creatinine = %v", v)
	}
	fio2 := []struct {
		in   float64
		want float64
		ok   bool
	}{
		{40, 0.4, true},
		{0.5, 0.5, true},
		{1, 1, true},
		{0.1, 0.21, true},
		{15, 0.21, true},
		{150, 1, true},
		{0, 0, false},
		{-3, 0, false},
	}
	for _, c := range fio2 {
		got, ok := NormalizeFiO2(c.in, 0)
		if ok != c.ok || (ok && math.Abs(got-c.want) > 1e-9) {
			t.Fatalf("NormalizeFiO2(%v) = %v, %v", c.in, got, ok)
		}
	}
	if _, ok := Between(3, 15)(2, 0); ok {
		t.Fatalf("gcs 2 must be rejected")
	}
}

func TestRatioPicksNearestPrecedingDenominator(t *testing.T) {
	v := mustVariable(t, PaO2FiO2)
	si := []models.SuspectedInfection{infection(1, index.AddDate(0, 0, -1), index.AddDate(0, 0, 3))}
	src := staticSource{
		v.Select.Key(): {at(value(80), 1, index)},
		v.Ratio.Denominator.Key(): {
			at(value(0.4), 1, index.Add(-30*time.Minute)),
			at(value(0.5), 1, index.Add(-10*time.Minute)),
			at(value(0.9), 1, index.Add(5*time.Minute)),
		},
	}

	r, err := Extract(context.Background(), src, v, models.VariantCurrent, models.DefaultWindows(), si)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := single(t, r); got != 160 {
		t.Fatalf("ratio = %v, want 160", got)
	}
}

func TestRatioDiscardsStaleDenominator(t *testing.T) {
	v := mustVariable(t, SpO2FiO2)
	si := []models.SuspectedInfection{infection(1, index.AddDate(0, 0, -1), index.AddDate(0, 0, 3))}
	src := staticSource{
		v.Select.Key(): {at(value(95), 1, index)},
		v.Ratio.Denominator.Key(): {
			at(value(50), 1, index.Add(-25*time.Hour)),
			at(value(0), 1, index.Add(-time.Hour)),
		},
	}

	r, err := Extract(context.Background(), src, v, models.VariantCurrent, models.DefaultWindows(), si)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(r.Values) != 0 {
		t.Fatalf("expected no pair, got %+v", r.Values)
	}

	src[v.Ratio.Denominator.Key()] = append(src[v.Ratio.Denominator.Key()], at(value(50), 1, index.Add(-24*time.Hour)))
	r, err = Extract(context.Background(), src, v, models.VariantCurrent, models.DefaultWindows(), si)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := single(t, r); got != 190 {
		t.Fatalf("ratio = %v, want 190", got)
	}
}

func TestRatioPairsWithinOneStay(t *testing.T) {
	v := mustVariable(t, PaO2FiO2)
	earlier := infection(1, index.Add(-48*time.Hour), index.Add(-13*time.Hour-30*time.Minute))
	later := infection(1, index.Add(-90*time.Minute), index.AddDate(0, 0, 3))
	si := []models.SuspectedInfection{later}
	src := staticSource{
		v.Select.Key():            {at(value(80), 1, index)},
		v.Ratio.Denominator.Key(): {at(value(0.5), 1, earlier.DischargeDatetime.Add(-time.Hour))},
	}

	r, err := Extract(context.Background(), src, v, models.VariantCurrent, models.DefaultWindows(), si)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(r.Values) != 0 {
		t.Fatalf("denominator from an earlier stay must not pair, got %+v", r.Values)
	}

	src[v.Ratio.Denominator.Key()] = append(src[v.Ratio.Denominator.Key()], at(value(0.25), 1, later.AdmitDatetime))
	r, err = Extract(context.Background(), src, v, models.VariantCurrent, models.DefaultWindows(), si)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := single(t, r); got != 320 {
		t.Fatalf("ratio = %v, want 320", got)
	}
}

func TestDuringStay(t *testing.T) {
	si := infection(1, index, index.Add(10*time.Hour))
	facts := []Fact{
		at(value(1), 1, index.Add(-time.Minute)),
		at(value(2), 1, index),
		at(value(3), 1, index.Add(10*time.Hour)),
		at(value(4), 1, index.Add(10*time.Hour+time.Minute)),
	}
	got := duringStay(facts, &si)
	if len(got) != 2 || got[0].Value != 2 || got[1].Value != 3 {
		t.Fatalf("duringStay = %+v", got)
	}
	if got := duringStay(facts[:1], &si); got != nil {
		t.Fatalf("expected nothing, got %+v", got)
	}
}

func TestUrineDayAdjustment(t *testing.T) {
	v := mustVariable(t, Urine)
	admitDay := models.DateOf(index).AddDate(0, 0, -1)
	admit := admitDay.Add(17 * time.Hour)
	si := []models.SuspectedInfection{infection(1, admit, admitDay.AddDate(0, 0, 4))}

	src := staticSource{v.Select.Key(): {
		// admission day: 300 mL in the last 6 hours
		at(value(100), 1, admitDay.Add(18*time.Hour)),
		at(value(200), 1, admitDay.Add(23*time.Hour)),
		// interior day: 1000 mL
		at(value(400), 1, admitDay.Add(30*time.Hour)),
		at(value(600), 1, admitDay.Add(40*time.Hour)),
	}}

	r, err := Extract(context.Background(), src, v, models.VariantCurrent, models.DefaultWindows(), si)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := single(t, r); got != 1000 {
		t.Fatalf("min daily urine = %v, want 1000", got)
	}

	if got := AdjustDailyTotal(admitDay, 300, admitDay.Add(18*time.Hour), admitDay.Add(23*time.Hour), admitDay, admitDay.AddDate(0, 0, 4)); got != 1200 {
		t.Fatalf("admission day total = %v, want 1200", got)
	}
}

func TestAdjustDailyTotalDischargeAndSameDay(t *testing.T) {
	day := models.DateOf(index)
	other := day.AddDate(0, 0, -3)

	if got := AdjustDailyTotal(day, 500, day.Add(time.Hour), day.Add(12*time.Hour), other, day); got != 1000 {
		t.Fatalf("discharge day = %v, want 1000", got)
	}
	if got := AdjustDailyTotal(day, 500, day, day, other, day); got != 500 {
		t.Fatalf("reading at midnight must stay unscaled, got %v", got)
	}
	if got := AdjustDailyTotal(day, 300, day.Add(6*time.Hour), day.Add(12*time.Hour), day, day); got != 1200 {
		t.Fatalf("same-day stay = %v, want 1200", got)
	}
	if got := AdjustDailyTotal(day, 300, day.Add(6*time.Hour), day.Add(6*time.Hour), day, day); got != 300 {
		t.Fatalf("single reading same-day stay = %v, want 300", got)
	}
	if got := AdjustDailyTotal(day, 800, day.Add(6*time.Hour), day.Add(7*time.Hour), other, other.AddDate(0, 0, 9)); got != 800 {
		t.Fatalf("interior day = %v, want 800", got)
	}
}

func TestExposureDays(t *testing.T) {
	v := mustVariable(t, Norepinephrine)
	si := []models.SuspectedInfection{infection(1, index.AddDate(0, 0, -1), index.AddDate(0, 0, 6))}
	src := staticSource{v.Select.Key(): {
		{PersonID: 1, Start: index.Add(-time.Hour), End: index.Add(50 * time.Hour)},
		{PersonID: 1, Start: index.AddDate(0, 0, -20), End: index.AddDate(0, 0, -1)},
		{PersonID: 1, Start: index.AddDate(0, 0, 5), End: index.AddDate(0, 0, 5)},
	}}

	r, err := Extract(context.Background(), src, v, models.VariantCurrent, models.DefaultWindows(), si)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := single(t, r); got != 20 {
		t.Fatalf("max exposure days = %v, want 20", got)
	}
}

func TestVentCountsTextRecords(t *testing.T) {
	v := mustVariable(t, Vent)
	si := []models.SuspectedInfection{infection(1, index, index.AddDate(0, 0, 2))}
	src := staticSource{v.Select.Key(): {
		{PersonID: 1, Start: index, Text: "SIMV"},
		{PersonID: 1, Start: index.Add(time.Hour), Text: "AC/VC"},
		{PersonID: 1, Start: index.Add(2 * time.Hour)},
	}}

	r, err := Extract(context.Background(), src, v, models.VariantCurrent, models.DefaultWindows(), si)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := single(t, r); got != 2 {
		t.Fatalf("vent count = %v", got)
	}
}

func TestRegisterRejectsIncompleteVariables(t *testing.T) {
	valid := Variable{Name: "x", Column: "max_x", Select: measurements(false, 1), Aggregate: AggMax}
	cases := map[string]func(v *Variable){
		"no name":        func(v *Variable) { v.Name = "" },
		"no column":      func(v *Variable) { v.Column = "" },
		"no aggregation": func(v *Variable) { v.Aggregate = "" },
		"no concepts":    func(v *Variable) { v.Select.Concepts.IDs = nil },
		"no names":       func(v *Variable) { v.Select = Selector{Kind: models.FactObservation} },
		"bad kind":       func(v *Variable) { v.Select.Kind = "note" },
		"ratio missing":  func(v *Variable) { v.Shape = ShapeRatio },
		"ratio no gap": func(v *Variable) {
			v.Shape = ShapeRatio
			v.Ratio = &Ratio{Denominator: flowsheets(FiO2Names)}
		},
		"exposure on labs": func(v *Variable) { v.Shape = ShapeExposureDays },
		"count ratio": func(v *Variable) {
			v.Shape, v.Aggregate, v.Ratio = ShapeRatio, AggCount, fio2()
		},
	}
	for name, mutate := range cases {
		v := valid
		mutate(&v)
		if err := NewRegistry().Register(v); !errors.Is(err, ErrIncompleteVariable) {
			t.Fatalf("%s: expected ErrIncompleteVariable, got %v", name, err)
		}
	}

	r := NewRegistry()
	if err := r.Register(valid); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(valid); !errors.Is(err, ErrDuplicateVariable) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := r.Get("missing"); !errors.Is(err, ErrUnknownVariable) {
		t.Fatalf("expected unknown variable, got %v", err)
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	if got := len(r.Variables()); got != 14 {
		t.Fatalf("expected 14 variables, got %d", got)
	}
	if r.Variables()[0].Name != Platelet {
		t.Fatalf("registration order lost")
	}
	if err := r.SetNames(MAP, []string{"ABP MAP"}); err != nil {
		t.Fatalf("set names: %v", err)
	}
	v, _ := r.Get(MAP)
	if len(v.Select.Names) != 1 || v.Select.Names[0] != "ABP MAP" {
		t.Fatalf("names not replaced: %v", v.Select.Names)
	}
	if err := r.SetNames(MAP, nil); !errors.Is(err, ErrIncompleteVariable) {
		t.Fatalf("expected empty names to be rejected, got %v", err)
	}
	if Default().Variables()[12].Select.Names[0] == "ABP MAP" {
		t.Fatalf("default registries must not share state")
	}
}

func TestSetNamesOnlyForFlowsheetVariables(t *testing.T) {
	r := Default()
	if err := r.SetNames(Platelet, []string{"PLT"}); !errors.Is(err, ErrNotFlowsheet) {
		t.Fatalf("expected measurement variable to be rejected, got %v", err)
	}
	if err := r.SetNames(FiO2Denominator, []string{"FiO2 Set"}); err != nil {
		t.Fatalf("set fio2 names: %v", err)
	}
	for _, name := range []string{PaO2FiO2, SpO2FiO2} {
		v, _ := r.Get(name)
		if got := v.Ratio.Denominator.Names; len(got) != 1 || got[0] != "FiO2 Set" {
			t.Fatalf("%s denominator names = %v", name, got)
		}
	}
	if err := r.SetNames(FiO2Denominator, nil); !errors.Is(err, ErrIncompleteVariable) {
		t.Fatalf("expected empty fio2 names to be rejected, got %v", err)
	}
	if v, _ := Default().Get(PaO2FiO2); v.Ratio.Denominator.Names[0] != FiO2Names[0] {
		t.Fatalf("default registries must not share denominators")
	}

	empty := NewRegistry()
	if err := empty.SetNames(FiO2Denominator, []string{"FiO2"}); !errors.Is(err, ErrUnknownVariable) {
		t.Fatalf("expected unknown variable without ratios, got %v", err)
	}
}

type countingSource struct {
	calls atomic.Int32
}

func (c *countingSource) Facts(context.Context, Selector) ([]Fact, error) {
	c.calls.Add(1)
	time.Sleep(10 * time.Millisecond)
	return []Fact{value(1)}, nil
}

func TestCacheLoadsOnce(t *testing.T) {
	src := &countingSource{}
	cache := NewCache(src)
	sel := flowsheets(FiO2Names)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Facts(context.Background(), sel); err != nil {
				t.Errorf("facts: %v", err)
			}
		}()
	}
	wg.Wait()
	if _, err := cache.Facts(context.Background(), sel); err != nil {
		t.Fatalf("facts: %v", err)
	}
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("expected a single load, got %d", n)
	}
}

func TestSelectorKeyIgnoresOrder(t *testing.T) {
	a := measurements(true, 2, 1)
	b := measurements(true, 1, 2)
	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %s vs %s", a.Key(), b.Key())
	}
	if a.Key() == measurements(false, 1, 2).Key() {
		t.Fatalf("descendant flag must be part of the key")
	}
}
