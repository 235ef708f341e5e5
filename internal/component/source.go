package component

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/clinlabel/sepsis/internal/models"
	"github.com/clinlabel/sepsis/internal/repositories"
)

// Fact is a clinical fact reduced to what the extractor needs. Start and End
// are equal for point facts.
type Fact struct {
	PersonID int64
	Start    time.Time
	End      time.Time
	Value    float64
	HasValue bool
	Unit     int64
	Text     string
}

// FactSource loads the facts of a selector, for every person.
type FactSource interface {
	Facts(ctx context.Context, sel Selector) ([]Fact, error)
}

// StoreSource reads facts from the warehouse: measurements and drug exposures
// from the fact store, observations from the unpacked flowsheet relation.
type StoreSource struct {
	Store     *repositories.Store
	Flowsheet string
}

// Facts implements FactSource.
func (s StoreSource) Facts(ctx context.Context, sel Selector) ([]Fact, error) {
	switch sel.Kind {
	case models.FactMeasurement:
		rows, err := s.Store.Measurements(ctx, sel.Concepts)
		if err != nil {
			return nil, err
		}
		return FromMeasurements(rows), nil
	case models.FactDrug:
		rows, err := s.Store.Drugs(ctx, sel.Concepts)
		if err != nil {
			return nil, err
		}
		return FromDrugs(rows), nil
	case models.FactObservation:
		rows, err := s.Store.Flowsheets(ctx, s.Flowsheet, sel.Names)
		if err != nil {
			return nil, err
		}
		return FromFlowsheets(rows), nil
	}
	return nil, fmt.Errorf("unknown fact kind %q", sel.Kind)
}

// FromMeasurements converts measurement rows.
func FromMeasurements(rows []models.Measurement) []Fact {
	out := make([]Fact, 0, len(rows))
	for _, m := range rows {
		f := Fact{PersonID: m.PersonID, Start: m.MeasurementDatetime, End: m.MeasurementDatetime, Unit: m.UnitConceptID}
		if m.ValueAsNumber != nil {
			f.Value, f.HasValue = *m.ValueAsNumber, true
		}
		out = append(out, f)
	}
	return out
}

// FromDrugs converts drug exposures; a missing end means a single day.
func FromDrugs(rows []models.DrugExposure) []Fact {
	out := make([]Fact, 0, len(rows))
	for _, d := range rows {
		end := d.DrugExposureStartDatetime
		if d.DrugExposureEndDatetime != nil && d.DrugExposureEndDatetime.After(end) {
			end = *d.DrugExposureEndDatetime
		}
		out = append(out, Fact{PersonID: d.PersonID, Start: d.DrugExposureStartDatetime, End: end})
	}
	return out
}

// FromFlowsheets converts unpacked flowsheet rows.
func FromFlowsheets(rows []models.FlowsheetValue) []Fact {
	out := make([]Fact, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		f := Fact{PersonID: r.PersonID, Start: r.ObservationDatetime, End: r.ObservationDatetime}
		if r.MeasValue != nil {
			f.Text = strings.TrimSpace(*r.MeasValue)
		}
		f.Value, f.HasValue = r.Number()
		out = append(out, f)
	}
	return out
}

// Cache shares fact loads between extractors. Concurrent requests for the
// same selector result in a single load.
type Cache struct {
	source FactSource
	group  singleflight.Group

	mu    sync.Mutex
	facts map[string][]Fact
}

// NewCache wraps source.
func NewCache(source FactSource) *Cache {
	return &Cache{source: source, facts: make(map[string][]Fact)}
}

// Facts implements FactSource.
func (c *Cache) Facts(ctx context.Context, sel Selector) ([]Fact, error) {
	key := sel.Key()

	c.mu.Lock()
	if facts, ok := c.facts[key]; ok {
		c.mu.Unlock()
		return facts, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		cached, ok := c.facts[key]
		c.mu.Unlock()
		if ok {
			return cached, nil
		}

		facts, err := c.source.Facts(ctx, sel)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.facts[key] = facts
		c.mu.Unlock()
		return facts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Fact), nil
}

// Key identifies the facts a selector loads.
func (s Selector) Key() string {
	var b strings.Builder
	b.WriteString(string(s.Kind))
	b.WriteByte(':')
	switch s.Kind {
	case models.FactObservation:
		names := append([]string(nil), s.Names...)
		sort.Strings(names)
		b.WriteString(strings.Join(names, "|"))
	default:
		ids := append([]int64(nil), s.Concepts.IDs...)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for i, id := range ids {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.FormatInt(id, 10))
		}
		if s.Concepts.Descendants {
			b.WriteString("+")
		}
	}
	return b.String()
}
