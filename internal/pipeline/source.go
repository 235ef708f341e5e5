package pipeline

import (
	"context"

	"github.com/clinlabel/sepsis/internal/component"
	"github.com/clinlabel/sepsis/internal/models"
)

// factSource serves flowsheet facts from rows extracted in this run when
// they were not materialized, and everything else from the store.
type factSource struct {
	store      component.StoreSource
	flowsheets []models.FlowsheetValue
	inMemory   bool
}

func (s factSource) Facts(ctx context.Context, sel component.Selector) ([]component.Fact, error) {
	if sel.Kind != models.FactObservation || !s.inMemory {
		return s.store.Facts(ctx, sel)
	}

	want := make(map[string]struct{}, len(sel.Names))
	for _, n := range sel.Names {
		want[n] = struct{}{}
	}
	var rows []models.FlowsheetValue
	for i := range s.flowsheets {
		r := &s.flowsheets[i]
		if r.DisplayName == nil {
			continue
		}
		if _, ok := want[*r.DisplayName]; ok {
			rows = append(rows, *r)
		}
	}
	return component.FromFlowsheets(rows), nil
}
