package flowsheet

import (
	"strconv"
	"time"

	"github.com/clinlabel/sepsis/internal/models"
)

// MapToFlowsheet flattens one observation. Flowsheet observations are read
// from their packed documents; any other observation passes through with its
// concept name, text (or numeric) value and unit.
func MapToFlowsheet(ob models.RawObservation) models.FlowsheetValue {
	row := models.FlowsheetValue{
		ObservationID:       ob.ObservationID,
		PersonID:            ob.PersonID,
		ObservationDatetime: ob.ObservationDatetime,
	}

	if ob.ObservationConceptID == models.FlowsheetConceptID {
		values := decodePacked(ob.ValueAsString)
		source := decodePacked(ob.ObservationSourceValue)
		row.SourceDisplayName = lookup(source, SourceTemplateName)
		row.DisplayName = lookup(values, SourceGroupDisplay)
		row.MeasValue = lookup(values, SourceMeasuredValue)
		row.Units = lookup(values, SourceGroupUnits)
		return row
	}

	row.SourceDisplayName = ob.ObservationSourceValue
	row.DisplayName = ob.ConceptName
	row.Units = ob.UnitSourceValue
	switch {
	case ob.ValueAsString != nil:
		row.MeasValue = ob.ValueAsString
	case ob.ValueAsNumber != nil:
		v := strconv.FormatFloat(*ob.ValueAsNumber, 'f', -1, 64)
		row.MeasValue = &v
	}
	return row
}

// AttachVisits sets the visit of every row whose timestamp lies within
// [visit start, visit end] of one of the person's visits. The earliest
// containing visit wins.
func AttachVisits(rows []models.FlowsheetValue, visits []models.VisitOccurrence) {
	byPerson := make(map[int64][]models.VisitOccurrence)
	for _, v := range visits {
		if v.VisitStartDatetime == nil || v.VisitEndDatetime == nil {
			continue
		}
		byPerson[v.PersonID] = append(byPerson[v.PersonID], v)
	}

	for i := range rows {
		rows[i].VisitOccurrenceID = containingVisit(byPerson[rows[i].PersonID], rows[i].ObservationDatetime)
	}
}

func containingVisit(visits []models.VisitOccurrence, at time.Time) *int64 {
	var best *models.VisitOccurrence
	for i := range visits {
		v := &visits[i]
		if at.Before(*v.VisitStartDatetime) || at.After(*v.VisitEndDatetime) {
			continue
		}
		if best == nil || v.VisitStartDatetime.Before(*best.VisitStartDatetime) {
			best = v
		}
	}
	if best == nil {
		return nil
	}
	id := best.VisitOccurrenceID
	return &id
}

func lookup(p Packed, source string) *string {
	v, ok := p.Lookup(source)
	if !ok {
		return nil
	}
	return &v
}
