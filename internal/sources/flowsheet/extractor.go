package flowsheet

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clinlabel/sepsis/internal/models"
)

// Source provides raw observations and visits.
type Source interface {
	Observations(ctx context.Context) ([]models.RawObservation, error)
	Visits(ctx context.Context, visitConcepts ...int64) ([]models.VisitOccurrence, error)
}

// Extractor unpacks observations into flat flowsheet rows.
type Extractor struct {
	source Source
	logger zerolog.Logger
}

// NewExtractor creates a new flowsheet extractor.
func NewExtractor(source Source, logger zerolog.Logger) *Extractor {
	return &Extractor{source: source, logger: logger}
}

// Extract reads every observation and returns one flat row per observation.
func (e *Extractor) Extract(ctx context.Context) ([]models.FlowsheetValue, error) {
	observations, err := e.source.Observations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	visits, err := e.source.Visits(ctx)
	if err != nil {
		return nil, fmt.Errorf("load visits: %w", err)
	}

	rows := make([]models.FlowsheetValue, 0, len(observations))
	packed, unnamed := 0, 0
	for _, ob := range observations {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row := MapToFlowsheet(ob)
		if ob.ObservationConceptID == models.FlowsheetConceptID {
			packed++
			if row.DisplayName == nil {
				unnamed++
			}
		}
		rows = append(rows, row)
	}
	AttachVisits(rows, visits)

	e.logger.Info().
		Int("observations", len(observations)).
		Int("packed", packed).
		Int("unnamed", unnamed).
		Msg("unpacked flowsheet observations")
	return rows, nil
}
