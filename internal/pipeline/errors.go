package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRelation is returned when a relation a stage joins on was never materialized.
	ErrMissingRelation = errors.New("missing relation")
	// ErrEmptyRelation is returned when a relation a stage joins on has no rows.
	ErrEmptyRelation = errors.New("empty relation")
)

// StageError names the stage and relation a run failed in.
type StageError struct {
	Stage    string
	Relation string
	Err      error
}

func (e *StageError) Error() string {
	if e.Relation == "" {
		return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s (%s): %v", e.Stage, e.Relation, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
