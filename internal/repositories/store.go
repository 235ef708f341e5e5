package repositories

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"golang.org/x/time/rate"

	"github.com/clinlabel/sepsis/internal/models"
)

// Store reads clinical facts from one dataset of the warehouse.
type Store struct {
	db      *bun.DB
	dataset string
	limiter *rate.Limiter
}

// Option configures a Store.
type Option func(*Store)

// WithQueryRate throttles fact queries to qps per second. Zero disables throttling.
func WithQueryRate(qps float64) Option {
	return func(s *Store) {
		if qps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(qps), 1)
		}
	}
}

// NewStore creates a store over dataset, e.g. "main" or "omop_cdm".
func NewStore(db *bun.DB, dataset string, opts ...Option) *Store {
	s := &Store{db: db, dataset: dataset}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle.
func (s *Store) DB() *bun.DB {
	return s.db
}

func (s *Store) table(name string) string {
	return s.dataset + "." + name
}

func (s *Store) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("query throttle: %w", err)
	}
	return nil
}

// whereConcept restricts column to the concepts of set. The listed ids always
// match; descendants must be valid vocabulary entries.
func (s *Store) whereConcept(q *bun.SelectQuery, column string, set models.ConceptSet) *bun.SelectQuery {
	if !set.Descendants {
		return q.Where("? IN (?)", bun.Ident(column), bun.In(set.IDs))
	}

	descendants := s.db.NewSelect().
		TableExpr("? AS c", bun.Safe(s.table("concept"))).
		Join("JOIN ? AS ca ON c.concept_id = ca.descendant_concept_id", bun.Safe(s.table("concept_ancestor"))).
		ColumnExpr("c.concept_id").
		Where("ca.ancestor_concept_id IN (?)", bun.In(set.IDs)).
		Where("c.invalid_reason IS NULL")

	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("? IN (?)", bun.Ident(column), bun.In(set.IDs)).
			WhereOr("? IN (?)", bun.Ident(column), descendants)
	})
}
