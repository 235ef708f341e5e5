package repositories

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const insertBatchSize = 500

// Materialize replaces relation with rows in one transaction: the previous
// relation is dropped, recreated from the model of T and filled.
func Materialize[T any](ctx context.Context, db *bun.DB, relation string, rows []T) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+relation); err != nil {
			return fmt.Errorf("drop %s: %w", relation, err)
		}

		if _, err := tx.NewCreateTable().
			Model((*T)(nil)).
			ModelTableExpr(relation).
			Exec(ctx); err != nil {
			return fmt.Errorf("create %s: %w", relation, err)
		}

		for start := 0; start < len(rows); start += insertBatchSize {
			end := min(start+insertBatchSize, len(rows))
			batch := rows[start:end]
			if _, err := tx.NewInsert().
				Model(&batch).
				ModelTableExpr(relation).
				Exec(ctx); err != nil {
				return fmt.Errorf("insert into %s: %w", relation, err)
			}
		}

		return nil
	})
}

// ReadRelation loads every row of relation into T.
func ReadRelation[T any](ctx context.Context, db *bun.DB, relation string) ([]T, error) {
	alias := db.Table(reflect.TypeOf((*T)(nil)).Elem()).Alias

	var rows []T
	if err := db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS ?", bun.Safe(relation), bun.Ident(alias)).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("read %s: %w", relation, err)
	}
	return rows, nil
}

// RelationExists reports whether relation (schema.name) is present.
func RelationExists(ctx context.Context, db *bun.DB, relation string) (bool, error) {
	schema, name := splitRelation(relation)

	var n int
	var err error
	switch db.Dialect().Name() {
	case dialect.SQLite:
		err = db.NewSelect().
			TableExpr("?.sqlite_master", bun.Ident(schema)).
			ColumnExpr("count(*)").
			Where("type = 'table'").
			Where("name = ?", name).
			Scan(ctx, &n)
	default:
		err = db.NewSelect().
			TableExpr("information_schema.tables").
			ColumnExpr("count(*)").
			Where("table_schema = ?", schema).
			Where("table_name = ?", name).
			Scan(ctx, &n)
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", relation, err)
	}
	return n > 0, nil
}

// CountRows returns the row count of relation.
func CountRows(ctx context.Context, db *bun.DB, relation string) (int, error) {
	var n int
	if err := db.NewSelect().
		TableExpr(relation).
		ColumnExpr("count(*)").
		Scan(ctx, &n); err != nil {
		return 0, fmt.Errorf("count %s: %w", relation, err)
	}
	return n, nil
}

func splitRelation(relation string) (string, string) {
	if i := strings.LastIndex(relation, "."); i >= 0 {
		return relation[:i], relation[i+1:]
	}
	return "main", relation
}
