package migrations

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinlabel/sepsis/internal/database"
	"github.com/clinlabel/sepsis/internal/models"
)

func TestRunMigrationsIsRepeatable(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewDB("file:migrations_test?mode=memory&cache=shared", false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := RunMigrations(ctx, db, zerolog.Nop()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	p := &models.Person{PersonID: 1}
	if _, err := db.NewInsert().Model(p).Exec(ctx); err != nil {
		t.Fatalf("insert person: %v", err)
	}
	n, err := db.NewSelect().Model((*models.Person)(nil)).Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 person, got %d", n)
	}
}
