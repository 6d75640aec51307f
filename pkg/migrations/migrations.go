package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

// countedTables are reported by Status once the schema is current.
var countedTables = []string{"books", "api_tokens"}

// Report describes the schema state of a database.
type Report struct {
	Applied   []string
	Pending   []string
	LastGroup int64
	// Rows holds row counts per table. It's only filled in when nothing is
	// pending, since older schemas may lack the tables.
	Rows map[string]int
}

// UpToDate reports whether every registered migration has been applied.
func (r *Report) UpToDate() bool {
	return len(r.Pending) == 0
}

func newMigrator(ctx context.Context, db *bun.DB) (*migrate.Migrator, error) {
	migrator := migrate.NewMigrator(db, Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return migrator, nil
}

// BringUpToDate applies every pending migration as a single group. The
// returned group has ID 0 when there was nothing to run.
func BringUpToDate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator, err := newMigrator(ctx, db)
	if err != nil {
		return nil, err
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return group, nil
}

// RollbackLast reverts the most recently applied group. The returned group
// has ID 0 when there was nothing to roll back.
func RollbackLast(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator, err := newMigrator(ctx, db)
	if err != nil {
		return nil, err
	}
	group, err := migrator.Rollback(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return group, nil
}

func Status(ctx context.Context, db *bun.DB) (*Report, error) {
	migrator, err := newMigrator(ctx, db)
	if err != nil {
		return nil, err
	}
	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	report := &Report{
		Applied:   []string{},
		Pending:   []string{},
		LastGroup: ms.LastGroupID(),
	}
	for _, m := range ms.Applied() {
		report.Applied = append(report.Applied, m.Name)
	}
	for _, m := range ms.Unapplied() {
		report.Pending = append(report.Pending, m.Name)
	}

	if !report.UpToDate() {
		return report, nil
	}

	report.Rows = map[string]int{}
	for _, table := range countedTables {
		n, err := db.NewSelect().Table(table).Count(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to count %s", table)
		}
		report.Rows[table] = n
	}
	return report, nil
}
