package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/bookstore/pkg/config"
	"github.com/shishobooks/bookstore/pkg/database"
	"github.com/shishobooks/bookstore/pkg/migrations"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	app := &cli.App{
		Name:  "migrations",
		Usage: "manage the bookstore schema",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply pending migrations as one group",
				Action: func(c *cli.Context) error {
					group, err := migrations.BringUpToDate(c.Context, db)
					if err != nil {
						return err
					}
					if group.ID == 0 {
						log.Info("no new migrations to run")
						return nil
					}
					log.Info("migrated", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
					return nil
				},
			},
			{
				Name:  "rollback",
				Usage: "revert the last migration group",
				Action: func(c *cli.Context) error {
					group, err := migrations.RollbackLast(c.Context, db)
					if err != nil {
						return err
					}
					if group.ID == 0 {
						log.Info("no groups to roll back")
						return nil
					}
					log.Info("rolled back", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "print applied and pending migrations and table sizes",
				Action: func(c *cli.Context) error {
					report, err := migrations.Status(c.Context, db)
					if err != nil {
						return err
					}
					printStatus(report)
					return nil
				},
			},
			{
				Name:      "create",
				Usage:     "create a Go migration in pkg/migrations",
				ArgsUsage: "<name words>",
				Action: func(c *cli.Context) error {
					return createMigration(c, db)
				},
			},
		},
	}

	runErr := app.Run(os.Args)
	if err := db.Close(); err != nil {
		log.Err(err).Error("database close error")
	}
	if runErr != nil {
		log.Err(runErr).Fatal("app run error")
	}
}

func printStatus(report *migrations.Report) {
	fmt.Printf("Last group: %d\n", report.LastGroup)
	fmt.Printf("Applied (%d): %s\n", len(report.Applied), strings.Join(report.Applied, ", "))
	if !report.UpToDate() {
		fmt.Printf("Pending (%d): %s\n", len(report.Pending), strings.Join(report.Pending, ", "))
		return
	}
	fmt.Printf("Schema is up to date\n")

	tables := make([]string, 0, len(report.Rows))
	for table := range report.Rows {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		fmt.Printf("  %s: %d rows\n", table, report.Rows[table])
	}
}

func createMigration(c *cli.Context, db *bun.DB) error {
	if c.NArg() == 0 {
		return errors.New("a migration name is required, e.g. `create add books language`")
	}
	name := strings.ToLower(strings.Join(c.Args().Slice(), "_"))

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	mf, err := migrator.CreateGoMigration(c.Context, name, migrate.WithGoTemplate(migrationTemplate))
	if err != nil {
		return errors.WithStack(err)
	}
	fmt.Printf("Created %s at %s\n", mf.Name, mf.Path)
	return nil
}

const migrationTemplate = `package %s

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, ` + "``" + `)
		return errors.WithStack(err)
	}

	down := func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, ` + "``" + `)
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
`
