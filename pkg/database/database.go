package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/bookstore/pkg/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type logQueryHook struct {
	log logger.Logger
}

func (*logQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (qh *logQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	data := logger.Data{
		"query":    event.Query,
		"duration": time.Since(event.StartTime).String(),
	}
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		qh.log.Err(event.Err).Debug("query failed", data)
		return
	}
	qh.log.Debug("query", data)
}

func New(cfg *config.Config) (*bun.DB, error) {
	drv := sqliteshim.Driver()
	drvCtx, ok := drv.(driver.DriverContext)
	if !ok {
		return nil, errors.New("sqlite driver does not support OpenConnector")
	}
	connector, err := drvCtx.OpenConnector(cfg.DatabaseFilePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sqldb := sql.OpenDB(&retryConnector{
		Connector: connector,
		retrier:   newBusyRetrier(cfg.DatabaseMaxRetries),
	})

	// SQLite allows a single writer. One connection serializes every write
	// (and keeps a :memory: database from being opened more than once).
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if cfg.DatabaseDebug {
		db.AddQueryHook(&logQueryHook{logger.NewWithLevel("debug")})
	}

	for i := 0; i < cfg.DatabaseConnectRetryCount; i++ {
		_, err = db.Exec("SELECT 1")
		if err == nil {
			break
		}
		time.Sleep(cfg.DatabaseConnectRetryDelay)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	pragmas := []struct {
		query string
		args  []interface{}
	}{
		{"PRAGMA journal_mode=WAL", nil},
		{"PRAGMA busy_timeout=?", []interface{}{cfg.DatabaseBusyTimeout.Milliseconds()}},
		{"PRAGMA foreign_keys=ON", nil},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.query, p.args...); err != nil {
			return nil, errors.Wrapf(err, "failed to run %q", p.query)
		}
	}

	return db, nil
}
