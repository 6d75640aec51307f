package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE api_tokens (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				key TEXT NOT NULL UNIQUE,
				created_at DATETIME NOT NULL,
				last_used_at DATETIME
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE INDEX idx_api_tokens_key ON api_tokens(key)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`DROP TABLE IF EXISTS api_tokens`)
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
