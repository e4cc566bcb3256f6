package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS war_snapshots (
			id          BIGSERIAL PRIMARY KEY,
			cycle       TEXT NOT NULL,
			state       JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_war_snapshots_created_at ON war_snapshots (created_at DESC);
	`
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate war_snapshots: %w", err)
	}
	return nil
}

func (p *Postgres) SaveSnapshot(ctx context.Context, cycle string, state []byte) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO war_snapshots (cycle, state) VALUES ($1, $2)",
		cycle, state,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", cycle, err)
	}
	return nil
}

func (p *Postgres) LatestSnapshot(ctx context.Context) ([]byte, error) {
	var state []byte
	err := p.db.QueryRowContext(ctx,
		"SELECT state FROM war_snapshots ORDER BY created_at DESC, id DESC LIMIT 1",
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return state, err
}
