package store

import "context"

// Store archives committed war state snapshots.
type Store interface {
	// SaveSnapshot stores the serialized state committed by a cycle.
	SaveSnapshot(ctx context.Context, cycle string, state []byte) error
	// LatestSnapshot returns the most recent serialized state, or nil if none.
	LatestSnapshot(ctx context.Context) ([]byte, error)
	Migrate(ctx context.Context) error
}

// Nop is used when no database is configured.
type Nop struct{}

func (Nop) SaveSnapshot(context.Context, string, []byte) error { return nil }
func (Nop) LatestSnapshot(context.Context) ([]byte, error)     { return nil, nil }
func (Nop) Migrate(context.Context) error                      { return nil }
