package store

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

func TestNopStore(t *testing.T) {
	var s Store = Nop{}
	if err := s.SaveSnapshot(context.Background(), "c1", []byte(`{}`)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	data, err := s.LatestSnapshot(context.Background())
	if data != nil || err != nil {
		t.Fatalf("LatestSnapshot: %q %v", data, err)
	}
}

// Runs only against a real database, e.g.
// TEST_DATABASE_URL=postgres://localhost/warmonitor_test?sslmode=disable
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	p := NewPostgres(db)
	if err := p.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := p.SaveSnapshot(ctx, "first", []byte(`{"cycle":"first"}`)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := p.SaveSnapshot(ctx, "second", []byte(`{"cycle":"second"}`)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	got, err := p.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if string(got) != `{"cycle": "second"}` && string(got) != `{"cycle":"second"}` {
		t.Fatalf("latest: got %s", got)
	}
}
