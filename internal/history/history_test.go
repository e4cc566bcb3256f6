package history

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/backyonatan-alt/warmonitor/backend/internal/fetcher"
	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
)

func TestParseTimestamp(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		want time.Time
	}{
		{"2024-03-01T12:30:00Z_planets.json", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
		{"2024-03-01T12:30:00.5+02:00_x.json", time.Date(2024, 3, 1, 10, 30, 0, 500000000, time.UTC)},
		{"2024-03-01T12:30:00_x.json", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
		{"garbage_x.json", now},
		{"no-underscore.json", now},
		{"", now},
	}
	for _, tt := range tests {
		if got := ParseTimestamp(tt.name, now); !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

type fakeSource struct {
	files    []fetcher.DirectoryEntry
	listErr  error
	snapshot map[string][]model.Planet
	errs     map[string]error
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeSource) ListHistory(context.Context) ([]fetcher.DirectoryEntry, error) {
	return f.files, f.listErr
}

func (f *fakeSource) FetchHistorySnapshot(ctx context.Context, url string) ([]model.Planet, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	planets, ok := f.snapshot[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return planets, nil
}

func TestAggregateSortsOutOfOrderFiles(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{snapshot: map[string][]model.Planet{}}

	// Listed newest first so completion order rarely matches timestamp order.
	for i := 19; i >= 0; i-- {
		ts := base.Add(time.Duration(i) * time.Hour)
		url := fmt.Sprintf("https://x/%d.json", i)
		src.files = append(src.files, fetcher.DirectoryEntry{Name: ts.Format(time.RFC3339) + "_snap.json", DownloadURL: url})
		src.snapshot[url] = []model.Planet{
			{Index: 1, Name: "Malevelon Creek", Health: int64(i)},
			{Index: 2, Name: "Estanu", Health: int64(i)},
		}
	}
	src.files = append(src.files, fetcher.DirectoryEntry{Name: "2024-03-02T00:00:00Z_missing.json", DownloadURL: "https://x/missing.json"})

	res, err := NewAggregator(src, 4).Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if res.Files != 21 || res.Failed != 1 {
		t.Fatalf("files=%d failed=%d", res.Files, res.Failed)
	}
	for _, name := range []string{"Malevelon Creek", "Estanu"} {
		series := res.Series[name]
		if len(series) != 20 {
			t.Fatalf("%s: got %d points", name, len(series))
		}
		for i := 1; i < len(series); i++ {
			if series[i].Timestamp.Before(series[i-1].Timestamp) {
				t.Fatalf("%s: point %d out of order", name, i)
			}
		}
		if series[0].Planet.Health != 0 || series[19].Planet.Health != 19 {
			t.Fatalf("%s: wrong endpoints", name)
		}
	}
	if peak := src.peak.Load(); peak > 4 {
		t.Fatalf("in-flight peak %d exceeds limit 4", peak)
	}
}

func TestAggregateListFailure(t *testing.T) {
	src := &fakeSource{listErr: errors.New("boom")}
	if _, err := NewAggregator(src, 2).Aggregate(context.Background()); err == nil {
		t.Fatalf("expected error when listing fails")
	}
}

func rateLimited(url string) error {
	return &fetcher.Error{Kind: fetcher.KindRateLimited, Source: fetcher.SourceHistoryFile, URL: url, StatusCode: 429}
}

func snapshotSource(n int) *fakeSource {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{snapshot: map[string][]model.Planet{}, errs: map[string]error{}}
	for i := 0; i < n; i++ {
		url := fmt.Sprintf("https://x/%d.json", i)
		ts := base.Add(time.Duration(i) * time.Hour)
		src.files = append(src.files, fetcher.DirectoryEntry{Name: ts.Format(time.RFC3339) + "_snap.json", DownloadURL: url})
		src.snapshot[url] = []model.Planet{{Index: 1, Name: "Estanu", Health: int64(i)}}
	}
	return src
}

func TestAggregateEveryFileFailed(t *testing.T) {
	src := snapshotSource(3)
	for _, f := range src.files {
		src.errs[f.DownloadURL] = errors.New("connection reset")
	}
	res, err := NewAggregator(src, 2).Aggregate(context.Background())
	if err == nil {
		t.Fatalf("expected error when every file fails")
	}
	if res.Series != nil {
		t.Fatalf("series should be nil, got %v", res.Series)
	}
	if res.Files != 3 || res.Failed != 3 {
		t.Fatalf("counts: files=%d failed=%d", res.Files, res.Failed)
	}
	if _, ok := fetcher.RateLimit(err); ok {
		t.Fatalf("plain failures should not read as rate limited")
	}
}

func TestAggregateEveryFileRateLimited(t *testing.T) {
	src := snapshotSource(4)
	for _, f := range src.files {
		src.errs[f.DownloadURL] = rateLimited(f.DownloadURL)
	}
	res, err := NewAggregator(src, 1).Aggregate(context.Background())
	if res.Series != nil {
		t.Fatalf("series should be nil, got %v", res.Series)
	}
	if _, ok := fetcher.RateLimit(err); !ok {
		t.Fatalf("expected rate limit in %v", err)
	}
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("requests after first 429: got %d calls want 1", n)
	}
}

func TestAggregateStopsAfterRateLimit(t *testing.T) {
	src := snapshotSource(5)
	src.errs[src.files[1].DownloadURL] = rateLimited(src.files[1].DownloadURL)

	// A limit of one runs files in listing order.
	res, err := NewAggregator(src, 1).Aggregate(context.Background())
	if _, ok := fetcher.RateLimit(err); !ok {
		t.Fatalf("expected rate limit in %v", err)
	}
	if n := src.calls.Load(); n != 2 {
		t.Fatalf("got %d calls want 2", n)
	}
	if got := res.Series["Estanu"]; len(got) != 1 || got[0].Planet.Health != 0 {
		t.Fatalf("surviving series: %+v", got)
	}
	if res.Failed != 4 {
		t.Fatalf("failed: got %d want 4", res.Failed)
	}
}

func TestAccumulatorKeepsDuplicateTimestamps(t *testing.T) {
	acc := NewAccumulator()
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	acc.Append(ts, []model.Planet{{Name: "Estanu", Health: 1}})
	acc.Append(ts, []model.Planet{{Name: "Estanu", Health: 2}})
	acc.Append(ts.Add(-time.Hour), []model.Planet{{Name: "Estanu", Health: 0}})

	got := acc.Sorted()["Estanu"]
	if len(got) != 3 {
		t.Fatalf("got %d points want 3", len(got))
	}
	if got[0].Planet.Health != 0 || got[1].Planet.Health != 1 || got[2].Planet.Health != 2 {
		t.Fatalf("order: %+v", got)
	}
}

func TestNewAggregatorClampsLimit(t *testing.T) {
	if a := NewAggregator(nil, 0); a.limit != DefaultConcurrency {
		t.Fatalf("zero limit: got %d", a.limit)
	}
	if a := NewAggregator(nil, 100); a.limit != MaxConcurrency {
		t.Fatalf("large limit: got %d", a.limit)
	}
}
