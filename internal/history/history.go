package history

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/backyonatan-alt/warmonitor/backend/internal/fetcher"
	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
)

const (
	DefaultConcurrency = 8
	MaxConcurrency     = 16
)

// ParseTimestamp reads the timestamp a snapshot file name starts with, up to the
// first underscore. Names that don't parse map to now.
func ParseTimestamp(name string, now time.Time) time.Time {
	prefix, _, _ := strings.Cut(name, "_")
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15-04-05Z07:00"} {
		if ts, err := time.Parse(layout, prefix); err == nil {
			return ts.UTC()
		}
	}
	return now
}

// Accumulator collects data points per planet name from concurrent writers.
type Accumulator struct {
	mu     sync.Mutex
	series map[string][]model.PlanetDataPoint
}

func NewAccumulator() *Accumulator {
	return &Accumulator{series: make(map[string][]model.PlanetDataPoint)}
}

// Append adds one data point per planet, all stamped with ts.
func (a *Accumulator) Append(ts time.Time, planets []model.Planet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range planets {
		a.series[p.Name] = append(a.series[p.Name], model.PlanetDataPoint{Timestamp: ts, Planet: p})
	}
}

func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.series)
}

// Sorted returns a copy of every series ordered by timestamp ascending.
// Equal timestamps keep their append order.
func (a *Accumulator) Sorted() map[string][]model.PlanetDataPoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string][]model.PlanetDataPoint, len(a.series))
	for name, points := range a.series {
		s := make([]model.PlanetDataPoint, len(points))
		copy(s, points)
		sort.SliceStable(s, func(i, j int) bool {
			return s[i].Timestamp.Before(s[j].Timestamp)
		})
		out[name] = s
	}
	return out
}

// Source lists and fetches snapshot files.
type Source interface {
	ListHistory(ctx context.Context) ([]fetcher.DirectoryEntry, error)
	FetchHistorySnapshot(ctx context.Context, url string) ([]model.Planet, error)
}

// Result is one aggregation pass.
type Result struct {
	Series map[string][]model.PlanetDataPoint
	Files  int
	Failed int
}

// Aggregator fans out snapshot fetches with a bounded number in flight.
type Aggregator struct {
	src   Source
	limit int
	now   func() time.Time
}

func NewAggregator(src Source, limit int) *Aggregator {
	if limit < 1 {
		limit = DefaultConcurrency
	}
	if limit > MaxConcurrency {
		limit = MaxConcurrency
	}
	return &Aggregator{src: src, limit: limit, now: time.Now}
}

// Aggregate builds every planet's time series from the snapshot directory.
// A file that fails to fetch or decode is skipped; failing to list is fatal.
//
// Result.Series is nil when every listed file failed, so callers keep the
// series they already have. After the first 429 the remaining files are not
// requested, and the 429 is returned next to whatever was aggregated.
func (a *Aggregator) Aggregate(ctx context.Context) (Result, error) {
	files, err := a.src.ListHistory(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list history: %w", err)
	}

	acc := NewAccumulator()
	now := a.now().UTC()

	var (
		mu        sync.Mutex
		failed    int
		firstErr  error
		rateLimit error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		failed++
		if firstErr == nil {
			firstErr = err
		}
		if _, ok := fetcher.RateLimit(err); ok && rateLimit == nil {
			rateLimit = err
		}
	}
	limitedBy := func() error {
		mu.Lock()
		defer mu.Unlock()
		return rateLimit
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.limit)
	for _, file := range files {
		g.Go(func() error {
			if rl := limitedBy(); rl != nil {
				fail(rl)
				return nil
			}
			planets, err := a.src.FetchHistorySnapshot(gctx, file.DownloadURL)
			if err != nil {
				slog.Warn("skipping history snapshot", "file", file.Name, "error", err)
				fail(err)
				return nil
			}
			acc.Append(ParseTimestamp(file.Name, now), planets)
			return nil
		})
	}
	g.Wait()

	res := Result{Files: len(files), Failed: failed}
	if res.Files > 0 && res.Failed == res.Files {
		cause := firstErr
		if rateLimit != nil {
			cause = rateLimit
		}
		slog.Error("every history snapshot failed", "files", res.Files, "error", cause)
		return res, fmt.Errorf("all %d history snapshots failed: %w", res.Files, cause)
	}

	res.Series = acc.Sorted()
	slog.Info("history aggregated", "files", res.Files, "failed", res.Failed, "planets", len(res.Series))
	if rateLimit != nil {
		return res, fetcher.Partial(map[string]error{fetcher.SourceHistoryFile: rateLimit})
	}
	return res, nil
}
