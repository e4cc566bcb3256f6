package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/backyonatan-alt/warmonitor/backend/internal/cache"
	"github.com/backyonatan-alt/warmonitor/backend/internal/fetcher"
	"github.com/backyonatan-alt/warmonitor/backend/internal/history"
	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
	"github.com/backyonatan-alt/warmonitor/backend/internal/store"
	"github.com/backyonatan-alt/warmonitor/backend/internal/war"
)

var tracer = otel.Tracer("github.com/backyonatan-alt/warmonitor/backend/internal/pipeline")

// Source is the set of upstream fetches a cycle needs.
type Source interface {
	FetchRemoteConfig(ctx context.Context) (model.RemoteConfig, error)
	FetchPlanets(ctx context.Context, rc model.RemoteConfig) (fetcher.PlanetCatalog, error)
	FetchCampaigns(ctx context.Context, rc model.RemoteConfig) (fetcher.CampaignSet, error)
	FetchMajorOrder(ctx context.Context, rc model.RemoteConfig) (*model.MajorOrder, error)
	FetchGalaxyStats(ctx context.Context, rc model.RemoteConfig) (model.GalaxyStats, error)
}

type HistorySource interface {
	Aggregate(ctx context.Context) (history.Result, error)
}

// Recorder is told the size of the published model after every commit.
type Recorder interface {
	SetModelSizes(planets, campaigns, series int)
}

type nopRecorder struct{}

func (nopRecorder) SetModelSizes(int, int, int) {}

// FastResult is everything one fast cycle fetched. Nil parts failed and leave
// the published values untouched.
type FastResult struct {
	Cycle        string
	Config       model.RemoteConfig
	Catalog      *fetcher.PlanetCatalog
	Campaigns    *fetcher.CampaignSet
	MajorOrder   *model.MajorOrder
	MajorOrderOK bool
	FetchedAt    time.Time
}

// SlowResult is everything one slow cycle fetched.
type SlowResult struct {
	Cycle     string
	History   *history.Result
	Galaxy    *model.GalaxyStats
	FetchedAt time.Time
}

// Pipeline orchestrates: config -> fetch -> merge -> commit -> archive.
type Pipeline struct {
	src   Source
	hist  HistorySource
	cache *cache.Cache
	store store.Store
	rec   Recorder
	now   func() time.Time
}

func New(src Source, hist HistorySource, c *cache.Cache, st store.Store, rec Recorder) *Pipeline {
	if st == nil {
		st = store.Nop{}
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Pipeline{src: src, hist: hist, cache: c, store: st, rec: rec, now: time.Now}
}

// FetchFast runs the config fetch and then planets, campaigns and the major
// order concurrently. A config failure returns a nil result: the cycle is
// skipped and every published value is retained. Failures of the other
// sources come back as a *fetcher.PartialError next to a usable result.
func (p *Pipeline) FetchFast(ctx context.Context) (*FastResult, error) {
	cycle := uuid.NewString()
	ctx, span := tracer.Start(ctx, "fast cycle")
	defer span.End()
	span.SetAttributes(attribute.String("cycle", cycle))

	slog.Info("fast cycle starting", "cycle", cycle)

	rc, err := p.src.FetchRemoteConfig(ctx)
	if err != nil {
		slog.Error("fetch failed", "source", fetcher.SourceRemoteConfig, "cycle", cycle, "error", err)
		return nil, fmt.Errorf("remote config: %w", err)
	}

	res := &FastResult{Cycle: cycle, Config: rc}
	var (
		catalog   fetcher.PlanetCatalog
		campaigns fetcher.CampaignSet
		order     *model.MajorOrder
		errs      = make(map[string]error, 3)
		mu        sync.Mutex
	)
	record := func(source string, err error) {
		mu.Lock()
		errs[source] = err
		mu.Unlock()
		if err != nil {
			slog.Error("fetch failed", "source", source, "cycle", cycle, "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		catalog, err = p.src.FetchPlanets(gctx, rc)
		record(fetcher.SourcePlanets, err)
		return nil // don't fail the group
	})
	g.Go(func() error {
		var err error
		campaigns, err = p.src.FetchCampaigns(gctx, rc)
		record(fetcher.SourceCampaigns, err)
		return nil
	})
	g.Go(func() error {
		var err error
		order, err = p.src.FetchMajorOrder(gctx, rc)
		record(fetcher.SourceMajorOrder, err)
		return nil
	})
	_ = g.Wait()

	res.FetchedAt = p.now().UTC()
	if errs[fetcher.SourcePlanets] == nil {
		res.Catalog = &catalog
	}
	if errs[fetcher.SourceCampaigns] == nil {
		res.Campaigns = &campaigns
	}
	if errs[fetcher.SourceMajorOrder] == nil {
		res.MajorOrder = order
		res.MajorOrderOK = true
	}
	return res, fetcher.Partial(errs)
}

// CommitFast publishes a fast result in a single swap and archives it.
func (p *Pipeline) CommitFast(ctx context.Context, res *FastResult) error {
	if res == nil {
		return nil
	}
	err := p.cache.Update(func(s model.WarState) model.WarState {
		rc := res.Config
		s.Config = &rc
		s.Cycle = res.Cycle

		advanced := false
		if res.Catalog != nil {
			s.Planets = res.Catalog.Planets
			s.Sectors = res.Catalog.Sectors
			s.PlanetsBySector = res.Catalog.BySector
			advanced = true
		}
		if res.Campaigns != nil {
			s.Campaigns = res.Campaigns.All
			s.DefenseCampaigns = res.Campaigns.Defense
			advanced = true
		}
		if res.MajorOrderOK {
			if res.MajorOrder == nil {
				s.MajorOrder = nil
			} else {
				st := war.NewMajorOrderStatus(*res.MajorOrder, s.Planets, res.FetchedAt)
				s.MajorOrder = &st
			}
		}
		if s.SelectedPlanet == nil && len(s.Campaigns) > 0 {
			idx := s.Campaigns[0].Planet.Index
			s.SelectedPlanet = &idx
		}
		if advanced {
			at := res.FetchedAt
			s.LastUpdated = &at
		}
		return s
	})
	if err != nil {
		return fmt.Errorf("commit fast cycle: %w", err)
	}

	state := p.cache.State()
	p.rec.SetModelSizes(len(state.Planets), len(state.Campaigns), len(state.History))
	slog.Info("fast cycle committed", "cycle", res.Cycle,
		"planets", len(state.Planets), "campaigns", len(state.Campaigns), "major_order", state.MajorOrder != nil)

	p.archive(ctx, res.Cycle, state)
	return nil
}

// archive writes the committed state without its history series, which the
// slow stream rebuilds from the snapshot directory anyway.
func (p *Pipeline) archive(ctx context.Context, cycle string, state model.WarState) {
	state.History = nil
	data, err := json.Marshal(state)
	if err != nil {
		slog.Error("failed to serialize snapshot", "cycle", cycle, "error", err)
		return
	}
	if err := p.store.SaveSnapshot(ctx, cycle, data); err != nil {
		slog.Error("failed to archive snapshot", "cycle", cycle, "error", err)
	}
}

// FetchSlow aggregates history and galaxy statistics. It reuses the last
// published config and only fetches one if none has been published yet.
func (p *Pipeline) FetchSlow(ctx context.Context) (*SlowResult, error) {
	cycle := uuid.NewString()
	ctx, span := tracer.Start(ctx, "slow cycle")
	defer span.End()
	span.SetAttributes(attribute.String("cycle", cycle))

	slog.Info("slow cycle starting", "cycle", cycle)

	var rc model.RemoteConfig
	if cur := p.cache.State().Config; cur != nil {
		rc = *cur
	} else {
		var err error
		rc, err = p.src.FetchRemoteConfig(ctx)
		if err != nil {
			slog.Error("fetch failed", "source", fetcher.SourceRemoteConfig, "cycle", cycle, "error", err)
			return nil, fmt.Errorf("remote config: %w", err)
		}
	}

	var (
		hist     history.Result
		galaxy   model.GalaxyStats
		histErr  error
		statsErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hist, histErr = p.hist.Aggregate(gctx)
		return nil
	})
	g.Go(func() error {
		galaxy, statsErr = p.src.FetchGalaxyStats(gctx, rc)
		return nil
	})
	_ = g.Wait()

	res := &SlowResult{Cycle: cycle, FetchedAt: p.now().UTC()}
	// A 429 part way through still yields usable series; nil series means
	// nothing was aggregated and the published history stays.
	if hist.Series != nil {
		res.History = &hist
	}
	if histErr != nil {
		slog.Error("fetch failed", "source", fetcher.SourceHistoryList, "cycle", cycle, "error", histErr)
	}
	if statsErr == nil {
		res.Galaxy = &galaxy
	} else {
		slog.Error("fetch failed", "source", fetcher.SourceGalaxy, "cycle", cycle, "error", statsErr)
	}
	return res, fetcher.Partial(map[string]error{
		fetcher.SourceHistoryList: histErr,
		fetcher.SourceGalaxy:      statsErr,
	})
}

func (p *Pipeline) CommitSlow(ctx context.Context, res *SlowResult) error {
	if res == nil {
		return nil
	}
	err := p.cache.Update(func(s model.WarState) model.WarState {
		if res.History != nil {
			s.History = res.History.Series
			at := res.FetchedAt
			s.HistoryUpdated = &at
		}
		if res.Galaxy != nil {
			g := *res.Galaxy
			s.Galaxy = &g
		}
		return s
	})
	if err != nil {
		return fmt.Errorf("commit slow cycle: %w", err)
	}

	state := p.cache.State()
	p.rec.SetModelSizes(len(state.Planets), len(state.Campaigns), len(state.History))
	slog.Info("slow cycle committed", "cycle", res.Cycle, "series", len(state.History), "galaxy", state.Galaxy != nil)
	return nil
}
