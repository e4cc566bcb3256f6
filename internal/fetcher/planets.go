package fetcher

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
	"github.com/backyonatan-alt/warmonitor/backend/internal/war"
)

// PlanetCatalog is one cycle's planet roster with its sector grouping.
type PlanetCatalog struct {
	Planets  []model.Planet
	Sectors  []string
	BySector map[string][]model.Planet
	Enriched bool
}

type supplementBiome struct {
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// FetchPlanets fetches the live roster and merges in biome and hazard data from
// the static mirror. Failing to fetch the mirror is not fatal.
func (f *Fetcher) FetchPlanets(ctx context.Context, rc model.RemoteConfig) (PlanetCatalog, error) {
	slog.Info("fetching planets")

	planets, err := Get[[]model.Planet](ctx, f, SourcePlanets, rc.APIAddress+planetsPath, f.apiHeaders())
	if err != nil {
		return PlanetCatalog{}, err
	}
	planets = war.NormalizePlanets(war.DedupeByIndex(planets))

	catalog := PlanetCatalog{}
	supp, err := f.fetchSupplement(ctx)
	if err != nil {
		slog.Warn("planet enrichment unavailable, using unenriched catalog", "error", err)
	} else {
		planets = war.EnrichPlanets(planets, supp)
		catalog.Enriched = true
	}

	catalog.Planets = planets
	catalog.Sectors, catalog.BySector = war.GroupBySector(planets)

	slog.Info("planets result", "planets", len(planets), "sectors", len(catalog.Sectors), "enriched", catalog.Enriched)
	return catalog, nil
}

func (f *Fetcher) fetchSupplement(ctx context.Context) (war.Supplement, error) {
	var (
		planets map[int]war.SupplementPlanet
		biomes  map[string]supplementBiome
		hazards map[string]model.Hazard
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		planets, err = Get[map[int]war.SupplementPlanet](gctx, f, SourceSupplement, f.cfg.StaticDataURL+supplementPlanetsDoc, nil)
		return err
	})
	g.Go(func() error {
		var err error
		biomes, err = Get[map[string]supplementBiome](gctx, f, SourceSupplement, f.cfg.StaticDataURL+supplementBiomesDoc, nil)
		return err
	})
	g.Go(func() error {
		var err error
		hazards, err = Get[map[string]model.Hazard](gctx, f, SourceSupplement, f.cfg.StaticDataURL+supplementHazardsDoc, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return war.Supplement{}, err
	}

	supp := war.Supplement{
		Planets: planets,
		Biomes:  make(map[string]model.Biome, len(biomes)),
		Hazards: hazards,
	}
	for key, b := range biomes {
		name := b.Slug
		if name == "" {
			name = key
		}
		supp.Biomes[key] = model.Biome{Name: name, Description: b.Description}
	}
	return supp, nil
}
