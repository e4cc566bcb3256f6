package fetcher

import (
	"context"
	"log/slog"

	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
)

func (f *Fetcher) FetchGalaxyStats(ctx context.Context, rc model.RemoteConfig) (model.GalaxyStats, error) {
	slog.Info("fetching galaxy statistics")

	stats, err := Get[model.GalaxyStats](ctx, f, SourceGalaxy, rc.APIAddress+warPath, f.apiHeaders())
	if err != nil {
		return model.GalaxyStats{}, err
	}
	slog.Info("galaxy result", "players", stats.Statistics.PlayerCount, "impact", stats.ImpactMultiplier)
	return stats, nil
}
