package fetcher

import (
	"context"
	"log/slog"

	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
)

// FetchMajorOrder returns the first order of the season, or nil when there is none.
func (f *Fetcher) FetchMajorOrder(ctx context.Context, rc model.RemoteConfig) (*model.MajorOrder, error) {
	slog.Info("fetching major order", "season", rc.Season)

	orders, err := Get[[]model.MajorOrder](ctx, f, SourceMajorOrder, f.cfg.MajorOrderURL+rc.Season, f.apiHeaders())
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		slog.Info("no active major order")
		return nil, nil
	}

	order := orders[0]
	slog.Info("major order result", "id", order.ID, "tasks", len(order.Setting.Tasks), "expires_in", order.ExpiresIn)
	return &order, nil
}
