package fetcher

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
	"github.com/backyonatan-alt/warmonitor/backend/internal/war"
)

// CampaignSet is the ranked campaign list and its defense subset.
type CampaignSet struct {
	All     []model.Campaign
	Defense []model.Campaign
}

type campaignWire struct {
	ID     int64        `json:"id"`
	Planet model.Planet `json:"planet"`
	Type   int          `json:"type"`
	Count  int64        `json:"count"`
}

// FetchCampaigns fetches active campaigns and the defense expiration table.
// Either failing fails the whole set; the caller keeps its previous campaigns.
func (f *Fetcher) FetchCampaigns(ctx context.Context, rc model.RemoteConfig) (CampaignSet, error) {
	slog.Info("fetching campaigns")

	var (
		wire   []campaignWire
		expiry []war.DefenseExpiry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		wire, err = Get[[]campaignWire](gctx, f, SourceCampaigns, rc.APIAddress+campaignsPath, f.apiHeaders())
		return err
	})
	g.Go(func() error {
		var err error
		expiry, err = Get[[]war.DefenseExpiry](gctx, f, SourceDefenseExpiry, f.cfg.DefenseExpiryURL, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return CampaignSet{}, err
	}

	planets := make([]model.Planet, len(wire))
	for i, w := range wire {
		planets[i] = w.Planet
	}
	planets = war.NormalizePlanets(planets)

	campaigns := make([]model.Campaign, len(wire))
	for i, w := range wire {
		campaigns[i] = model.Campaign{
			ID:     w.ID,
			Planet: planets[i],
			Type:   war.Classify(planets[i], w.Type),
			Count:  w.Count,
		}
	}
	campaigns = war.AttachDefenseExpiry(campaigns, expiry)

	all, defense := war.RankCampaigns(campaigns)
	slog.Info("campaigns result", "campaigns", len(all), "defense", len(defense))
	return CampaignSet{All: all, Defense: defense}, nil
}
