package war

import (
	"sort"
	"time"

	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
)

// DefenseExpiry is one row of the defense expiration lookup table.
type DefenseExpiry struct {
	PlanetIndex    int     `json:"planetIndex"`
	ExpireDateTime float64 `json:"expireDateTime"`
}

// Classify derives the campaign type: any event makes it a defense.
func Classify(p model.Planet, upstreamType int) model.CampaignType {
	switch {
	case p.Event != nil:
		return model.CampaignDefense
	case upstreamType == 0:
		return model.CampaignLiberation
	default:
		return model.CampaignOther
	}
}

// AttachDefenseExpiry sets event.expireTimeDate from the lookup for every
// campaign whose planet has an event and a matching row.
func AttachDefenseExpiry(campaigns []model.Campaign, table []DefenseExpiry) []model.Campaign {
	byIndex := make(map[int]float64, len(table))
	for _, row := range table {
		byIndex[row.PlanetIndex] = row.ExpireDateTime
	}
	out := make([]model.Campaign, len(campaigns))
	for i, c := range campaigns {
		if secs, ok := byIndex[c.Planet.Index]; ok && c.Planet.Event != nil {
			ev := *c.Planet.Event
			at := epoch(secs)
			ev.ExpireTimeDate = &at
			c.Planet.Event = &ev
		}
		out[i] = c
	}
	return out
}

func epoch(secs float64) time.Time {
	whole := int64(secs)
	frac := int64((secs - float64(whole)) * float64(time.Second))
	return time.Unix(whole, frac).UTC()
}

// RankCampaigns orders campaigns with events first, then by descending player
// count, keeping fetch order on ties. It also returns the defense subset.
func RankCampaigns(campaigns []model.Campaign) (all, defense []model.Campaign) {
	all = make([]model.Campaign, len(campaigns))
	copy(all, campaigns)
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.IsDefense() != b.IsDefense() {
			return a.IsDefense()
		}
		return a.Planet.Statistics.PlayerCount > b.Planet.Statistics.PlayerCount
	})
	defense = make([]model.Campaign, 0)
	for _, c := range all {
		if c.IsDefense() {
			defense = append(defense, c)
		}
	}
	return all, defense
}
