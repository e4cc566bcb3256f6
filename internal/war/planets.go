package war

import (
	"log/slog"
	"math"
	"sort"

	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
)

// invasionHealthPerLevel converts an event's max health into its invasion level.
const invasionHealthPerLevel = 50000

// SupplementPlanet is one entry of the community planet reference, keyed by planet index.
type SupplementPlanet struct {
	Name           string   `json:"name"`
	Sector         string   `json:"sector"`
	Biome          string   `json:"biome"`
	Environmentals []string `json:"environmentals"`
}

// Supplement is the slower-changing descriptive data merged into the live catalog.
type Supplement struct {
	Planets map[int]SupplementPlanet
	Biomes  map[string]model.Biome
	Hazards map[string]model.Hazard
}

// NormalizePlanets fills derived fields and clamps values the upstream
// occasionally reports out of range.
func NormalizePlanets(planets []model.Planet) []model.Planet {
	out := make([]model.Planet, len(planets))
	for i, p := range planets {
		if p.RegenPerSecond < 0 {
			p.RegenPerSecond = 0
		}
		p.Percentage = percentage(p.Health, p.MaxHealth)
		p.LiberationRate = 0
		if p.MaxHealth > 0 {
			p.LiberationRate = p.RegenPerSecond * 3600 / float64(p.MaxHealth) * 100
		}
		if p.Event != nil {
			ev := *p.Event
			ev.Percentage = percentage(ev.Health, ev.MaxHealth)
			ev.InvasionLevel = ev.MaxHealth / invasionHealthPerLevel
			p.Event = &ev
		}
		out[i] = p
	}
	return out
}

// percentage is the share of health already taken, in [0,100].
func percentage(health, maxHealth int64) float64 {
	if maxHealth <= 0 {
		return 0
	}
	pct := 100 - float64(health)/float64(maxHealth)*100
	return math.Min(100, math.Max(0, pct))
}

// DedupeByIndex keeps the first planet seen for each index.
func DedupeByIndex(planets []model.Planet) []model.Planet {
	seen := make(map[int]bool, len(planets))
	out := make([]model.Planet, 0, len(planets))
	for _, p := range planets {
		if seen[p.Index] {
			slog.Warn("dropping duplicate planet index", "index", p.Index, "name", p.Name)
			continue
		}
		seen[p.Index] = true
		out = append(out, p)
	}
	return out
}

// EnrichPlanets overwrites biome and hazards for every planet that has a
// supplementary entry. Planets without one keep the primary source's values.
// Applying it twice with the same supplement gives the same result as once.
func EnrichPlanets(planets []model.Planet, s Supplement) []model.Planet {
	out := make([]model.Planet, len(planets))
	for i, p := range planets {
		entry, ok := s.Planets[p.Index]
		if !ok {
			out[i] = p
			continue
		}
		if biome, ok := s.Biomes[entry.Biome]; ok {
			b := biome
			p.Biome = &b
		}
		hazards := make([]model.Hazard, 0, len(entry.Environmentals))
		for _, key := range entry.Environmentals {
			if h, ok := s.Hazards[key]; ok {
				hazards = append(hazards, h)
			}
		}
		p.Hazards = hazards
		out[i] = p
	}
	return out
}

// GroupBySector returns the lexicographically sorted distinct sector names and
// the planets of each sector in catalog order.
func GroupBySector(planets []model.Planet) ([]string, map[string][]model.Planet) {
	bySector := make(map[string][]model.Planet)
	for _, p := range planets {
		bySector[p.Sector] = append(bySector[p.Sector], p)
	}
	sectors := make([]string, 0, len(bySector))
	for name := range bySector {
		sectors = append(sectors, name)
	}
	sort.Strings(sectors)
	return sectors, bySector
}
