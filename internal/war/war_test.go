package war

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/backyonatan-alt/warmonitor/backend/internal/model"
)

func testSupplement() Supplement {
	return Supplement{
		Planets: map[int]SupplementPlanet{
			1: {Name: "Malevelon Creek", Biome: "jungle", Environmentals: []string{"rainstorms", "unknown"}},
			2: {Name: "Estanu", Biome: "missing", Environmentals: []string{"blizzards"}},
		},
		Biomes: map[string]model.Biome{
			"jungle": {Name: "jungle", Description: "Dense rainforest."},
		},
		Hazards: map[string]model.Hazard{
			"rainstorms": {Name: "Rainstorms", Description: "Low visibility."},
			"blizzards":  {Name: "Blizzards", Description: "Cold."},
		},
	}
}

func TestEnrichPlanetsOverwritesOnlySupplementedPlanets(t *testing.T) {
	planets := []model.Planet{
		{Index: 1, Name: "Malevelon Creek", Biome: &model.Biome{Name: "old"}, Hazards: []model.Hazard{{Name: "old"}}},
		{Index: 2, Name: "Estanu", Biome: &model.Biome{Name: "ice"}},
		{Index: 3, Name: "Fenrir III", Biome: &model.Biome{Name: "desert"}, Hazards: []model.Hazard{{Name: "Sandstorms"}}},
	}

	got := EnrichPlanets(planets, testSupplement())

	if got[0].Biome.Name != "jungle" {
		t.Fatalf("planet 1 biome: got %q want jungle", got[0].Biome.Name)
	}
	if len(got[0].Hazards) != 1 || got[0].Hazards[0].Name != "Rainstorms" {
		t.Fatalf("planet 1 hazards: got %+v", got[0].Hazards)
	}
	if got[1].Biome.Name != "ice" {
		t.Fatalf("planet 2 biome should be kept when definition is missing, got %q", got[1].Biome.Name)
	}
	if len(got[1].Hazards) != 1 || got[1].Hazards[0].Name != "Blizzards" {
		t.Fatalf("planet 2 hazards: got %+v", got[1].Hazards)
	}
	if !reflect.DeepEqual(got[2], planets[2]) {
		t.Fatalf("planet 3 should be untouched: got %+v", got[2])
	}
	if planets[0].Biome.Name != "old" {
		t.Fatalf("input slice was mutated")
	}
}

func TestEnrichPlanetsIsIdempotent(t *testing.T) {
	planets := []model.Planet{
		{Index: 1, Name: "Malevelon Creek"},
		{Index: 2, Name: "Estanu"},
		{Index: 9, Name: "Hellmire"},
	}
	s := testSupplement()

	once := EnrichPlanets(planets, s)
	twice := EnrichPlanets(once, s)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("enrichment not idempotent:\nonce  %+v\ntwice %+v", once, twice)
	}
}

func TestNormalizePlanetsDerivedFields(t *testing.T) {
	planets := NormalizePlanets([]model.Planet{
		{Index: 1, Health: 250000, MaxHealth: 1000000, RegenPerSecond: -2},
		{Index: 2, Health: 2000000, MaxHealth: 1000000},
		{Index: 3, MaxHealth: 0},
		{Index: 4, Health: 500000, MaxHealth: 1000000, RegenPerSecond: 1,
			Event: &model.Event{Health: 300000, MaxHealth: 600000}},
	})

	if planets[0].Percentage != 75 {
		t.Fatalf("percentage: got %v want 75", planets[0].Percentage)
	}
	if planets[0].RegenPerSecond != 0 {
		t.Fatalf("regen should be clamped to 0, got %v", planets[0].RegenPerSecond)
	}
	if planets[1].Percentage != 0 {
		t.Fatalf("over-health percentage should clamp to 0, got %v", planets[1].Percentage)
	}
	if planets[2].Percentage != 0 {
		t.Fatalf("zero max health percentage: got %v", planets[2].Percentage)
	}
	if got := planets[3].LiberationRate; math.Abs(got-0.36) > 1e-9 {
		t.Fatalf("liberation rate: got %v want 0.36", got)
	}
	ev := planets[3].Event
	if ev.Percentage != 50 || ev.InvasionLevel != 12 {
		t.Fatalf("event derived fields: got pct=%v level=%v", ev.Percentage, ev.InvasionLevel)
	}
	for _, p := range planets {
		if p.Percentage < 0 || p.Percentage > 100 {
			t.Fatalf("planet %d percentage out of range: %v", p.Index, p.Percentage)
		}
	}
}

func TestDedupeByIndexKeepsFirst(t *testing.T) {
	got := DedupeByIndex([]model.Planet{{Index: 1, Name: "a"}, {Index: 2, Name: "b"}, {Index: 1, Name: "c"}})
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Fatalf("DedupeByIndex: got %+v", got)
	}
}

func TestGroupBySector(t *testing.T) {
	sectors, bySector := GroupBySector([]model.Planet{
		{Index: 1, Sector: "Umlaut"},
		{Index: 2, Sector: "Akira"},
		{Index: 3, Sector: "Umlaut"},
	})
	if want := []string{"Akira", "Umlaut"}; !reflect.DeepEqual(sectors, want) {
		t.Fatalf("sectors: got %v want %v", sectors, want)
	}
	if len(bySector["Umlaut"]) != 2 || bySector["Umlaut"][0].Index != 1 {
		t.Fatalf("Umlaut group: got %+v", bySector["Umlaut"])
	}
}

func campaign(name string, event bool, players int64) model.Campaign {
	p := model.Planet{Name: name, Statistics: model.Statistics{PlayerCount: players}}
	if event {
		p.Event = &model.Event{Faction: "Automatons"}
	}
	return model.Campaign{Planet: p}
}

func TestRankCampaignsEventsFirstAndStable(t *testing.T) {
	in := []model.Campaign{
		campaign("A", true, 10),
		campaign("B", true, 10),
		campaign("C", false, 999),
	}

	all, defense := RankCampaigns(in)

	var names []string
	for _, c := range all {
		names = append(names, c.Planet.Name)
	}
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("order: got %v want %v", names, want)
	}
	if len(defense) != 2 || defense[0].Planet.Name != "A" || defense[1].Planet.Name != "B" {
		t.Fatalf("defense partition: got %+v", defense)
	}
}

func TestRankCampaignsByPlayerCount(t *testing.T) {
	all, defense := RankCampaigns([]model.Campaign{
		campaign("low", false, 5),
		campaign("high", false, 500),
		campaign("def", true, 1),
		campaign("mid", false, 50),
	})
	var names []string
	for _, c := range all {
		names = append(names, c.Planet.Name)
	}
	if want := []string{"def", "high", "mid", "low"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("order: got %v want %v", names, want)
	}
	if len(defense) != 1 {
		t.Fatalf("defense count: got %d want 1", len(defense))
	}
}

func TestClassify(t *testing.T) {
	if got := Classify(model.Planet{Event: &model.Event{}}, 0); got != model.CampaignDefense {
		t.Fatalf("event planet: got %s", got)
	}
	if got := Classify(model.Planet{}, 0); got != model.CampaignLiberation {
		t.Fatalf("type 0: got %s", got)
	}
	if got := Classify(model.Planet{}, 3); got != model.CampaignOther {
		t.Fatalf("type 3: got %s", got)
	}
}

func TestAttachDefenseExpiry(t *testing.T) {
	def := campaign("def", true, 1)
	def.Planet.Index = 7
	lib := campaign("lib", false, 1)
	lib.Planet.Index = 8

	got := AttachDefenseExpiry([]model.Campaign{def, lib}, []DefenseExpiry{
		{PlanetIndex: 7, ExpireDateTime: 1700000000.5},
		{PlanetIndex: 8, ExpireDateTime: 1700000000},
	})

	exp := got[0].Planet.Event.ExpireTimeDate
	if exp == nil {
		t.Fatalf("expected expiry on defense campaign")
	}
	if want := time.Unix(1700000000, int64(500*time.Millisecond)).UTC(); !exp.Equal(want) {
		t.Fatalf("expiry: got %v want %v", exp, want)
	}
	if got[1].Planet.Event != nil {
		t.Fatalf("liberation campaign must not gain an event")
	}
	if def.Planet.Event.ExpireTimeDate != nil {
		t.Fatalf("input event was mutated")
	}
}

func TestAssociateTaskPlanets(t *testing.T) {
	order := model.MajorOrder{
		Progress: []int64{1, 0},
		Setting: model.Setting{Tasks: []model.Task{
			{Values: []int64{3, 1, 42}},
			{Values: []int64{3, 1, 7}},
		}},
	}

	catalogs := [][]model.Planet{
		{{Index: 7}, {Index: 3}, {Index: 42}},
		{{Index: 42}, {Index: 7}},
	}
	for _, catalog := range catalogs {
		got := AssociateTaskPlanets(order, catalog)
		if len(got) != 2 {
			t.Fatalf("taskPlanets: got %d want 2", len(got))
		}
		progress := map[int]int64{}
		for _, p := range got {
			if p.TaskProgress == nil {
				t.Fatalf("planet %d missing task progress", p.Index)
			}
			progress[p.Index] = *p.TaskProgress
		}
		if progress[42] != 1 || progress[7] != 0 {
			t.Fatalf("progress: got %v want 42->1 7->0", progress)
		}
	}
}

func TestAssociateTaskPlanetsGuards(t *testing.T) {
	order := model.MajorOrder{
		Progress: []int64{5, 6, 7},
		Setting: model.Setting{Tasks: []model.Task{
			{Values: []int64{1, 2}},
			{Values: []int64{1, 2, 11}},
		}},
	}

	got := AssociateTaskPlanets(order, []model.Planet{{Index: 11}, {Index: 2}})
	if len(got) != 1 || got[0].Index != 11 {
		t.Fatalf("taskPlanets: got %+v", got)
	}
	if *got[0].TaskProgress != 6 {
		t.Fatalf("progress: got %d want 6", *got[0].TaskProgress)
	}
}

func TestTargetPlanetIndex(t *testing.T) {
	if _, ok := TargetPlanetIndex(model.Task{Values: []int64{1, 2}}); ok {
		t.Fatalf("short value list should have no target")
	}
	if idx, ok := TargetPlanetIndex(model.Task{Values: []int64{1, 2, 99, 4}}); !ok || idx != 99 {
		t.Fatalf("target: got %d %v want 99 true", idx, ok)
	}
}

func TestNewMajorOrderStatusExpiry(t *testing.T) {
	fetched := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	st := NewMajorOrderStatus(model.MajorOrder{ExpiresIn: 3600}, nil, fetched)
	if want := fetched.Add(time.Hour); !st.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt: got %v want %v", st.ExpiresAt, want)
	}
	if st.TaskPlanets == nil || len(st.TaskPlanets) != 0 {
		t.Fatalf("taskPlanets should be empty, got %+v", st.TaskPlanets)
	}
}
