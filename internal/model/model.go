package model

import "time"

// RemoteConfig is the small document that tells every other fetch where to go.
type RemoteConfig struct {
	APIAddress     string          `json:"apiAddress"`
	Season         string          `json:"season"`
	Alert          string          `json:"alert,omitempty"`
	ProminentAlert string          `json:"prominentAlert,omitempty"`
	ShowIlluminate bool            `json:"showIlluminate"`
	Flags          map[string]bool `json:"flags,omitempty"`
}

// Flag reports whether a named feature flag is enabled.
func (c RemoteConfig) Flag(name string) bool {
	return c.Flags[name]
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Biome struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Hazard struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Statistics mirrors the per-planet and galaxy-wide statistics block.
type Statistics struct {
	MissionsWon        int64   `json:"missionsWon"`
	MissionsLost       int64   `json:"missionsLost"`
	MissionTime        int64   `json:"missionTime"`
	TerminidKills      int64   `json:"terminidKills"`
	AutomatonKills     int64   `json:"automatonKills"`
	IlluminateKills    int64   `json:"illuminateKills"`
	BulletsFired       int64   `json:"bulletsFired"`
	BulletsHit         int64   `json:"bulletsHit"`
	TimePlayed         int64   `json:"timePlayed"`
	Deaths             int64   `json:"deaths"`
	Revives            int64   `json:"revives"`
	Friendlies         int64   `json:"friendlies"`
	MissionSuccessRate float64 `json:"missionSuccessRate"`
	Accuracy           float64 `json:"accuracy"`
	PlayerCount        int64   `json:"playerCount"`
}

// Event is an ongoing defense or invasion on a planet.
type Event struct {
	ID             int64      `json:"id"`
	EventType      int        `json:"eventType"`
	Faction        string     `json:"faction"`
	Health         int64      `json:"health"`
	MaxHealth      int64      `json:"maxHealth"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	ExpireTimeDate *time.Time `json:"expireTimeDate,omitempty"`
	Percentage     float64    `json:"percentage"`
	InvasionLevel  int64      `json:"invasionLevel"`
}

// Planet is keyed by Index across every upstream source.
type Planet struct {
	Index          int        `json:"index"`
	Name           string     `json:"name"`
	Sector         string     `json:"sector"`
	Position       Position   `json:"position"`
	Waypoints      []int      `json:"waypoints"`
	Health         int64      `json:"health"`
	MaxHealth      int64      `json:"maxHealth"`
	InitialOwner   string     `json:"initialOwner"`
	CurrentOwner   string     `json:"currentOwner"`
	Disabled       bool       `json:"disabled"`
	Biome          *Biome     `json:"biome,omitempty"`
	Hazards        []Hazard   `json:"hazards"`
	RegenPerSecond float64    `json:"regenPerSecond"`
	Statistics     Statistics `json:"statistics"`
	Event          *Event     `json:"event,omitempty"`
	Percentage     float64    `json:"percentage"`
	LiberationRate float64    `json:"liberationRate"`
	TaskProgress   *int64     `json:"taskProgress,omitempty"`
}

// CampaignType distinguishes liberation from defense in the published model.
type CampaignType string

const (
	CampaignLiberation CampaignType = "liberation"
	CampaignDefense    CampaignType = "defense"
	CampaignOther      CampaignType = "other"
)

// Campaign wraps a planet that currently has an active front.
type Campaign struct {
	ID     int64        `json:"id"`
	Planet Planet       `json:"planet"`
	Type   CampaignType `json:"type"`
	Count  int64        `json:"count"`
}

// IsDefense reports whether the campaign carries an event.
func (c Campaign) IsDefense() bool {
	return c.Planet.Event != nil
}

type Task struct {
	Type       int     `json:"type"`
	Values     []int64 `json:"values"`
	ValueTypes []int64 `json:"valueTypes"`
}

type Reward struct {
	Type   int   `json:"type"`
	ID32   int64 `json:"id32"`
	Amount int64 `json:"amount"`
}

type Setting struct {
	Type            int    `json:"type"`
	OverrideTitle   string `json:"overrideTitle"`
	OverrideBrief   string `json:"overrideBrief"`
	TaskDescription string `json:"taskDescription"`
	Tasks           []Task `json:"tasks"`
	Reward          Reward `json:"reward"`
	Flags           int    `json:"flags"`
}

// MajorOrder is the active directive as returned by the season endpoint.
type MajorOrder struct {
	ID        int64   `json:"id32"`
	Progress  []int64 `json:"progress"`
	ExpiresIn int64   `json:"expiresIn"`
	Setting   Setting `json:"setting"`
}

// MajorOrderStatus is the published form of a major order.
type MajorOrderStatus struct {
	Order       MajorOrder `json:"order"`
	TaskPlanets []Planet   `json:"taskPlanets"`
	ExpiresAt   time.Time  `json:"expiresAt"`
}

// GalaxyStats is the war-wide summary fetched on the slow stream.
type GalaxyStats struct {
	Started          *time.Time `json:"started,omitempty"`
	Ended            *time.Time `json:"ended,omitempty"`
	Now              *time.Time `json:"now,omitempty"`
	ClientVersion    string     `json:"clientVersion"`
	Factions         []string   `json:"factions"`
	ImpactMultiplier float64    `json:"impactMultiplier"`
	Statistics       Statistics `json:"statistics"`
}

// PlanetDataPoint is one historical sample; Timestamp comes from the snapshot file name.
type PlanetDataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Planet    Planet    `json:"planet"`
}

// StreamStatus is what clients need to render staleness and the backoff countdown.
type StreamStatus struct {
	State       string     `json:"state"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	ResumeAt    *time.Time `json:"resumeAt,omitempty"`
}

// WarState is the published domain model. It is only ever replaced as a whole.
type WarState struct {
	Config           *RemoteConfig                `json:"config,omitempty"`
	Planets          []Planet                     `json:"planets"`
	Sectors          []string                     `json:"sectors"`
	PlanetsBySector  map[string][]Planet          `json:"planetsBySector"`
	Campaigns        []Campaign                   `json:"campaigns"`
	DefenseCampaigns []Campaign                   `json:"defenseCampaigns"`
	MajorOrder       *MajorOrderStatus            `json:"majorOrder,omitempty"`
	Galaxy           *GalaxyStats                 `json:"galaxy,omitempty"`
	History          map[string][]PlanetDataPoint `json:"history,omitempty"`
	SelectedPlanet   *int                         `json:"selectedPlanet,omitempty"`
	Cycle            string                       `json:"cycle,omitempty"`
	LastUpdated      *time.Time                   `json:"lastUpdated,omitempty"`
	HistoryUpdated   *time.Time                   `json:"historyUpdated,omitempty"`
}

// PlanetByIndex returns the catalog entry for index, if present.
func (s WarState) PlanetByIndex(index int) (Planet, bool) {
	for _, p := range s.Planets {
		if p.Index == index {
			return p, true
		}
	}
	return Planet{}, false
}
