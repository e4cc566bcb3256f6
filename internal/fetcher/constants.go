package fetcher

// Paths appended to the remote config's apiAddress. apiAddress is used verbatim,
// so it must carry its own trailing slash.
const (
	planetsPath   = "planets"
	campaignsPath = "campaigns"
	warPath       = "war"
)

// Documents of the community static-data mirror.
const (
	supplementPlanetsDoc = "planets/planets.json"
	supplementBiomesDoc  = "planets/biomes.json"
	supplementHazardsDoc = "planets/environmentals.json"
)

// Source names used in logs, metrics and PartialError.
const (
	SourceRemoteConfig  = "remote_config"
	SourcePlanets       = "planets"
	SourceSupplement    = "planet_supplement"
	SourceCampaigns     = "campaigns"
	SourceDefenseExpiry = "defense_expiry"
	SourceMajorOrder    = "major_order"
	SourceGalaxy        = "galaxy"
	SourceHistoryList   = "history_list"
	SourceHistoryFile   = "history_file"
)
