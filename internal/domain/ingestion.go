package domain

// BranchFailure records one abandoned branch of an ingestion run: the entity
// being processed, the stage that failed and why.
type BranchFailure struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name,omitempty"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
}

// IngestionSummary is the always-returned result of one ingestion run.
// Abandoned lists branches given up after retries; the rest of the run still
// counts.
type IngestionSummary struct {
	RootID          string          `json:"root_id"`
	EntitiesCreated int             `json:"entities_created"`
	EntitiesTouched int             `json:"entities_touched"`
	EdgesMerged     int             `json:"edges_merged"`
	Abandoned       []BranchFailure `json:"abandoned,omitempty"`
}

// ClusterReport summarizes one clustering pipeline run.
type ClusterReport struct {
	EntitiesEmbedded  int `json:"entities_embedded"`
	EntitiesClustered int `json:"entities_clustered"`
	Clusters          int `json:"clusters"`
}
