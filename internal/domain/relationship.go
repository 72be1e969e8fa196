package domain

import "time"

// Provenance values for OWNS edges.
const (
	ProvenanceManual     = "manual"
	ProvenanceExtraction = "extraction"
)

// Ownership is a directed OWNS edge: the source holds equity in the target.
// At most one edge exists per ordered (SourceID, TargetID) pair; repeated
// merges update properties in place.
type Ownership struct {
	SourceID   string    `json:"source_id"`
	TargetID   string    `json:"target_id"`
	SharePct   *float64  `json:"share_percentage,omitempty"`
	Amount     *float64  `json:"amount,omitempty"`
	Provenance string    `json:"provenance,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Holding is one hop of the ownership graph seen from one side: the entity on
// the far end plus the edge properties.
type Holding struct {
	Entity   *Entity  `json:"entity"`
	SharePct *float64 `json:"share_percentage,omitempty"`
	Amount   *float64 `json:"amount,omitempty"`
}

// NetworkNode is a deduplicated node in a network response.
type NetworkNode struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type EntityType `json:"type"`
}

// NetworkEdge is a deduplicated directed edge in a network response.
type NetworkEdge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	SharePct *float64 `json:"share_percentage,omitempty"`
}

// NetworkGraph is the bounded-depth neighborhood of a root entity with nodes
// and edges deduplicated across paths.
type NetworkGraph struct {
	RootID string        `json:"root_id"`
	Depth  int           `json:"depth"`
	Nodes  []NetworkNode `json:"nodes"`
	Edges  []NetworkEdge `json:"edges"`
}

// Path is one raw traversal result from the store: the node sequence from the
// root and the edges along it, in order. The query engine is responsible for
// dedup across paths.
type Path struct {
	Nodes []*Entity
	Edges []Ownership
}
