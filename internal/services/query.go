package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
)

const (
	minNetworkDepth = 1
	maxNetworkDepth = 5
)

// Query answers read-side questions about the ownership graph: direct
// holdings, bounded neighborhoods and same-cluster leads.
type Query struct {
	store EntityStore
	log   *logger.Logger
}

func NewQuery(store EntityStore, log *logger.Logger) *Query {
	return &Query{store: store, log: log.With("service", "Query")}
}

// Entity returns a single entity by id.
func (q *Query) Entity(ctx context.Context, id string) (*domain.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("entity: %w: missing id", domain.ErrValidation)
	}
	return q.store.GetEntity(ctx, id)
}

// Portfolio returns the entities the given entity directly owns. The owner
// must exist; an empty portfolio is a valid answer, an unknown id is not.
func (q *Query) Portfolio(ctx context.Context, ownerID string) ([]domain.Holding, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("portfolio: %w: missing id", domain.ErrValidation)
	}
	if _, err := q.store.GetEntity(ctx, ownerID); err != nil {
		return nil, err
	}
	return q.store.Portfolio(ctx, ownerID)
}

// Owners returns the entities that directly own the given entity.
func (q *Query) Owners(ctx context.Context, id string) ([]domain.Holding, error) {
	if id == "" {
		return nil, fmt.Errorf("owners: %w: missing id", domain.ErrValidation)
	}
	if _, err := q.store.GetEntity(ctx, id); err != nil {
		return nil, err
	}
	return q.store.Owners(ctx, id)
}

// Network returns the neighborhood of root out to depth hops, traversing
// ownership edges in both directions. Depth is clamped to [1, 5]. Nodes and
// edges are deduplicated across paths, so cycles and diamond shapes never
// produce repeated elements. The root node is always present, even when it
// has no edges at all.
func (q *Query) Network(ctx context.Context, rootID string, depth int) (*domain.NetworkGraph, error) {
	if rootID == "" {
		return nil, fmt.Errorf("network: %w: missing id", domain.ErrValidation)
	}
	if depth < minNetworkDepth {
		depth = minNetworkDepth
	}
	if depth > maxNetworkDepth {
		depth = maxNetworkDepth
	}

	root, err := q.store.GetEntity(ctx, rootID)
	if err != nil {
		return nil, err
	}

	paths, err := q.store.Paths(ctx, rootID, depth)
	if err != nil {
		return nil, err
	}

	graph := &domain.NetworkGraph{RootID: rootID, Depth: depth}
	seenNodes := map[string]struct{}{}
	seenEdges := map[[2]string]struct{}{}

	addNode := func(e *domain.Entity) {
		if e == nil {
			return
		}
		if _, ok := seenNodes[e.ID]; ok {
			return
		}
		seenNodes[e.ID] = struct{}{}
		graph.Nodes = append(graph.Nodes, domain.NetworkNode{ID: e.ID, Name: e.Name, Type: e.Type})
	}

	addNode(root)
	for _, p := range paths {
		for _, n := range p.Nodes {
			addNode(n)
		}
		for _, edge := range p.Edges {
			key := [2]string{edge.SourceID, edge.TargetID}
			if _, ok := seenEdges[key]; ok {
				continue
			}
			seenEdges[key] = struct{}{}
			graph.Edges = append(graph.Edges, domain.NetworkEdge{
				Source:   edge.SourceID,
				Target:   edge.TargetID,
				SharePct: edge.SharePct,
			})
		}
	}

	sort.Slice(graph.Nodes, func(i, j int) bool { return graph.Nodes[i].ID < graph.Nodes[j].ID })
	sort.Slice(graph.Edges, func(i, j int) bool {
		if graph.Edges[i].Source != graph.Edges[j].Source {
			return graph.Edges[i].Source < graph.Edges[j].Source
		}
		return graph.Edges[i].Target < graph.Edges[j].Target
	})
	return graph, nil
}

// SameClusterLeads returns the other members of the entity's similarity
// cluster. An entity that has never been clustered has no leads, which is an
// empty answer rather than an error.
func (q *Query) SameClusterLeads(ctx context.Context, id string) ([]*domain.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("leads: %w: missing id", domain.ErrValidation)
	}
	entity, err := q.store.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity.ClusterID == nil {
		return []*domain.Entity{}, nil
	}

	members, err := q.store.EntitiesInCluster(ctx, *entity.ClusterID)
	if err != nil {
		return nil, err
	}
	leads := make([]*domain.Entity, 0, len(members))
	for _, m := range members {
		if m.ID == id {
			continue
		}
		leads = append(leads, m)
	}
	return leads, nil
}
