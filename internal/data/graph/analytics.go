package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
	"github.com/northernlights-labs/ownership-graph/internal/platform/neo4jdb"
)

// Analytics drives the Graph Data Science runtime over Cypher: project the
// embedded entities, build a kNN similarity graph, run Leiden, stream the
// partition back. Nothing is written to the live graph; persisting cluster
// ids is the caller's final step.
type Analytics struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewAnalytics(client *neo4jdb.Client, log *logger.Logger) *Analytics {
	return &Analytics{client: client, log: log.With("component", "GraphAnalytics")}
}

const (
	projectNodeQuery = `MATCH (n) WHERE (n:Company OR n:Fund) AND n.embedding IS NOT NULL ` +
		`RETURN id(n) AS id, n.embedding AS embedding`
	projectRelQuery = `MATCH (s)-[r:OWNS]->(t) ` +
		`WHERE (s:Company OR s:Fund) AND (t:Company OR t:Fund) ` +
		`RETURN id(s) AS source, id(t) AS target`
)

// SimilarityClusters returns entity id -> cluster id for every entity
// carrying an embedding. Community ids are only stable up to permutation
// between runs.
func (a *Analytics) SimilarityClusters(ctx context.Context, topK int) (map[string]int64, error) {
	if topK < 1 {
		topK = 10
	}

	// Unique projection name: concurrent or crashed runs must not collide.
	name := fmt.Sprintf("ownership_similarity_%d", time.Now().UnixNano())

	session := a.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: a.client.Database,
	})
	defer session.Close(ctx)

	defer func() {
		dropCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if res, err := session.Run(dropCtx,
			`CALL gds.graph.drop($name, false)`, map[string]any{"name": name}); err == nil {
			_, _ = res.Consume(dropCtx)
		}
	}()

	res, err := session.Run(ctx, `CALL gds.graph.project.cypher($name, $nodeQuery, $relQuery)`,
		map[string]any{"name": name, "nodeQuery": projectNodeQuery, "relQuery": projectRelQuery})
	if err != nil {
		return nil, fmt.Errorf("analytics: project graph: %w: %v", domain.ErrUnavailable, err)
	}
	if _, err = res.Consume(ctx); err != nil {
		return nil, fmt.Errorf("analytics: project graph: %w: %v", domain.ErrUnavailable, err)
	}

	res, err = session.Run(ctx, `
CALL gds.knn.mutate($name, {
  nodeProperties: ['embedding'],
  mutateRelationshipType: 'SIMILAR_TO',
  mutateProperty: 'score',
  topK: $topK
})
`, map[string]any{"name": name, "topK": topK})
	if err != nil {
		return nil, fmt.Errorf("analytics: knn: %w: %v", domain.ErrUnavailable, err)
	}
	if _, err = res.Consume(ctx); err != nil {
		return nil, fmt.Errorf("analytics: knn: %w: %v", domain.ErrUnavailable, err)
	}

	res, err = session.Run(ctx, `
CALL gds.leiden.stream($name, {relationshipTypes: ['SIMILAR_TO']})
YIELD nodeId, communityId
RETURN gds.util.asNode(nodeId).id AS entity_id, communityId AS cluster_id
`, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("analytics: leiden: %w: %v", domain.ErrUnavailable, err)
	}

	clusters := make(map[string]int64)
	for res.Next(ctx) {
		rec := res.Record()
		idRaw, _ := rec.Get("entity_id")
		clusterRaw, _ := rec.Get("cluster_id")
		id, ok := idRaw.(string)
		if !ok || id == "" {
			continue
		}
		cluster, ok := clusterRaw.(int64)
		if !ok {
			continue
		}
		clusters[id] = cluster
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("analytics: leiden stream: %w: %v", domain.ErrUnavailable, err)
	}

	a.log.Info("Similarity clustering complete", "entities", len(clusters), "top_k", topK)
	return clusters, nil
}
