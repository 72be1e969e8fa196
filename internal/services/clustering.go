package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/platform/envutil"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
)

const (
	embedBatchSize = 100
	defaultTopK    = 10
)

// ClusteringPipeline embeds entities that lack a vector, then runs
// similarity clustering over the whole graph and writes cluster ids back.
type ClusteringPipeline struct {
	store     EntityStore
	embedding EmbeddingClient
	analytics GraphAnalytics
	topK      int
	log       *logger.Logger
}

func NewClusteringPipeline(store EntityStore, embedding EmbeddingClient, analytics GraphAnalytics, log *logger.Logger) *ClusteringPipeline {
	return &ClusteringPipeline{
		store:     store,
		embedding: embedding,
		analytics: analytics,
		topK:      envutil.Int("CLUSTER_TOP_K", defaultTopK),
		log:       log.With("service", "ClusteringPipeline"),
	}
}

// Run is all-or-nothing with respect to cluster ids: embeddings written in
// earlier batches survive a later failure (they are still valid inputs for
// the next run), but cluster ids are only written after the whole pipeline
// has succeeded.
func (p *ClusteringPipeline) Run(ctx context.Context) (*domain.ClusterReport, error) {
	report := &domain.ClusterReport{}

	pending, err := p.store.EntitiesMissingEmbedding(ctx)
	if err != nil {
		return nil, fmt.Errorf("clustering: list unembedded: %w", err)
	}
	p.log.Info("Clustering run started", "entities_missing_embedding", len(pending))

	for start := 0; start < len(pending); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = EmbeddingText(e)
		}

		vectors, err := p.embedding.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("clustering: embed batch [%d:%d]: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("clustering: embed batch [%d:%d]: got %d vectors for %d inputs", start, end, len(vectors), len(batch))
		}

		byID := make(map[string][]float32, len(batch))
		for i, e := range batch {
			byID[e.ID] = vectors[i]
		}
		if err := p.store.WriteEmbeddings(ctx, byID); err != nil {
			return nil, fmt.Errorf("clustering: write embeddings: %w", err)
		}
		report.EntitiesEmbedded += len(batch)
	}

	clusters, err := p.analytics.SimilarityClusters(ctx, p.topK)
	if err != nil {
		return nil, fmt.Errorf("clustering: similarity clusters: %w", err)
	}
	if len(clusters) == 0 {
		p.log.Info("Clustering run produced no clusters")
		return report, nil
	}

	if err := p.store.WriteClusterIDs(ctx, clusters); err != nil {
		return nil, fmt.Errorf("clustering: write cluster ids: %w", err)
	}

	distinct := make(map[int64]struct{}, len(clusters))
	for _, cid := range clusters {
		distinct[cid] = struct{}{}
	}
	report.EntitiesClustered = len(clusters)
	report.Clusters = len(distinct)

	p.log.Info("Clustering run finished",
		"entities_embedded", report.EntitiesEmbedded,
		"entities_clustered", report.EntitiesClustered,
		"clusters", report.Clusters)
	return report, nil
}

// EmbeddingText flattens an entity's descriptive fields into the text that
// is embedded for similarity search. Empty fields are skipped so sparse
// placeholder entities still produce a usable input.
func EmbeddingText(e *domain.Entity) string {
	var parts []string
	add := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			parts = append(parts, label+": "+value)
		}
	}

	add("Name", e.Name)
	add("Organization Number", e.ID)
	if len(e.Aliases) > 0 {
		add("Aliases", strings.Join(e.Aliases, ", "))
	}
	add("Description", e.Description)
	add("Mission", e.Mission)
	if len(e.Sectors) > 0 {
		add("Sectors", strings.Join(e.Sectors, ", "))
	}
	add("Country", e.CountryCode)
	add("Year Founded", e.YearFounded)
	if e.NumEmployees != nil {
		add("Employees", fmt.Sprintf("%d", *e.NumEmployees))
	}
	if len(e.KeyPeople) > 0 {
		add("Key People", strings.Join(e.KeyPeople, ", "))
	}
	add("Website", e.Website)

	return strings.Join(parts, "\n")
}
