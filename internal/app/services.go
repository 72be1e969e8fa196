package app

import (
	"github.com/northernlights-labs/ownership-graph/internal/data/graph"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
	"github.com/northernlights-labs/ownership-graph/internal/services"
)

type Services struct {
	Resolver     *services.Resolver
	Merger       *services.Merger
	Orchestrator *services.Orchestrator
	Query        *services.Query
	Curator      *services.Curator
	Clustering   *services.ClusteringPipeline
}

func wireServices(log *logger.Logger, cfg Config, store *graph.Store, analytics *graph.Analytics) (Services, error) {
	log.Info("Wiring services...")

	extraction, err := services.NewExtractionClient(log)
	if err != nil {
		return Services{}, err
	}
	embedding, err := services.NewEmbeddingClient(log)
	if err != nil {
		return Services{}, err
	}

	resolver := services.NewResolver(store, log)
	merger := services.NewMerger(store, log)

	return Services{
		Resolver:     resolver,
		Merger:       merger,
		Orchestrator: services.NewOrchestrator(resolver, merger, store, extraction, cfg.Ingestion, log),
		Query:        services.NewQuery(store, log),
		Curator:      services.NewCurator(store, log),
		Clustering:   services.NewClusteringPipeline(store, embedding, analytics, log),
	}, nil
}
