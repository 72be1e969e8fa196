package app

import (
	"github.com/northernlights-labs/ownership-graph/internal/http/handlers"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
)

type Handlers struct {
	Health       *handlers.HealthHandler
	Ingest       *handlers.IngestHandler
	Relationship *handlers.RelationshipHandler
	Entity       *handlers.EntityHandler
	Clustering   *handlers.ClusteringHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:       handlers.NewHealthHandler(),
		Ingest:       handlers.NewIngestHandler(log, services.Orchestrator),
		Relationship: handlers.NewRelationshipHandler(log, services.Merger),
		Entity:       handlers.NewEntityHandler(log, services.Query, services.Curator),
		Clustering:   handlers.NewClusteringHandler(log, services.Clustering),
	}
}
