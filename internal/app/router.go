package app

import (
	"github.com/gin-gonic/gin"

	"github.com/northernlights-labs/ownership-graph/internal/server"
)

func wireRouter(cfg Config, handlers Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		HealthHandler:       handlers.Health,
		IngestHandler:       handlers.Ingest,
		RelationshipHandler: handlers.Relationship,
		EntityHandler:       handlers.Entity,
		ClusteringHandler:   handlers.Clustering,
		AllowOrigins:        cfg.AllowOrigins,
	})
}
