package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/northernlights-labs/ownership-graph/internal/http/handlers"
)

type RouterConfig struct {
	HealthHandler       *handlers.HealthHandler
	IngestHandler       *handlers.IngestHandler
	RelationshipHandler *handlers.RelationshipHandler
	EntityHandler       *handlers.EntityHandler
	ClusteringHandler   *handlers.ClusteringHandler
	AllowOrigins        []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/ingest", cfg.IngestHandler.Ingest)
		api.POST("/relationships", cfg.RelationshipHandler.Merge)
		api.POST("/clustering/run", cfg.ClusteringHandler.Run)

		entities := api.Group("/entities")
		{
			entities.GET("/:id", cfg.EntityHandler.Get)
			entities.GET("/:id/portfolio", cfg.EntityHandler.Portfolio)
			entities.GET("/:id/owners", cfg.EntityHandler.Owners)
			entities.GET("/:id/network", cfg.EntityHandler.Network)
			entities.GET("/:id/leads", cfg.EntityHandler.Leads)
			entities.POST("/:id/merge", cfg.EntityHandler.Merge)
		}
	}

	return router
}
