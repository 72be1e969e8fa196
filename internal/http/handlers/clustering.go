package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/northernlights-labs/ownership-graph/internal/http/response"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
	"github.com/northernlights-labs/ownership-graph/internal/services"
)

type ClusteringHandler struct {
	log      *logger.Logger
	pipeline *services.ClusteringPipeline
}

func NewClusteringHandler(log *logger.Logger, pipeline *services.ClusteringPipeline) *ClusteringHandler {
	return &ClusteringHandler{
		log:      log.With("handler", "ClusteringHandler"),
		pipeline: pipeline,
	}
}

// Run triggers one synchronous embed + cluster pass over the whole graph.
func (h *ClusteringHandler) Run(c *gin.Context) {
	report, err := h.pipeline.Run(c.Request.Context())
	if err != nil {
		h.log.Error("Clustering run failed", "error", err)
		respondDomainError(c, err)
		return
	}
	response.RespondOK(c, report)
}
