package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/http/response"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
	"github.com/northernlights-labs/ownership-graph/internal/services"
)

type IngestHandler struct {
	log          *logger.Logger
	orchestrator *services.Orchestrator
}

func NewIngestHandler(log *logger.Logger, orchestrator *services.Orchestrator) *IngestHandler {
	return &IngestHandler{
		log:          log.With("handler", "IngestHandler"),
		orchestrator: orchestrator,
	}
}

type ingestRequest struct {
	Name       string `json:"name"`
	ExternalID string `json:"external_id"`
	TypeHint   string `json:"type_hint"`
}

// Ingest kicks off one synchronous portfolio discovery run. Branch failures
// come back inside the summary; only an unresolvable root is an error.
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	summary, err := h.orchestrator.Ingest(c.Request.Context(), domain.Reference{
		Name:       req.Name,
		ExternalID: req.ExternalID,
		TypeHint:   domain.EntityType(req.TypeHint),
	})
	if err != nil {
		h.log.Error("Ingest failed", "name", req.Name, "external_id", req.ExternalID, "error", err)
		respondDomainError(c, err)
		return
	}
	response.RespondOK(c, summary)
}
