package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/http/response"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
	"github.com/northernlights-labs/ownership-graph/internal/services"
)

type RelationshipHandler struct {
	log    *logger.Logger
	merger *services.Merger
}

func NewRelationshipHandler(log *logger.Logger, merger *services.Merger) *RelationshipHandler {
	return &RelationshipHandler{
		log:    log.With("handler", "RelationshipHandler"),
		merger: merger,
	}
}

type relationshipRequest struct {
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
	SharePct *float64 `json:"share_percentage"`
	Amount   *float64 `json:"amount"`
}

// Merge creates or updates a single ownership edge by hand. 201 on a new
// edge, 200 when an existing edge was updated.
func (h *RelationshipHandler) Merge(c *gin.Context) {
	var req relationshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	result, err := h.merger.Merge(c.Request.Context(), domain.Ownership{
		SourceID:   req.SourceID,
		TargetID:   req.TargetID,
		SharePct:   req.SharePct,
		Amount:     req.Amount,
		Provenance: domain.ProvenanceManual,
	})
	if err != nil {
		h.log.Error("Relationship merge failed",
			"source_id", req.SourceID, "target_id", req.TargetID, "error", err)
		respondDomainError(c, err)
		return
	}

	if result.Created {
		response.RespondCreated(c, result)
		return
	}
	response.RespondOK(c, result)
}
