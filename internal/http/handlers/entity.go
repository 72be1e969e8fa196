package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/northernlights-labs/ownership-graph/internal/http/response"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
	"github.com/northernlights-labs/ownership-graph/internal/services"
)

type EntityHandler struct {
	log     *logger.Logger
	query   *services.Query
	curator *services.Curator
}

func NewEntityHandler(log *logger.Logger, query *services.Query, curator *services.Curator) *EntityHandler {
	return &EntityHandler{
		log:     log.With("handler", "EntityHandler"),
		query:   query,
		curator: curator,
	}
}

func (h *EntityHandler) Get(c *gin.Context) {
	entity, err := h.query.Entity(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	response.RespondOK(c, entity)
}

func (h *EntityHandler) Portfolio(c *gin.Context) {
	holdings, err := h.query.Portfolio(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"holdings": holdings})
}

func (h *EntityHandler) Owners(c *gin.Context) {
	owners, err := h.query.Owners(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"owners": owners})
}

func (h *EntityHandler) Network(c *gin.Context) {
	depth := 2
	if raw := c.Query("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_depth", err)
			return
		}
		depth = parsed
	}

	graph, err := h.query.Network(c.Request.Context(), c.Param("id"), depth)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	response.RespondOK(c, graph)
}

func (h *EntityHandler) Leads(c *gin.Context) {
	leads, err := h.query.SameClusterLeads(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"leads": leads})
}

type mergeEntitiesRequest struct {
	DuplicateID string `json:"duplicate_id"`
}

// Merge folds a duplicate node into the entity in the path. Used for manual
// reconciliation after a placeholder turns out to be an existing entity.
func (h *EntityHandler) Merge(c *gin.Context) {
	var req mergeEntitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	survivorID := c.Param("id")
	if err := h.curator.MergeEntities(c.Request.Context(), survivorID, req.DuplicateID); err != nil {
		h.log.Error("Entity merge failed",
			"survivor_id", survivorID, "duplicate_id", req.DuplicateID, "error", err)
		respondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"survivor_id": survivorID, "merged": req.DuplicateID})
}
