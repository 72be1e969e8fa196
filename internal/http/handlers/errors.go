package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/http/response"
	"github.com/northernlights-labs/ownership-graph/internal/platform/apierr"
)

// respondDomainError maps service errors onto HTTP statuses. An explicit
// apierr.Error wins; otherwise the domain sentinels decide.
func respondDomainError(c *gin.Context, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		response.RespondError(c, ae.Status, ae.Code, ae.Err)
		return
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		response.RespondError(c, http.StatusBadRequest, "validation_failed", err)
	case errors.Is(err, domain.ErrNotFound):
		response.RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, domain.ErrAmbiguous):
		response.RespondError(c, http.StatusConflict, "ambiguous", err)
	case errors.Is(err, domain.ErrUnavailable):
		response.RespondError(c, http.StatusBadGateway, "upstream_unavailable", err)
	default:
		response.RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
