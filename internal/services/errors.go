package services

import (
	"errors"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
)

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }

// isRetryable gates the backoff loops: only collaborator failures are worth
// retrying, validation and not-found never are.
func isRetryable(err error) bool { return errors.Is(err, domain.ErrUnavailable) }
