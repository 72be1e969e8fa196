package services

import (
	"context"
	"fmt"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/platform/apierr"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
)

// Curator handles manual graph maintenance, chiefly folding a placeholder
// duplicate into the entity it turned out to be.
type Curator struct {
	store EntityStore
	log   *logger.Logger
}

func NewCurator(store EntityStore, log *logger.Logger) *Curator {
	return &Curator{store: store, log: log.With("service", "Curator")}
}

// MergeEntities moves every ownership edge from duplicate onto survivor and
// removes the duplicate node. Self-loops produced by the relink are dropped.
// Only placeholder duplicates may be folded away: deleting a
// registry-identified node would discard filed data.
func (cu *Curator) MergeEntities(ctx context.Context, survivorID, duplicateID string) error {
	if survivorID == "" || duplicateID == "" {
		return fmt.Errorf("curator: %w: survivor and duplicate ids required", domain.ErrValidation)
	}
	if survivorID == duplicateID {
		return fmt.Errorf("curator: %w: cannot merge an entity into itself", domain.ErrValidation)
	}

	dup, err := cu.store.GetEntity(ctx, duplicateID)
	if err != nil {
		return err
	}
	if !dup.Placeholder {
		return apierr.Conflict("duplicate_not_placeholder",
			"curator: %s is registry-identified and cannot be merged away", duplicateID)
	}

	if err := cu.store.MergeEntities(ctx, survivorID, duplicateID); err != nil {
		return err
	}
	cu.log.Info("Merged entities", "survivor_id", survivorID, "duplicate_id", duplicateID)
	return nil
}
