package services

import (
	"context"
	"fmt"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
)

// Merger creates or updates OWNS edges idempotently: one edge per ordered
// pair, properties merged field by field, timestamps always refreshed.
type Merger struct {
	store EntityStore
	log   *logger.Logger
}

type MergeResult struct {
	Created bool             `json:"created"`
	Edge    domain.Ownership `json:"edge"`
}

func NewMerger(store EntityStore, log *logger.Logger) *Merger {
	return &Merger{store: store, log: log.With("service", "Merger")}
}

func (m *Merger) Merge(ctx context.Context, edge domain.Ownership) (MergeResult, error) {
	if edge.SourceID == "" || edge.TargetID == "" {
		return MergeResult{}, fmt.Errorf("merger: %w: source and target ids required", domain.ErrValidation)
	}
	if edge.SourceID == edge.TargetID {
		return MergeResult{}, fmt.Errorf("merger: %w: self-ownership %s -> %s rejected",
			domain.ErrValidation, edge.SourceID, edge.TargetID)
	}
	// Out-of-range percentages signal a unit or parsing error upstream;
	// reject instead of clamping.
	if edge.SharePct != nil && (*edge.SharePct < 0 || *edge.SharePct > 100) {
		return MergeResult{}, fmt.Errorf("merger: %w: share percentage %.2f outside [0, 100]",
			domain.ErrValidation, *edge.SharePct)
	}

	created, err := m.store.UpsertOwnership(ctx, edge)
	if err != nil {
		return MergeResult{}, err
	}

	m.log.Debug("Merged ownership edge",
		"source_id", edge.SourceID, "target_id", edge.TargetID, "created", created)
	return MergeResult{Created: created, Edge: edge}, nil
}
