package services

import (
	"context"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
)

// EntityStore is the adapter over the external graph persistence layer.
// Implemented by data/graph.Store; faked in tests.
type EntityStore interface {
	UpsertEntity(ctx context.Context, e *domain.Entity) error
	GetEntity(ctx context.Context, id string) (*domain.Entity, error)
	FindByNormalizedName(ctx context.Context, normalized string) ([]*domain.Entity, error)
	PromoteToFund(ctx context.Context, id string) error

	UpsertOwnership(ctx context.Context, edge domain.Ownership) (created bool, err error)
	Portfolio(ctx context.Context, ownerID string) ([]domain.Holding, error)
	Owners(ctx context.Context, id string) ([]domain.Holding, error)
	Paths(ctx context.Context, rootID string, depth int) ([]domain.Path, error)

	EntitiesMissingEmbedding(ctx context.Context) ([]*domain.Entity, error)
	EntitiesInCluster(ctx context.Context, clusterID int64) ([]*domain.Entity, error)
	WriteEmbeddings(ctx context.Context, vectors map[string][]float32) error
	WriteClusterIDs(ctx context.Context, clusters map[string]int64) error

	MergeEntities(ctx context.Context, survivorID, duplicateID string) error
}

// ExtractionClient is the document-analysis collaborator: given an entity it
// returns candidate portfolio references extracted from its filings, and the
// investors it can discover holding equity in the entity.
type ExtractionClient interface {
	PortfolioReferences(ctx context.Context, entity *domain.Entity) ([]domain.PortfolioReference, error)
	InvestorReferences(ctx context.Context, entity *domain.Entity) ([]domain.PortfolioReference, error)
}

// EmbeddingClient turns descriptive entity text into vectors.
type EmbeddingClient interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// GraphAnalytics runs the kNN + community-detection pipeline on the analytics
// runtime and returns entity id -> cluster id.
type GraphAnalytics interface {
	SimilarityClusters(ctx context.Context, topK int) (map[string]int64, error)
}
