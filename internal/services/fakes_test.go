package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
)

func testLogger() *logger.Logger {
	log, err := logger.New("test")
	if err != nil {
		panic(err)
	}
	return log
}

type edgeKey struct {
	source string
	target string
}

// fakeStore is an in-memory EntityStore. It is safe for concurrent use so
// the orchestrator can be exercised with a real worker pool. Individual
// operations can be failed via the err* hooks.
type fakeStore struct {
	mu       sync.Mutex
	entities map[string]*domain.Entity
	edges    map[edgeKey]domain.Ownership
	paths    []domain.Path

	errUpsertEntity    error
	errUpsertOwnership error
	errGetEntity       map[string]error
}

func newFakeStore(seed ...*domain.Entity) *fakeStore {
	s := &fakeStore{
		entities: make(map[string]*domain.Entity),
		edges:    make(map[edgeKey]domain.Ownership),
	}
	for _, e := range seed {
		cp := *e
		s.entities[e.ID] = &cp
	}
	return s
}

func (s *fakeStore) UpsertEntity(_ context.Context, e *domain.Entity) error {
	if s.errUpsertEntity != nil {
		return s.errUpsertEntity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entities[e.ID] = &cp
	return nil
}

func (s *fakeStore) GetEntity(_ context.Context, id string) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errGetEntity[id]; ok {
		return nil, err
	}
	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("fake store: entity %s: %w", id, domain.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (s *fakeStore) FindByNormalizedName(_ context.Context, normalized string) ([]*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Entity
	for _, e := range s.entities {
		if domain.NormalizeName(e.Name) == normalized {
			cp := *e
			out = append(out, &cp)
			continue
		}
		for _, alias := range e.Aliases {
			if domain.NormalizeName(alias) == normalized {
				cp := *e
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) PromoteToFund(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return fmt.Errorf("fake store: entity %s: %w", id, domain.ErrNotFound)
	}
	e.Type = domain.TypeFund
	return nil
}

func (s *fakeStore) UpsertOwnership(_ context.Context, edge domain.Ownership) (bool, error) {
	if s.errUpsertOwnership != nil {
		return false, s.errUpsertOwnership
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := edgeKey{source: edge.SourceID, target: edge.TargetID}
	existing, ok := s.edges[key]
	if !ok {
		s.edges[key] = edge
		return true, nil
	}
	if edge.SharePct != nil {
		existing.SharePct = edge.SharePct
	}
	if edge.Amount != nil {
		existing.Amount = edge.Amount
	}
	if edge.Provenance != "" {
		existing.Provenance = edge.Provenance
	}
	s.edges[key] = existing
	return false, nil
}

func (s *fakeStore) Portfolio(_ context.Context, ownerID string) ([]domain.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Holding
	for key, edge := range s.edges {
		if key.source != ownerID {
			continue
		}
		target, ok := s.entities[key.target]
		if !ok {
			continue
		}
		cp := *target
		out = append(out, domain.Holding{Entity: &cp, SharePct: edge.SharePct, Amount: edge.Amount})
	}
	return out, nil
}

func (s *fakeStore) Owners(_ context.Context, id string) ([]domain.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Holding
	for key, edge := range s.edges {
		if key.target != id {
			continue
		}
		source, ok := s.entities[key.source]
		if !ok {
			continue
		}
		cp := *source
		out = append(out, domain.Holding{Entity: &cp, SharePct: edge.SharePct, Amount: edge.Amount})
	}
	return out, nil
}

func (s *fakeStore) Paths(_ context.Context, _ string, _ int) ([]domain.Path, error) {
	return s.paths, nil
}

func (s *fakeStore) EntitiesMissingEmbedding(_ context.Context) ([]*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Entity
	for _, e := range s.entities {
		if e.Embedding == nil {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) EntitiesInCluster(_ context.Context, clusterID int64) ([]*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Entity
	for _, e := range s.entities {
		if e.ClusterID != nil && *e.ClusterID == clusterID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) WriteEmbeddings(_ context.Context, vectors map[string][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, vec := range vectors {
		if e, ok := s.entities[id]; ok {
			e.Embedding = vec
		}
	}
	return nil
}

func (s *fakeStore) WriteClusterIDs(_ context.Context, clusters map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cid := range clusters {
		if e, ok := s.entities[id]; ok {
			c := cid
			e.ClusterID = &c
		}
	}
	return nil
}

func (s *fakeStore) MergeEntities(_ context.Context, survivorID, duplicateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[survivorID]; !ok {
		return fmt.Errorf("fake store: entity %s: %w", survivorID, domain.ErrNotFound)
	}
	if _, ok := s.entities[duplicateID]; !ok {
		return fmt.Errorf("fake store: entity %s: %w", duplicateID, domain.ErrNotFound)
	}
	for key, edge := range s.edges {
		if key.source != duplicateID && key.target != duplicateID {
			continue
		}
		delete(s.edges, key)
		if key.source == duplicateID {
			key.source = survivorID
			edge.SourceID = survivorID
		}
		if key.target == duplicateID {
			key.target = survivorID
			edge.TargetID = survivorID
		}
		if key.source == key.target {
			continue
		}
		if _, exists := s.edges[key]; !exists {
			s.edges[key] = edge
		}
	}
	delete(s.entities, duplicateID)
	return nil
}

func (s *fakeStore) edgeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edges)
}

func (s *fakeStore) edge(source, target string) (domain.Ownership, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[edgeKey{source: source, target: target}]
	return e, ok
}

func (s *fakeStore) entity(id string) (*domain.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// fakeExtraction serves scripted portfolios and investors keyed by entity id.
type fakeExtraction struct {
	mu            sync.Mutex
	portfolios    map[string][]domain.PortfolioReference
	investors     map[string][]domain.PortfolioReference
	errs          map[string]error
	investorErrs  map[string]error
	calls         map[string]int
	investorCalls map[string]int
}

func newFakeExtraction() *fakeExtraction {
	return &fakeExtraction{
		portfolios:    make(map[string][]domain.PortfolioReference),
		investors:     make(map[string][]domain.PortfolioReference),
		errs:          make(map[string]error),
		investorErrs:  make(map[string]error),
		calls:         make(map[string]int),
		investorCalls: make(map[string]int),
	}
}

func (f *fakeExtraction) PortfolioReferences(_ context.Context, entity *domain.Entity) ([]domain.PortfolioReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[entity.ID]++
	if err, ok := f.errs[entity.ID]; ok {
		return nil, err
	}
	refs, ok := f.portfolios[entity.ID]
	if !ok {
		return nil, fmt.Errorf("fake extraction: %s: %w", entity.ID, domain.ErrNoFilings)
	}
	return refs, nil
}

func (f *fakeExtraction) InvestorReferences(_ context.Context, entity *domain.Entity) ([]domain.PortfolioReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.investorCalls[entity.ID]++
	if err, ok := f.investorErrs[entity.ID]; ok {
		return nil, err
	}
	refs, ok := f.investors[entity.ID]
	if !ok {
		return nil, fmt.Errorf("fake extraction: %s: %w", entity.ID, domain.ErrNoFilings)
	}
	return refs, nil
}

// fakeEmbedding returns a deterministic vector per input and records batches.
type fakeEmbedding struct {
	batches [][]string
	err     error
}

func (f *fakeEmbedding) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, inputs)
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(len(inputs[i])), 1}
	}
	return out, nil
}

// fakeAnalytics returns a scripted entity id -> cluster id mapping.
type fakeAnalytics struct {
	clusters map[string]int64
	err      error
}

func (f *fakeAnalytics) SimilarityClusters(_ context.Context, _ int) (map[string]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.clusters, nil
}

func pct(v float64) *float64 { return &v }
