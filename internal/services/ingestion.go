package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/platform/backoff"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
)

// Branch states within one ingestion run. Failed absorbs from any
// non-terminal state.
const (
	branchPending  = "pending"
	branchResolved = "resolved"
	branchExpanded = "expanded"
	branchDone     = "done"
	branchFailed   = "failed"
)

type IngestionConfig struct {
	MaxDepth    int
	Concurrency int
	Retry       backoff.Policy
}

func DefaultIngestionConfig() IngestionConfig {
	return IngestionConfig{MaxDepth: 3, Concurrency: 4, Retry: backoff.Default()}
}

// Orchestrator discovers and materializes ownership portfolios: resolve an
// entity, extract its portfolio, merge edges, expand breadth-first until
// max depth. All traversal state lives in a per-run context so concurrent
// runs for unrelated roots never interfere.
type Orchestrator struct {
	resolver   *Resolver
	merger     *Merger
	store      EntityStore
	extraction ExtractionClient
	cfg        IngestionConfig
	log        *logger.Logger
}

func NewOrchestrator(resolver *Resolver, merger *Merger, store EntityStore, extraction ExtractionClient, cfg IngestionConfig, log *logger.Logger) *Orchestrator {
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{
		resolver:   resolver,
		merger:     merger,
		store:      store,
		extraction: extraction,
		cfg:        cfg,
		log:        log.With("service", "Ingestion"),
	}
}

// workItem is one queue entry. Depth is tracked per entry so breadth-first
// expansion from the root is bounded uniformly.
type workItem struct {
	entity *domain.Entity
	depth  int
}

// ingestionRun holds the only shared mutable state of a run: the visited
// set (the cycle guard), the next frontier, and the counters.
type ingestionRun struct {
	mu        sync.Mutex
	visited   map[string]bool
	next      []workItem
	created   int
	touched   map[string]bool
	merged    int
	abandoned []domain.BranchFailure
}

// markVisited returns false when the id was already expanded in this run.
// This is the cycle guard: without it mutual ownership recurses forever.
func (run *ingestionRun) markVisited(id string) bool {
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.visited[id] {
		return false
	}
	run.visited[id] = true
	return true
}

func (run *ingestionRun) touch(id string, created bool) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.touched[id] = true
	if created {
		run.created++
	}
}

func (run *ingestionRun) countMerge() {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.merged++
}

func (run *ingestionRun) enqueue(item workItem) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.next = append(run.next, item)
}

func (run *ingestionRun) abandon(entityID, name, stage string, err error) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.abandoned = append(run.abandoned, domain.BranchFailure{
		EntityID: entityID,
		Name:     name,
		Stage:    stage,
		Reason:   err.Error(),
	})
}

func (run *ingestionRun) summary(rootID string) domain.IngestionSummary {
	run.mu.Lock()
	defer run.mu.Unlock()
	return domain.IngestionSummary{
		RootID:          rootID,
		EntitiesCreated: run.created,
		EntitiesTouched: len(run.touched),
		EdgesMerged:     run.merged,
		Abandoned:       run.abandoned,
	}
}

// Ingest runs one bounded portfolio discovery rooted at ref. It always
// returns a summary; branch failures are recorded in it rather than aborting
// the run. The returned error is non-nil only for root resolution failure or
// cancellation.
func (o *Orchestrator) Ingest(ctx context.Context, ref domain.Reference) (domain.IngestionSummary, error) {
	run := &ingestionRun{
		visited: make(map[string]bool),
		touched: make(map[string]bool),
	}

	root, outcome, err := o.resolveRootRetry(ctx, ref)
	if err != nil {
		return run.summary(""), fmt.Errorf("ingest root %q: %w", ref.Name, err)
	}
	run.touch(root.ID, outcome == domain.ResolutionCreated)

	o.log.Info("Ingestion run started",
		"root_id", root.ID, "max_depth", o.cfg.MaxDepth, "concurrency", o.cfg.Concurrency)

	frontier := []workItem{{entity: root, depth: 0}}
	for len(frontier) > 0 {
		// Cooperative cancellation between queue items; merged edges stay.
		if err := ctx.Err(); err != nil {
			o.log.Warn("Ingestion run cancelled", "root_id", root.ID)
			return run.summary(root.ID), err
		}

		var g errgroup.Group
		g.SetLimit(o.cfg.Concurrency)
		for _, item := range frontier {
			item := item
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return nil
				}
				o.expand(ctx, run, item)
				return nil
			})
		}
		_ = g.Wait()

		run.mu.Lock()
		frontier = run.next
		run.next = nil
		run.mu.Unlock()
	}

	o.linkInvestors(ctx, run, root)

	s := run.summary(root.ID)
	o.log.Info("Ingestion run finished",
		"root_id", root.ID,
		"entities_created", s.EntitiesCreated,
		"entities_touched", s.EntitiesTouched,
		"edges_merged", s.EdgesMerged,
		"abandoned", len(s.Abandoned))
	return s, nil
}

// expand processes one queue item: fetch the entity's portfolio, resolve and
// link every reference, enqueue children below the depth bound.
func (o *Orchestrator) expand(ctx context.Context, run *ingestionRun, item workItem) {
	entity := item.entity

	if !run.markVisited(entity.ID) {
		o.log.Debug("Cycle guard: already visited in this run, skipping", "entity_id", entity.ID)
		return
	}
	o.log.Debug("Branch resolved", "entity_id", entity.ID, "depth", item.depth, "state", branchResolved)

	refs, err := o.extractRetry(ctx, entity)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoFilings):
			o.log.Debug("No filings for entity", "entity_id", entity.ID)
		default:
			run.abandon(entity.ID, entity.Name, "extract", err)
			o.log.Warn("Branch abandoned: extraction failed",
				"entity_id", entity.ID, "state", branchFailed, "error", err)
		}
		return
	}
	if len(refs) == 0 {
		o.log.Debug("Empty portfolio", "entity_id", entity.ID, "state", branchDone)
		return
	}

	// An entity with a portfolio of its own acts as an investor.
	if entity.Type != domain.TypeFund {
		if err := o.store.PromoteToFund(ctx, entity.ID); err != nil {
			o.log.Warn("Fund promotion failed (continuing)", "entity_id", entity.ID, "error", err)
		}
	}

	for _, ref := range refs {
		if ref.Name == "" && ref.ExternalID == "" {
			continue
		}

		target, outcome, err := o.resolveRetry(ctx, domain.Reference{
			Name:       ref.Name,
			ExternalID: ref.ExternalID,
			TypeHint:   ref.TypeHint,
		})
		if err != nil {
			run.abandon(entity.ID, ref.Name, "resolve", err)
			continue
		}
		run.touch(target.ID, outcome == domain.ResolutionCreated)

		if target.ID == entity.ID {
			o.log.Debug("Skipping self-ownership reference", "entity_id", entity.ID)
			continue
		}

		edge := domain.Ownership{
			SourceID:   entity.ID,
			TargetID:   target.ID,
			SharePct:   ref.OwnershipPct,
			Provenance: domain.ProvenanceExtraction,
		}
		if err := o.mergeRetry(ctx, edge); err != nil {
			run.abandon(entity.ID, ref.Name, "merge", err)
			continue
		}
		run.countMerge()

		if item.depth+1 < o.cfg.MaxDepth {
			run.enqueue(workItem{entity: target, depth: item.depth + 1})
			o.log.Debug("Enqueued for expansion",
				"entity_id", target.ID, "depth", item.depth+1, "state", branchPending)
		}
	}
	o.log.Debug("Branch expanded", "entity_id", entity.ID, "references", len(refs),
		"state", branchExpanded+"->"+branchDone)
}

// linkInvestors runs owner discovery for the root: who holds equity in it.
// Investors hold portfolios by definition, so they are resolved as funds and
// linked investor->root. Discovery is best-effort; a failure abandons the
// branch without failing the run.
func (o *Orchestrator) linkInvestors(ctx context.Context, run *ingestionRun, root *domain.Entity) {
	if ctx.Err() != nil {
		return
	}

	refs, err := o.investorRetry(ctx, root)
	if err != nil {
		if errors.Is(err, domain.ErrNoFilings) {
			o.log.Debug("No investor disclosures for entity", "entity_id", root.ID)
			return
		}
		run.abandon(root.ID, root.Name, "investors", err)
		o.log.Warn("Investor discovery failed (continuing)",
			"entity_id", root.ID, "state", branchFailed, "error", err)
		return
	}

	for _, ref := range refs {
		if ref.Name == "" && ref.ExternalID == "" {
			continue
		}

		investor, outcome, err := o.resolveRetry(ctx, domain.Reference{
			Name:       ref.Name,
			ExternalID: ref.ExternalID,
			TypeHint:   domain.TypeFund,
		})
		if err != nil {
			run.abandon(root.ID, ref.Name, "resolve", err)
			continue
		}
		run.touch(investor.ID, outcome == domain.ResolutionCreated)

		if investor.ID == root.ID {
			o.log.Debug("Skipping self-ownership investor", "entity_id", root.ID)
			continue
		}

		// A previously known operating company appearing as an investor is
		// promoted, mirroring the portfolio side.
		if investor.Type != domain.TypeFund {
			if err := o.store.PromoteToFund(ctx, investor.ID); err != nil {
				o.log.Warn("Fund promotion failed (continuing)", "entity_id", investor.ID, "error", err)
			}
		}

		edge := domain.Ownership{
			SourceID:   investor.ID,
			TargetID:   root.ID,
			SharePct:   ref.OwnershipPct,
			Provenance: domain.ProvenanceExtraction,
		}
		if err := o.mergeRetry(ctx, edge); err != nil {
			run.abandon(root.ID, ref.Name, "merge", err)
			continue
		}
		run.countMerge()
	}
	o.log.Debug("Investor discovery finished", "entity_id", root.ID, "investors", len(refs))
}

// resolveRootRetry is the strict form used for the run root: an ambiguous
// name is an input error the caller must disambiguate, not something a
// background run may guess at.
func (o *Orchestrator) resolveRootRetry(ctx context.Context, ref domain.Reference) (*domain.Entity, domain.ResolutionOutcome, error) {
	var res domain.Resolution
	err := backoff.Retry(ctx, o.cfg.Retry, isRetryable, func(ctx context.Context) error {
		var err error
		res, err = o.resolver.Resolve(ctx, ref)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	if res.Outcome == domain.ResolutionAmbiguous {
		return nil, "", fmt.Errorf("%w: %q matches %d entities", domain.ErrAmbiguous, ref.Name, len(res.Candidates))
	}
	return res.Entity, res.Outcome, nil
}

func (o *Orchestrator) resolveRetry(ctx context.Context, ref domain.Reference) (*domain.Entity, domain.ResolutionOutcome, error) {
	var (
		entity  *domain.Entity
		outcome domain.ResolutionOutcome
	)
	err := backoff.Retry(ctx, o.cfg.Retry, isRetryable, func(ctx context.Context) error {
		var err error
		entity, outcome, err = o.resolver.ResolveWithPolicy(ctx, ref)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return entity, outcome, nil
}

func (o *Orchestrator) mergeRetry(ctx context.Context, edge domain.Ownership) error {
	return backoff.Retry(ctx, o.cfg.Retry, isRetryable, func(ctx context.Context) error {
		_, err := o.merger.Merge(ctx, edge)
		return err
	})
}

func (o *Orchestrator) extractRetry(ctx context.Context, entity *domain.Entity) ([]domain.PortfolioReference, error) {
	var refs []domain.PortfolioReference
	err := backoff.Retry(ctx, o.cfg.Retry, isRetryable, func(ctx context.Context) error {
		var err error
		refs, err = o.extraction.PortfolioReferences(ctx, entity)
		return err
	})
	return refs, err
}

func (o *Orchestrator) investorRetry(ctx context.Context, entity *domain.Entity) ([]domain.PortfolioReference, error) {
	var refs []domain.PortfolioReference
	err := backoff.Retry(ctx, o.cfg.Retry, isRetryable, func(ctx context.Context) error {
		var err error
		refs, err = o.extraction.InvestorReferences(ctx, entity)
		return err
	})
	return refs, err
}
