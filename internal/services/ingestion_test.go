package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/platform/backoff"
)

func testIngestionConfig() IngestionConfig {
	return IngestionConfig{
		MaxDepth:    3,
		Concurrency: 4,
		Retry:       backoff.Policy{MaxRetries: 0, Initial: time.Millisecond, Max: time.Millisecond},
	}
}

func newTestOrchestrator(store *fakeStore, extraction *fakeExtraction, cfg IngestionConfig) *Orchestrator {
	log := testLogger()
	return NewOrchestrator(NewResolver(store, log), NewMerger(store, log), store, extraction, cfg, log)
}

func TestIngestExpandsRootPortfolio(t *testing.T) {
	store := newFakeStore(&domain.Entity{ID: "556013-8298", Name: "Investor AB", Type: domain.TypeCompany})
	extraction := newFakeExtraction()
	extraction.portfolios["556013-8298"] = []domain.PortfolioReference{
		{Name: "Ericsson AB", ExternalID: "556016-0680", OwnershipPct: pct(22.0)},
	}

	o := newTestOrchestrator(store, extraction, testIngestionConfig())
	summary, err := o.Ingest(context.Background(), domain.Reference{ExternalID: "556013-8298"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if summary.RootID != "556013-8298" {
		t.Fatalf("root id = %s", summary.RootID)
	}
	if summary.EdgesMerged != 1 {
		t.Fatalf("edges merged = %d, want 1", summary.EdgesMerged)
	}
	if summary.EntitiesCreated != 1 {
		t.Fatalf("entities created = %d, want 1 (Ericsson)", summary.EntitiesCreated)
	}

	edge, ok := store.edge("556013-8298", "556016-0680")
	if !ok {
		t.Fatalf("ownership edge not merged")
	}
	if edge.SharePct == nil || *edge.SharePct != 22.0 {
		t.Fatalf("share pct = %v, want 22.0", edge.SharePct)
	}
	if edge.Provenance != domain.ProvenanceExtraction {
		t.Fatalf("provenance = %s", edge.Provenance)
	}

	// Holding a portfolio makes the root an investor.
	investor, _ := store.entity("556013-8298")
	if investor.Type != domain.TypeFund {
		t.Fatalf("root type = %s, want Fund after promotion", investor.Type)
	}
	ericsson, ok := store.entity("556016-0680")
	if !ok {
		t.Fatalf("Ericsson not created")
	}
	if ericsson.Placeholder {
		t.Fatalf("registry-identified target must not be a placeholder")
	}
}

func TestIngestLinksDiscoveredInvestors(t *testing.T) {
	store := newFakeStore(&domain.Entity{ID: "556016-0680", Name: "Ericsson AB", Type: domain.TypeCompany})
	extraction := newFakeExtraction()
	extraction.investors["556016-0680"] = []domain.PortfolioReference{
		{Name: "Investor AB", ExternalID: "556013-8298", OwnershipPct: pct(22.0)},
	}

	o := newTestOrchestrator(store, extraction, testIngestionConfig())
	summary, err := o.Ingest(context.Background(), domain.Reference{ExternalID: "556016-0680"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// The shareholder owns the root, so the edge points investor -> root.
	edge, ok := store.edge("556013-8298", "556016-0680")
	if !ok {
		t.Fatalf("investor edge not merged; edges in store: %d", store.edgeCount())
	}
	if edge.SharePct == nil || *edge.SharePct != 22.0 {
		t.Fatalf("share pct = %v, want 22.0", edge.SharePct)
	}
	if _, ok := store.edge("556016-0680", "556013-8298"); ok {
		t.Fatalf("root must not own its investor")
	}
	if summary.EdgesMerged != 1 {
		t.Fatalf("edges merged = %d, want 1", summary.EdgesMerged)
	}

	investor, ok := store.entity("556013-8298")
	if !ok {
		t.Fatalf("investor not created")
	}
	if investor.Type != domain.TypeFund {
		t.Fatalf("investor type = %s, want Fund", investor.Type)
	}
	// The root holds no portfolio of its own and stays a company.
	root, _ := store.entity("556016-0680")
	if root.Type != domain.TypeCompany {
		t.Fatalf("root type = %s, want Company", root.Type)
	}

	q := NewQuery(store, testLogger())
	holdings, err := q.Portfolio(context.Background(), "556013-8298")
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if len(holdings) != 1 || holdings[0].Entity.ID != "556016-0680" {
		t.Fatalf("investor portfolio = %+v, want the root", holdings)
	}
}

func TestIngestInvestorDiscoveryFailureDoesNotFailRun(t *testing.T) {
	store := newFakeStore(&domain.Entity{ID: "556016-0680", Name: "Ericsson AB"})
	extraction := newFakeExtraction()
	extraction.investorErrs["556016-0680"] = domain.ErrUnavailable

	o := newTestOrchestrator(store, extraction, testIngestionConfig())
	summary, err := o.Ingest(context.Background(), domain.Reference{ExternalID: "556016-0680"})
	if err != nil {
		t.Fatalf("investor discovery failure must not fail the run: %v", err)
	}
	if len(summary.Abandoned) != 1 {
		t.Fatalf("abandoned = %d, want 1", len(summary.Abandoned))
	}
	failure := summary.Abandoned[0]
	if failure.EntityID != "556016-0680" || failure.Stage != "investors" {
		t.Fatalf("unexpected abandoned branch: %+v", failure)
	}
}

func TestIngestSkipsSelfInvestor(t *testing.T) {
	store := newFakeStore(&domain.Entity{ID: "556000-0001", Name: "Self AB"})
	extraction := newFakeExtraction()
	extraction.investors["556000-0001"] = []domain.PortfolioReference{
		{Name: "Self AB", ExternalID: "556000-0001", OwnershipPct: pct(11)},
	}

	o := newTestOrchestrator(store, extraction, testIngestionConfig())
	summary, err := o.Ingest(context.Background(), domain.Reference{ExternalID: "556000-0001"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if summary.EdgesMerged != 0 || store.edgeCount() != 0 {
		t.Fatalf("self-investor must not produce an edge")
	}
}

func TestIngestTerminatesOnMutualOwnership(t *testing.T) {
	store := newFakeStore(
		&domain.Entity{ID: "556000-0001", Name: "Alfa Holding AB"},
		&domain.Entity{ID: "556000-0002", Name: "Beta Holding AB"},
	)
	extraction := newFakeExtraction()
	extraction.portfolios["556000-0001"] = []domain.PortfolioReference{
		{Name: "Beta Holding AB", ExternalID: "556000-0002", OwnershipPct: pct(30)},
	}
	extraction.portfolios["556000-0002"] = []domain.PortfolioReference{
		{Name: "Alfa Holding AB", ExternalID: "556000-0001", OwnershipPct: pct(25)},
	}

	cfg := testIngestionConfig()
	cfg.MaxDepth = 10
	o := newTestOrchestrator(store, extraction, cfg)

	summary, err := o.Ingest(context.Background(), domain.Reference{ExternalID: "556000-0001"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if got := store.edgeCount(); got != 2 {
		t.Fatalf("edge count = %d, want exactly 2 for a mutual pair", got)
	}
	if summary.EdgesMerged != 2 {
		t.Fatalf("edges merged = %d, want 2", summary.EdgesMerged)
	}
	// Each side is expanded exactly once; the cycle guard stops the second visit.
	if extraction.calls["556000-0001"] != 1 || extraction.calls["556000-0002"] != 1 {
		t.Fatalf("extraction calls = %v, want one per entity", extraction.calls)
	}
}

func TestIngestRespectsDepthBound(t *testing.T) {
	store := newFakeStore(&domain.Entity{ID: "556000-0001", Name: "Root AB"})
	extraction := newFakeExtraction()
	extraction.portfolios["556000-0001"] = []domain.PortfolioReference{
		{Name: "Level One AB", ExternalID: "556000-0002"},
	}
	extraction.portfolios["556000-0002"] = []domain.PortfolioReference{
		{Name: "Level Two AB", ExternalID: "556000-0003"},
	}
	extraction.portfolios["556000-0003"] = []domain.PortfolioReference{
		{Name: "Level Three AB", ExternalID: "556000-0004"},
	}

	cfg := testIngestionConfig()
	cfg.MaxDepth = 2
	o := newTestOrchestrator(store, extraction, cfg)

	summary, err := o.Ingest(context.Background(), domain.Reference{ExternalID: "556000-0001"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// Depth 2 expands the root and its direct children, nothing further.
	if summary.EdgesMerged != 2 {
		t.Fatalf("edges merged = %d, want 2", summary.EdgesMerged)
	}
	if _, ok := store.edge("556000-0003", "556000-0004"); ok {
		t.Fatalf("edge beyond the depth bound must not be merged")
	}
	if extraction.calls["556000-0003"] != 0 {
		t.Fatalf("entity beyond the depth bound must not be expanded")
	}
	// The leaf is still created as a node, it is just not expanded.
	if _, ok := store.entity("556000-0003"); !ok {
		t.Fatalf("boundary entity should exist")
	}
}

func TestIngestAbandonsFailedBranchAndCompletes(t *testing.T) {
	store := newFakeStore(&domain.Entity{ID: "556000-0001", Name: "Root AB"})
	extraction := newFakeExtraction()
	extraction.portfolios["556000-0001"] = []domain.PortfolioReference{
		{Name: "Healthy AB", ExternalID: "556000-0002"},
		{Name: "Broken AB", ExternalID: "556000-0003"},
	}
	extraction.portfolios["556000-0002"] = []domain.PortfolioReference{}
	extraction.errs["556000-0003"] = domain.ErrMalformedDocument

	o := newTestOrchestrator(store, extraction, testIngestionConfig())
	summary, err := o.Ingest(context.Background(), domain.Reference{ExternalID: "556000-0001"})
	if err != nil {
		t.Fatalf("a branch failure must not fail the run: %v", err)
	}

	if summary.EdgesMerged != 2 {
		t.Fatalf("edges merged = %d, want 2", summary.EdgesMerged)
	}
	if len(summary.Abandoned) != 1 {
		t.Fatalf("abandoned = %d, want 1", len(summary.Abandoned))
	}
	failure := summary.Abandoned[0]
	if failure.EntityID != "556000-0003" || failure.Stage != "extract" {
		t.Fatalf("unexpected abandoned branch: %+v", failure)
	}
}

func TestIngestNoFilingsIsNotAFailure(t *testing.T) {
	store := newFakeStore(&domain.Entity{ID: "556000-0001", Name: "Quiet AB"})
	extraction := newFakeExtraction() // no scripted portfolio -> ErrNoFilings

	o := newTestOrchestrator(store, extraction, testIngestionConfig())
	summary, err := o.Ingest(context.Background(), domain.Reference{ExternalID: "556000-0001"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(summary.Abandoned) != 0 {
		t.Fatalf("no filings must not count as an abandoned branch: %+v", summary.Abandoned)
	}
	if summary.EntitiesTouched != 1 {
		t.Fatalf("entities touched = %d, want 1", summary.EntitiesTouched)
	}
}

func TestIngestSkipsSelfOwnershipReference(t *testing.T) {
	store := newFakeStore(&domain.Entity{ID: "556000-0001", Name: "Self AB"})
	extraction := newFakeExtraction()
	extraction.portfolios["556000-0001"] = []domain.PortfolioReference{
		{Name: "Self AB", ExternalID: "556000-0001", OwnershipPct: pct(100)},
	}

	o := newTestOrchestrator(store, extraction, testIngestionConfig())
	summary, err := o.Ingest(context.Background(), domain.Reference{ExternalID: "556000-0001"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if summary.EdgesMerged != 0 {
		t.Fatalf("self-reference must not produce an edge, merged %d", summary.EdgesMerged)
	}
	if got := store.edgeCount(); got != 0 {
		t.Fatalf("store has %d edges, want 0", got)
	}
}

func TestIngestCommonInvestorScenario(t *testing.T) {
	store := newFakeStore(&domain.Entity{ID: "556100-0001", Name: "Norrsken Fond AB", Type: domain.TypeFund})
	extraction := newFakeExtraction()
	extraction.portfolios["556100-0001"] = []domain.PortfolioReference{
		{Name: "Gamma Tech AB", ExternalID: "556100-0002", OwnershipPct: pct(15)},
		{Name: "Delta Energi AB", ExternalID: "556100-0003", OwnershipPct: pct(40)},
	}

	o := newTestOrchestrator(store, extraction, testIngestionConfig())
	if _, err := o.Ingest(context.Background(), domain.Reference{ExternalID: "556100-0001"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	q := NewQuery(store, testLogger())
	holdings, err := q.Portfolio(context.Background(), "556100-0001")
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if len(holdings) != 2 {
		t.Fatalf("portfolio size = %d, want 2", len(holdings))
	}
	seen := map[string]bool{}
	for _, h := range holdings {
		seen[h.Entity.ID] = true
	}
	if !seen["556100-0002"] || !seen["556100-0003"] {
		t.Fatalf("portfolio missing companies: %v", seen)
	}
}

func TestIngestFailsFastOnUnresolvableRoot(t *testing.T) {
	store := newFakeStore()
	store.errUpsertEntity = domain.ErrUnavailable

	o := newTestOrchestrator(store, newFakeExtraction(), testIngestionConfig())
	_, err := o.Ingest(context.Background(), domain.Reference{Name: "Nowhere AB"})
	if err == nil {
		t.Fatalf("root resolution failure must fail the run")
	}
}

func TestIngestRejectsAmbiguousRoot(t *testing.T) {
	store := newFakeStore(
		&domain.Entity{ID: "556200-0001", Name: "Nordic Capital AB"},
		&domain.Entity{ID: "556200-0002", Name: "Nordic Capital"},
	)

	o := newTestOrchestrator(store, newFakeExtraction(), testIngestionConfig())
	_, err := o.Ingest(context.Background(), domain.Reference{Name: "Nordic Capital"})
	if !errors.Is(err, domain.ErrAmbiguous) {
		t.Fatalf("err = %v, want ErrAmbiguous", err)
	}
	// No guessed node and no edges.
	if store.edgeCount() != 0 {
		t.Fatalf("ambiguous root must not merge edges")
	}
}
