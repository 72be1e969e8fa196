package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/platform/envutil"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
)

// fiExtractionClient talks to the external document-analysis service that
// pulls an entity's filings and extracts candidate portfolio references.
// Single attempt per call; the orchestrator owns the retry policy.
type fiExtractionClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewExtractionClient(log *logger.Logger) (ExtractionClient, error) {
	baseURL := envutil.Str("EXTRACTION_BASE_URL", "")
	if baseURL == "" {
		return nil, fmt.Errorf("missing EXTRACTION_BASE_URL")
	}
	timeoutSec := envutil.Int("EXTRACTION_TIMEOUT_SECONDS", 120)

	return &fiExtractionClient{
		log:        log.With("service", "ExtractionClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     envutil.Str("EXTRACTION_API_KEY", ""),
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

type extractionRequest struct {
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
}

type extractionResponse struct {
	References []struct {
		Name                string   `json:"name"`
		ExternalID          string   `json:"external_id,omitempty"`
		OwnershipPercentage *float64 `json:"ownership_percentage,omitempty"`
		OwnershipType       string   `json:"ownership_type,omitempty"`
	} `json:"references"`
}

func (c *fiExtractionClient) PortfolioReferences(ctx context.Context, entity *domain.Entity) ([]domain.PortfolioReference, error) {
	if entity == nil {
		return nil, fmt.Errorf("extraction: %w: entity required", domain.ErrValidation)
	}
	// Filing registries are keyed by organization number; placeholders have
	// nothing to look up.
	if !domain.IsValidOrgNumber(entity.ID) {
		c.log.Debug("Skipping filings lookup for non-registry id", "entity_id", entity.ID)
		return nil, nil
	}
	return c.fetchReferences(ctx, "/v1/extract/portfolio", entity)
}

// InvestorReferences asks the collaborator who holds equity in the entity.
// Unlike the portfolio lookup this is name-driven on the far side, so it is
// not gated on a registry id.
func (c *fiExtractionClient) InvestorReferences(ctx context.Context, entity *domain.Entity) ([]domain.PortfolioReference, error) {
	if entity == nil {
		return nil, fmt.Errorf("extraction: %w: entity required", domain.ErrValidation)
	}
	return c.fetchReferences(ctx, "/v1/extract/investors", entity)
}

func (c *fiExtractionClient) fetchReferences(ctx context.Context, path string, entity *domain.Entity) ([]domain.PortfolioReference, error) {
	body := extractionRequest{OrganizationID: entity.ID, Name: entity.Name}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures are both retryable for the caller.
		return nil, fmt.Errorf("extraction: %w: %v", domain.ErrUnavailable, err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("extraction: %w: %v", domain.ErrUnavailable, readErr)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return nil, fmt.Errorf("extraction: entity %s: %w", entity.ID, domain.ErrNoFilings)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("extraction: entity %s: %w", entity.ID, domain.ErrMalformedDocument)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("extraction: %w: http %d: %s",
			domain.ErrUnavailable, resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed extractionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("extraction: entity %s: %w: %v", entity.ID, domain.ErrMalformedDocument, err)
	}

	refs := make([]domain.PortfolioReference, 0, len(parsed.References))
	for _, r := range parsed.References {
		name := strings.TrimSpace(r.Name)
		if name == "" && r.ExternalID == "" {
			continue
		}
		refs = append(refs, domain.PortfolioReference{
			Name:          name,
			ExternalID:    strings.TrimSpace(r.ExternalID),
			OwnershipPct:  r.OwnershipPercentage,
			OwnershipType: r.OwnershipType,
		})
	}
	c.log.Debug("Extracted ownership references", "entity_id", entity.ID, "path", path, "count", len(refs))
	return refs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (" + strconv.Itoa(len(s)) + " bytes)"
}
