package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/northernlights-labs/ownership-graph/internal/domain"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
)

// Resolver maps loosely-identified references onto canonical graph nodes.
// Resolve is read-only except when it has to create a placeholder; the
// Ambiguous outcome leaves the decision to the caller.
type Resolver struct {
	store EntityStore
	log   *logger.Logger
}

func NewResolver(store EntityStore, log *logger.Logger) *Resolver {
	return &Resolver{store: store, log: log.With("service", "Resolver")}
}

func (r *Resolver) Resolve(ctx context.Context, ref domain.Reference) (domain.Resolution, error) {
	if strings.TrimSpace(ref.Name) == "" && strings.TrimSpace(ref.ExternalID) == "" {
		return domain.Resolution{}, fmt.Errorf("resolver: %w: reference needs a name or an external id", domain.ErrValidation)
	}

	if id := strings.TrimSpace(ref.ExternalID); id != "" {
		id = domain.FormatOrgNumber(id)
		entity, err := r.store.GetEntity(ctx, id)
		if err == nil {
			return domain.Resolution{Outcome: domain.ResolutionFound, Entity: entity}, nil
		}
		if !isNotFound(err) {
			return domain.Resolution{}, err
		}
	}

	if name := strings.TrimSpace(ref.Name); name != "" {
		candidates, err := r.store.FindByNormalizedName(ctx, domain.NormalizeName(name))
		if err != nil {
			return domain.Resolution{}, err
		}
		switch len(candidates) {
		case 0:
			// fall through to creation
		case 1:
			return domain.Resolution{Outcome: domain.ResolutionFound, Entity: candidates[0]}, nil
		default:
			return domain.Resolution{Outcome: domain.ResolutionAmbiguous, Candidates: candidates}, nil
		}
	}

	entity, err := r.create(ctx, ref)
	if err != nil {
		return domain.Resolution{}, err
	}
	return domain.Resolution{Outcome: domain.ResolutionCreated, Entity: entity}, nil
}

// ResolveWithPolicy resolves and applies the default disambiguation policy:
// a single non-placeholder candidate wins; anything murkier gets a fresh
// placeholder rather than a guess.
func (r *Resolver) ResolveWithPolicy(ctx context.Context, ref domain.Reference) (*domain.Entity, domain.ResolutionOutcome, error) {
	res, err := r.Resolve(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	if res.Outcome != domain.ResolutionAmbiguous {
		return res.Entity, res.Outcome, nil
	}

	var settled *domain.Entity
	for _, c := range res.Candidates {
		if c.Placeholder {
			continue
		}
		if settled != nil {
			settled = nil
			break
		}
		settled = c
	}
	if settled != nil {
		r.log.Debug("Ambiguous reference settled on non-placeholder candidate",
			"name", ref.Name, "entity_id", settled.ID, "candidates", len(res.Candidates))
		return settled, domain.ResolutionFound, nil
	}

	r.log.Info("Ambiguous reference, creating placeholder instead of guessing",
		"name", ref.Name, "candidates", len(res.Candidates))
	entity, err := r.create(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	return entity, domain.ResolutionCreated, nil
}

func (r *Resolver) create(ctx context.Context, ref domain.Reference) (*domain.Entity, error) {
	entityType := ref.TypeHint
	if entityType == domain.TypeUnknown {
		entityType = domain.TypeCompany
	}

	id := strings.TrimSpace(ref.ExternalID)
	placeholder := false
	if id != "" && domain.IsValidOrgNumber(id) {
		id = domain.FormatOrgNumber(id)
	} else if id == "" {
		id = domain.PlaceholderPrefix + uuid.NewString()
		placeholder = true
	} else {
		// An id that is not a registry number is treated as unverified.
		placeholder = true
	}

	name := strings.TrimSpace(ref.Name)
	if name == "" {
		name = id
	}

	entity := &domain.Entity{
		ID:          id,
		Name:        name,
		Type:        entityType,
		CountryCode: "SE",
		Placeholder: placeholder,
	}
	if err := r.store.UpsertEntity(ctx, entity); err != nil {
		return nil, err
	}
	r.log.Info("Created entity", "entity_id", id, "name", name, "placeholder", placeholder)
	return entity, nil
}
