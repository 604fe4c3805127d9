// Package resolve maps a postal code onto the regulated water systems that
// serve it, walking a fallback chain from explicit curated mappings down to
// loosened reference-directory searches.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tapsafe/chlorine-data-service/internal/domain"
	"github.com/tapsafe/chlorine-data-service/internal/observability"
)

// Population floors for the exact-match and loosened fallback stages.
const (
	exactMatchMinPopulation = 1000
	loosenedMinPopulation   = 100
	sameCityLimit           = 5
)

// SystemFilter narrows a reference-directory search. Zero values impose no
// constraint.
type SystemFilter struct {
	MinPopulation  int
	MunicipalOnly  bool
	CommunityOnly  bool
	ActiveOnly     bool
	OrderByPopDesc bool
	Limit          int
}

// Store is the slice of the record store the resolver reads.
type Store interface {
	MappingsForPostalCode(ctx context.Context, zip string) ([]domain.PostalMapping, error)
	CuratedByPWSID(ctx context.Context, pwsid string) (domain.CuratedUtility, error)
	SystemsByPostalCode(ctx context.Context, zip string, f SystemFilter) ([]domain.RegulatedSystem, error)
	SystemsByCity(ctx context.Context, city, state string, f SystemFilter) ([]domain.RegulatedSystem, error)
}

// Resolver runs the postal-code fallback chain.
type Resolver struct {
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

func New(store Store, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{store: store, logger: logger, metrics: metrics}
}

// Resolve returns the ordered candidate utilities for a postal code. A code
// with no reference data anywhere yields an empty slice, not an error.
func (r *Resolver) Resolve(ctx context.Context, zip string) ([]domain.Utility, error) {
	start := time.Now()
	defer func() {
		r.metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	}()

	// Explicit curated mappings always run and are unioned into the result.
	curated, err := r.mappedUtilities(ctx, zip)
	if err != nil {
		return nil, err
	}

	reference, stage, err := r.referenceChain(ctx, zip)
	if err != nil {
		return nil, err
	}

	results := merge(curated, reference)
	if len(results) == 0 {
		stage = "none"
	} else if len(reference) == 0 {
		stage = "mapping"
	}
	r.metrics.ResolveRequests.WithLabelValues(stage).Inc()

	r.logger.Debug("resolved postal code",
		"zip", zip, "stage", stage, "candidates", len(results))
	return results, nil
}

// mappedUtilities resolves PostalMapping rows to curated utilities. A
// mapping pointing at a missing curated row is logged and skipped.
func (r *Resolver) mappedUtilities(ctx context.Context, zip string) ([]domain.Utility, error) {
	mappings, err := r.store.MappingsForPostalCode(ctx, zip)
	if err != nil {
		return nil, fmt.Errorf("postal mappings for %s: %w", zip, err)
	}

	var out []domain.Utility
	for _, m := range mappings {
		cu, err := r.store.CuratedByPWSID(ctx, m.PWSID)
		if errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("postal mapping points at missing curated utility",
				"zip", zip, "pwsid", m.PWSID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("curated utility %s: %w", m.PWSID, err)
		}
		out = append(out, domain.NormalizeCurated(cu))
	}
	return out, nil
}

// referenceChain runs stages 2–4 against the reference directory, each only
// when the previous stage produced nothing.
func (r *Resolver) referenceChain(ctx context.Context, zip string) ([]domain.Utility, string, error) {
	systems, err := r.store.SystemsByPostalCode(ctx, zip, SystemFilter{
		MinPopulation: exactMatchMinPopulation,
		MunicipalOnly: true,
		CommunityOnly: true,
		ActiveOnly:    true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("exact postal match for %s: %w", zip, err)
	}
	if len(systems) > 0 {
		return normalizeAll(systems), "exact", nil
	}

	systems, err = r.sameCityFallback(ctx, zip)
	if err != nil {
		return nil, "", err
	}
	if len(systems) > 0 {
		return normalizeAll(systems), "same_city", nil
	}

	systems, err = r.store.SystemsByPostalCode(ctx, zip, SystemFilter{
		MinPopulation: loosenedMinPopulation,
		CommunityOnly: true,
		ActiveOnly:    true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("loosened postal match for %s: %w", zip, err)
	}
	// Without the ownership restriction in the query, prefer municipal
	// systems locally before falling back to sheer size.
	sort.SliceStable(systems, func(i, j int) bool {
		oi, oj := ownershipRank(domain.DecodeOwnership(systems[i].OwnerTypeCode)), ownershipRank(domain.DecodeOwnership(systems[j].OwnerTypeCode))
		if oi != oj {
			return oi < oj
		}
		return systems[i].PopulationServed > systems[j].PopulationServed
	})
	return normalizeAll(systems), "loosened", nil
}

// sameCityFallback locates the city of any system matching the postal code,
// then searches that city for qualifying systems by population.
func (r *Resolver) sameCityFallback(ctx context.Context, zip string) ([]domain.RegulatedSystem, error) {
	probe, err := r.store.SystemsByPostalCode(ctx, zip, SystemFilter{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("city lookup for %s: %w", zip, err)
	}
	if len(probe) == 0 || probe[0].City == "" {
		return nil, nil
	}

	systems, err := r.store.SystemsByCity(ctx, probe[0].City, probe[0].StateCode, SystemFilter{
		MunicipalOnly:  true,
		CommunityOnly:  true,
		ActiveOnly:     true,
		OrderByPopDesc: true,
		Limit:          sameCityLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("same-city search %s, %s: %w", probe[0].City, probe[0].StateCode, err)
	}
	return systems, nil
}

// merge de-duplicates by PWSID (curated wins), drops inactive records, and
// applies the terminal ordering: curated before reference, municipal before
// private, population descending. Ties preserve discovery order.
func merge(curated, reference []domain.Utility) []domain.Utility {
	seen := make(map[string]bool, len(curated))
	var out []domain.Utility
	for _, u := range curated {
		if seen[u.PWSID] || !u.Active {
			continue
		}
		seen[u.PWSID] = true
		out = append(out, u)
	}
	for _, u := range reference {
		if seen[u.PWSID] || !u.Active {
			continue
		}
		seen[u.PWSID] = true
		out = append(out, u)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source == domain.SourceCurated
		}
		oi, oj := ownershipRank(out[i].Ownership), ownershipRank(out[j].Ownership)
		if oi != oj {
			return oi < oj
		}
		return out[i].PopulationServed > out[j].PopulationServed
	})
	return out
}

func normalizeAll(systems []domain.RegulatedSystem) []domain.Utility {
	out := make([]domain.Utility, 0, len(systems))
	for _, s := range systems {
		out = append(out, domain.NormalizeReference(s))
	}
	return out
}

func ownershipRank(o domain.Ownership) int {
	switch o {
	case domain.OwnershipMunicipal:
		return 0
	case domain.OwnershipPrivate:
		return 1
	default:
		return 2
	}
}
