package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/alphaledger/internal/clientdata"
	"github.com/aristath/alphaledger/internal/domain"
)

// ReferenceDataService provides sector and annual-revenue lookups with
// caller-side TTL caching. nil results are valid, expected answers:
// producers treat unknown reference data as a neutral default rather than
// failing the signal set.
type ReferenceDataService struct {
	client domain.ReferenceDataClient // May be nil (cache-only operation)
	cache  *clientdata.Repository
	log    zerolog.Logger
}

// NewReferenceDataService creates a new reference data service.
func NewReferenceDataService(client domain.ReferenceDataClient, cache *clientdata.Repository, log zerolog.Logger) *ReferenceDataService {
	return &ReferenceDataService{
		client: client,
		cache:  cache,
		log:    log.With().Str("service", "refdata").Logger(),
	}
}

// GetSector returns the sector classification or nil when unknown.
func (s *ReferenceDataService) GetSector(ctx context.Context, instrumentID string) (*string, error) {
	raw, err := s.cache.GetIfFresh("refdata_sector", instrumentID)
	if err != nil {
		return nil, fmt.Errorf("sector cache lookup for %s: %w", instrumentID, err)
	}
	if raw != nil {
		var sector string
		if err := json.Unmarshal(raw, &sector); err == nil {
			if sector == "" {
				return nil, nil // Cached "unknown"
			}
			return &sector, nil
		}
	}

	if s.client == nil {
		return nil, nil
	}

	sector, err := s.client.GetSector(ctx, instrumentID)
	if err != nil {
		s.log.Warn().Err(err).Str("instrument", instrumentID).Msg("Sector lookup failed, treating as unknown")
		return nil, nil
	}

	// Cache the answer either way - a known-unknown stops repeat lookups.
	cached := ""
	if sector != nil {
		cached = *sector
	}
	if err := s.cache.Store("refdata_sector", instrumentID, cached, clientdata.TTLSector); err != nil {
		s.log.Warn().Err(err).Str("instrument", instrumentID).Msg("Failed to cache sector")
	}

	return sector, nil
}

// GetAnnualRevenue returns the latest annual revenue or nil when unknown.
func (s *ReferenceDataService) GetAnnualRevenue(ctx context.Context, instrumentID string) (*decimal.Decimal, error) {
	raw, err := s.cache.GetIfFresh("refdata_revenue", instrumentID)
	if err != nil {
		return nil, fmt.Errorf("revenue cache lookup for %s: %w", instrumentID, err)
	}
	if raw != nil {
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			if str == "" {
				return nil, nil // Cached "unknown"
			}
			if revenue, err := decimal.NewFromString(str); err == nil {
				return &revenue, nil
			}
		}
		s.log.Warn().Str("instrument", instrumentID).Msg("Corrupt cached revenue, refetching")
	}

	if s.client == nil {
		return nil, nil
	}

	revenue, err := s.client.GetAnnualRevenue(ctx, instrumentID)
	if err != nil {
		s.log.Warn().Err(err).Str("instrument", instrumentID).Msg("Revenue lookup failed, treating as unknown")
		return nil, nil
	}

	cached := ""
	if revenue != nil {
		cached = revenue.String()
	}
	if err := s.cache.Store("refdata_revenue", instrumentID, cached, clientdata.TTLAnnualRevenue); err != nil {
		s.log.Warn().Err(err).Str("instrument", instrumentID).Msg("Failed to cache revenue")
	}

	return revenue, nil
}
