// Package services provides core business services shared across multiple modules.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/alphaledger/internal/clientdata"
	"github.com/aristath/alphaledger/internal/domain"
)

// barBlob is the JSON cache representation of one daily bar.
type barBlob struct {
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Timestamp int64   `json:"t"` // Unix seconds
}

// PriceService provides daily bars and current prices with cache-first
// behavior over the client_data TTL cache:
// 1. Fresh cache entry
// 2. Market data client (batched for bars)
// 3. For current prices: stale cache as last resort
// A nil price result is a valid answer meaning "unavailable".
type PriceService struct {
	client domain.MarketDataClient // May be nil (cache-only operation)
	cache  *clientdata.Repository
	log    zerolog.Logger
}

// NewPriceService creates a new price service.
func NewPriceService(client domain.MarketDataClient, cache *clientdata.Repository, log zerolog.Logger) *PriceService {
	return &PriceService{
		client: client,
		cache:  cache,
		log:    log.With().Str("service", "prices").Logger(),
	}
}

// GetDailyBars returns daily bars for all requested instruments, fetching
// cache misses from the market data client in ONE batched call.
// Instruments with no bar history are absent from the result map - that is
// a per-instrument data condition, not an error.
func (s *PriceService) GetDailyBars(ctx context.Context, instrumentIDs []string, start, end time.Time) (map[string][]domain.PriceBar, error) {
	result := make(map[string][]domain.PriceBar, len(instrumentIDs))
	var misses []string

	for _, id := range instrumentIDs {
		bars, ok := s.cachedBars(id)
		if ok {
			result[id] = bars
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) == 0 || s.client == nil {
		if len(misses) > 0 {
			s.log.Debug().Int("misses", len(misses)).Msg("No market data client, bars limited to cache")
		}
		return result, nil
	}

	fetched, err := s.client.GetDailyBars(ctx, misses, start, end)
	if err != nil {
		// Bars feed the volatility estimate; the sizer has a documented
		// fallback, so a batch failure degrades rather than aborts.
		s.log.Warn().Err(err).Int("instruments", len(misses)).Msg("Batch bar fetch failed, continuing with cached bars only")
		return result, nil
	}

	for id, bars := range fetched {
		result[id] = bars
		s.storeBars(id, bars)
	}

	return result, nil
}

// GetCurrentPrice returns the latest price for one instrument, or nil when
// no source can provide one.
func (s *PriceService) GetCurrentPrice(ctx context.Context, instrumentID string) (*decimal.Decimal, error) {
	// Tier 1: fresh cache
	raw, err := s.cache.GetIfFresh("current_prices", instrumentID)
	if err != nil {
		return nil, fmt.Errorf("price cache lookup for %s: %w", instrumentID, err)
	}
	if raw != nil {
		if price, err := decodePrice(raw); err == nil {
			return price, nil
		}
		s.log.Warn().Str("instrument", instrumentID).Msg("Corrupt cached price, refetching")
	}

	// Tier 2: market data client
	if s.client != nil {
		price, err := s.client.GetCurrentPrice(ctx, instrumentID)
		if err != nil {
			s.log.Warn().Err(err).Str("instrument", instrumentID).Msg("Current price fetch failed, trying stale cache")
		} else if price != nil {
			if err := s.cache.Store("current_prices", instrumentID, price.String(), clientdata.TTLCurrentPrice); err != nil {
				s.log.Warn().Err(err).Str("instrument", instrumentID).Msg("Failed to cache current price")
			}
			return price, nil
		} else {
			// The client answered authoritatively: no price exists.
			return nil, nil
		}
	}

	// Tier 3: stale cache (better than nothing when the API is down)
	raw, err = s.cache.Get("current_prices", instrumentID)
	if err != nil {
		return nil, fmt.Errorf("stale price lookup for %s: %w", instrumentID, err)
	}
	if raw != nil {
		if price, err := decodePrice(raw); err == nil {
			s.log.Debug().Str("instrument", instrumentID).Msg("Using stale cached price")
			return price, nil
		}
	}

	return nil, nil
}

func decodePrice(raw json.RawMessage) (*decimal.Decimal, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(str)
	if err != nil {
		return nil, err
	}
	return &price, nil
}

func (s *PriceService) cachedBars(instrumentID string) ([]domain.PriceBar, bool) {
	raw, err := s.cache.GetIfFresh("daily_bars", instrumentID)
	if err != nil || raw == nil {
		return nil, false
	}

	var blobs []barBlob
	if err := json.Unmarshal(raw, &blobs); err != nil {
		return nil, false
	}

	bars := make([]domain.PriceBar, 0, len(blobs))
	for _, b := range blobs {
		bars = append(bars, domain.PriceBar{
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Timestamp: time.Unix(b.Timestamp, 0).UTC(),
		})
	}
	return bars, true
}

func (s *PriceService) storeBars(instrumentID string, bars []domain.PriceBar) {
	blobs := make([]barBlob, 0, len(bars))
	for _, b := range bars {
		blobs = append(blobs, barBlob{
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Timestamp: b.Timestamp.Unix(),
		})
	}
	if err := s.cache.Store("daily_bars", instrumentID, blobs, clientdata.TTLDailyBars); err != nil {
		s.log.Warn().Err(err).Str("instrument", instrumentID).Msg("Failed to cache daily bars")
	}
}
