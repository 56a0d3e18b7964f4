// Package paper provides an in-memory broker for paper trading.
// Orders fill instantly at the current market price; cash, positions,
// and realized PnL are tracked exactly as a real account would report
// them, so the rest of the system cannot tell it apart from a live
// broker.
package paper

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/alphaledger/internal/domain"
)

// PriceFunc resolves the current market price for an instrument. A nil
// price means the instrument cannot be traded right now.
type PriceFunc func(instrumentID string) (*decimal.Decimal, error)

type positionState struct {
	qty     decimal.Decimal
	avgCost decimal.Decimal
}

// Broker is a thread-safe paper trading account implementing
// domain.BrokerClient.
type Broker struct {
	mu          sync.Mutex
	cash        decimal.Decimal
	realizedPnL decimal.Decimal
	positions   map[string]positionState
	prices      PriceFunc
	log         zerolog.Logger
}

// NewBroker creates a paper broker with the given starting cash.
func NewBroker(startingCash decimal.Decimal, prices PriceFunc, log zerolog.Logger) *Broker {
	return &Broker{
		cash:      startingCash,
		positions: make(map[string]positionState),
		prices:    prices,
		log:       log.With().Str("client", "paper_broker").Logger(),
	}
}

// GetCurrentPositions returns all held positions marked to the current
// market price. When no price is available a position is marked at its
// average cost rather than dropped - the holding is still real.
func (b *Broker) GetCurrentPositions() ([]domain.BrokerPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	positions := make([]domain.BrokerPosition, 0, len(b.positions))
	for id, state := range b.positions {
		positions = append(positions, domain.BrokerPosition{
			InstrumentID: id,
			Quantity:     state.qty,
			MarketValue:  state.qty.Mul(b.markPrice(id, state)),
		})
	}
	return positions, nil
}

// GetAccountEquity returns cash plus the marked value of all positions.
func (b *Broker) GetAccountEquity() (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	equity := b.cash
	for id, state := range b.positions {
		equity = equity.Add(state.qty.Mul(b.markPrice(id, state)))
	}
	return equity, nil
}

// PlaceOrder fills a market order immediately at the current price.
func (b *Broker) PlaceOrder(instrumentID, side string, quantity decimal.Decimal) (*domain.BrokerOrderResult, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("order quantity must be positive, got %s", quantity)
	}

	price, err := b.prices(instrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to price order for %s: %w", instrumentID, err)
	}
	if price == nil || price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("no market price for %s, order rejected", instrumentID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	notional := quantity.Mul(*price)
	state := b.positions[instrumentID]

	switch side {
	case domain.OrderSideBuy:
		if notional.GreaterThan(b.cash) {
			return nil, fmt.Errorf("insufficient cash: need %s, have %s", notional, b.cash)
		}
		newQty := state.qty.Add(quantity)
		// Weighted average cost across the old lot and the new fill.
		newAvg := state.avgCost.Mul(state.qty).Add(notional).Div(newQty)
		b.cash = b.cash.Sub(notional)
		b.positions[instrumentID] = positionState{qty: newQty, avgCost: newAvg}

	case domain.OrderSideSell:
		if state.qty.LessThan(quantity) {
			return nil, fmt.Errorf("insufficient position: selling %s of %s held", quantity, state.qty)
		}
		b.realizedPnL = b.realizedPnL.Add(price.Sub(state.avgCost).Mul(quantity))
		b.cash = b.cash.Add(notional)
		newQty := state.qty.Sub(quantity)
		if newQty.IsZero() {
			delete(b.positions, instrumentID)
		} else {
			b.positions[instrumentID] = positionState{qty: newQty, avgCost: state.avgCost}
		}

	default:
		return nil, fmt.Errorf("unknown order side %q", side)
	}

	result := &domain.BrokerOrderResult{
		OrderID:      uuid.New().String(),
		InstrumentID: instrumentID,
		Side:         side,
		Quantity:     quantity,
		Notional:     notional,
	}
	b.log.Info().
		Str("instrument", instrumentID).
		Str("side", side).
		Str("quantity", quantity.String()).
		Str("price", price.String()).
		Msg("Paper order filled")
	return result, nil
}

// ClosePosition liquidates the entire holding at the current price.
func (b *Broker) ClosePosition(instrumentID string) (*domain.BrokerOrderResult, error) {
	b.mu.Lock()
	state, held := b.positions[instrumentID]
	b.mu.Unlock()
	if !held {
		return nil, fmt.Errorf("no position in %s to close", instrumentID)
	}
	return b.PlaceOrder(instrumentID, domain.OrderSideSell, state.qty)
}

// CancelAllOpenOrders is a no-op: paper orders fill instantly, so there
// is never anything resting to cancel.
func (b *Broker) CancelAllOpenOrders() (int, error) {
	return 0, nil
}

// RealizedPnL returns total closed-trade profit and loss.
func (b *Broker) RealizedPnL() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.realizedPnL
}

// Cash returns the free cash balance.
func (b *Broker) Cash() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash
}

// markPrice resolves a mark for a held position. Callers must hold b.mu.
func (b *Broker) markPrice(instrumentID string, state positionState) decimal.Decimal {
	price, err := b.prices(instrumentID)
	if err != nil || price == nil || price.LessThanOrEqual(decimal.Zero) {
		return state.avgCost
	}
	return *price
}
