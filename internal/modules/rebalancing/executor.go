package rebalancing

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/alphaledger/internal/domain"
)

// PlannedOrder is one order the executor intends to place.
type PlannedOrder struct {
	InstrumentID string
	Side         string
	Quantity     decimal.Decimal // Whole shares; zero for full closes
	Notional     decimal.Decimal // Absolute dollar delta being traded
	FullClose    bool            // True when the position is liquidated entirely
}

// Summary is the outcome of one rebalancing run.
type Summary struct {
	CanceledOrders int
	Planned        []PlannedOrder
	Executed       []domain.BrokerOrderResult
	Failed         int
	DryRun         bool
}

// Executor reconciles the broker's actual holdings with a target
// portfolio. It sells before it buys so that sale proceeds fund the
// purchases, and it places the largest buys first so that if the pass is
// interrupted, the highest-conviction capital is already deployed.
type Executor struct {
	broker  domain.BrokerClient
	enabled bool
	log     zerolog.Logger
}

// NewExecutor creates a rebalancing executor. When enabled is false the
// executor still plans every order but places none of them.
func NewExecutor(broker domain.BrokerClient, enabled bool, log zerolog.Logger) *Executor {
	return &Executor{
		broker:  broker,
		enabled: enabled,
		log:     log.With().Str("module", "rebalancing").Logger(),
	}
}

// Execute cancels all open orders, diffs current holdings against the
// targets, and works the resulting plan: full closes and sells first,
// then buys in descending notional order. Individual order failures are
// logged and counted but do not abort the remaining orders - a partial
// rebalance is better than an inconsistent halt.
func (e *Executor) Execute(targets []domain.TargetPosition) (*Summary, error) {
	canceled, err := e.broker.CancelAllOpenOrders()
	if err != nil {
		return nil, fmt.Errorf("failed to cancel open orders: %w", err)
	}
	if canceled > 0 {
		e.log.Info().Int("canceled", canceled).Msg("Canceled open orders before rebalancing")
	}

	positions, err := e.broker.GetCurrentPositions()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current positions: %w", err)
	}

	summary := &Summary{
		CanceledOrders: canceled,
		DryRun:         !e.enabled,
	}
	summary.Planned = e.plan(targets, positions)

	if !e.enabled {
		e.log.Info().
			Int("planned", len(summary.Planned)).
			Msg("Rebalancing disabled, plan computed but no orders placed")
		return summary, nil
	}

	for _, order := range summary.Planned {
		result, err := e.place(order)
		if err != nil {
			summary.Failed++
			e.log.Error().Err(err).
				Str("instrument", order.InstrumentID).
				Str("side", order.Side).
				Msg("Order failed")
			continue
		}
		summary.Executed = append(summary.Executed, *result)
	}

	e.log.Info().
		Int("planned", len(summary.Planned)).
		Int("executed", len(summary.Executed)).
		Int("failed", summary.Failed).
		Msg("Rebalancing run complete")
	return summary, nil
}

// plan computes the ordered list of trades: full closes, then partial
// sells, then buys largest-first.
func (e *Executor) plan(targets []domain.TargetPosition, positions []domain.BrokerPosition) []PlannedOrder {
	targetByID := make(map[string]domain.TargetPosition, len(targets))
	for _, t := range targets {
		targetByID[t.InstrumentID] = t
	}
	heldByID := make(map[string]domain.BrokerPosition, len(positions))
	for _, p := range positions {
		heldByID[p.InstrumentID] = p
	}

	var closes, sells, buys []PlannedOrder

	// Held but no longer wanted: liquidate entirely.
	for _, p := range positions {
		if _, wanted := targetByID[p.InstrumentID]; !wanted {
			closes = append(closes, PlannedOrder{
				InstrumentID: p.InstrumentID,
				Side:         domain.OrderSideSell,
				Notional:     p.MarketValue.Abs(),
				FullClose:    true,
			})
		}
	}

	for _, t := range targets {
		held, isHeld := heldByID[t.InstrumentID]
		heldValue := decimal.Zero
		if isHeld {
			heldValue = held.MarketValue
		}

		delta := t.TargetValue.Sub(heldValue)
		if delta.IsZero() {
			continue
		}

		price := e.pricePerShare(t, held, isHeld)
		if price.LessThanOrEqual(decimal.Zero) {
			e.log.Warn().
				Str("instrument", t.InstrumentID).
				Msg("No usable price for delta, skipping trade")
			continue
		}

		shares := delta.Abs().Div(price).Floor()
		if shares.IsZero() {
			continue
		}

		order := PlannedOrder{
			InstrumentID: t.InstrumentID,
			Quantity:     shares,
			Notional:     delta.Abs(),
		}
		if delta.IsNegative() {
			order.Side = domain.OrderSideSell
			sells = append(sells, order)
		} else {
			order.Side = domain.OrderSideBuy
			buys = append(buys, order)
		}
	}

	sort.Slice(closes, func(i, j int) bool { return closes[i].InstrumentID < closes[j].InstrumentID })
	sort.Slice(sells, func(i, j int) bool { return sells[i].InstrumentID < sells[j].InstrumentID })
	// Largest buys first; ties break on symbol for determinism.
	sort.Slice(buys, func(i, j int) bool {
		if !buys[i].Notional.Equal(buys[j].Notional) {
			return buys[i].Notional.GreaterThan(buys[j].Notional)
		}
		return buys[i].InstrumentID < buys[j].InstrumentID
	})

	plan := make([]PlannedOrder, 0, len(closes)+len(sells)+len(buys))
	plan = append(plan, closes...)
	plan = append(plan, sells...)
	plan = append(plan, buys...)
	return plan
}

// pricePerShare derives a per-share price for converting a dollar delta
// into a share count. A held position's own marks are the most honest
// price; otherwise the sizing price is used.
func (e *Executor) pricePerShare(t domain.TargetPosition, held domain.BrokerPosition, isHeld bool) decimal.Decimal {
	if isHeld && !held.Quantity.IsZero() {
		return held.MarketValue.Div(held.Quantity).Abs()
	}
	return t.Details.CurrentPrice
}

func (e *Executor) place(order PlannedOrder) (*domain.BrokerOrderResult, error) {
	if order.FullClose {
		return e.broker.ClosePosition(order.InstrumentID)
	}
	return e.broker.PlaceOrder(order.InstrumentID, order.Side, order.Quantity)
}
