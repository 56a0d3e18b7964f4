package signals

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/alphaledger/internal/domain"
)

func TestInsiderProducerNoData(t *testing.T) {
	p := NewInsiderProducer(&mockStore{}, 90, zerolog.Nop())

	signals, err := p.GenerateSignals(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestInsiderProducerNetFlow(t *testing.T) {
	store := &mockStore{rows: map[string][]domain.AltDataRow{
		domain.SourceInsiderTrades: {
			row("TSLA", "CEO", "buy", "300000"),
			row("TSLA", "CFO", "sell", "100000"),
		},
	}}

	p := NewInsiderProducer(store, 90, zerolog.Nop())

	signals, err := p.GenerateSignals(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, signals, 1)

	// (300k - 100k) / 400k = 0.5, no cluster boost with one buyer.
	assert.InDelta(t, 0.5, signals[0].Score, 1e-9)
}

func TestInsiderProducerClusterBoost(t *testing.T) {
	store := &mockStore{rows: map[string][]domain.AltDataRow{
		domain.SourceInsiderTrades: {
			row("KO", "CEO", "buy", "100000"),
			row("KO", "CFO", "buy", "100000"),
			row("KO", "COO", "buy", "100000"),
			row("KO", "VP", "sell", "100000"),
		},
	}}

	p := NewInsiderProducer(store, 90, zerolog.Nop())

	signals, err := p.GenerateSignals(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, signals, 1)

	// flow = 200k/400k = 0.5, boosted 1.25x for the 3-insider cluster.
	assert.InDelta(t, 0.625, signals[0].Score, 1e-9)
	assert.Equal(t, 3, signals[0].Metadata["distinct_buyers"])
}

func TestInsiderProducerAllSellsClampedInRange(t *testing.T) {
	store := &mockStore{rows: map[string][]domain.AltDataRow{
		domain.SourceInsiderTrades: {
			row("WMT", "CEO", "sell", "500000"),
			row("WMT", "CFO", "sell", "250000"),
		},
	}}

	p := NewInsiderProducer(store, 90, zerolog.Nop())

	signals, err := p.GenerateSignals(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, signals, 1)

	assert.InDelta(t, -1.0, signals[0].Score, 1e-9)
}

func TestInsiderProducerBoostNeverEscapesRange(t *testing.T) {
	// Cluster boost on a pure buy flow must clamp at 1.0, not 1.25.
	store := &mockStore{rows: map[string][]domain.AltDataRow{
		domain.SourceInsiderTrades: {
			row("NVDA", "CEO", "buy", "100000"),
			row("NVDA", "CFO", "buy", "100000"),
			row("NVDA", "COO", "buy", "100000"),
		},
	}}

	p := NewInsiderProducer(store, 90, zerolog.Nop())

	signals, err := p.GenerateSignals(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, signals, 1)

	assert.Equal(t, 1.0, signals[0].Score)
}
