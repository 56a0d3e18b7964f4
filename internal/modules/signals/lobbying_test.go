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

func lobbyingRows() map[string][]domain.AltDataRow {
	return map[string][]domain.AltDataRow{
		domain.SourceLobbying: {
			row("AAA", "Registrant 1", "spend", "100000"),
			row("BBB", "Registrant 2", "spend", "200000"),
			row("CCC", "Registrant 3", "spend", "300000"),
			row("DDD", "Registrant 4", "spend", "400000"),
			row("EEE", "Registrant 5", "spend", "500000"),
		},
	}
}

func TestLobbyingProducerNoData(t *testing.T) {
	p := NewLobbyingProducer(&mockStore{}, &mockRefData{}, 90, zerolog.Nop())

	signals, err := p.GenerateSignals(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestLobbyingProducerQuintileScores(t *testing.T) {
	p := NewLobbyingProducer(&mockStore{rows: lobbyingRows()}, &mockRefData{}, 90, zerolog.Nop())

	signals, err := p.GenerateSignals(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, signals, 5)

	scoreByInstrument := make(map[string]float64)
	for _, sig := range signals {
		scoreByInstrument[sig.InstrumentID] = sig.Score
	}

	// One instrument per quintile: scores step 0, 0.25, 0.5, 0.75, 1.
	assert.InDelta(t, 0.0, scoreByInstrument["AAA"], 1e-9)
	assert.InDelta(t, 0.25, scoreByInstrument["BBB"], 1e-9)
	assert.InDelta(t, 0.5, scoreByInstrument["CCC"], 1e-9)
	assert.InDelta(t, 0.75, scoreByInstrument["DDD"], 1e-9)
	assert.InDelta(t, 1.0, scoreByInstrument["EEE"], 1e-9)
}

func TestLobbyingProducerAggregatesSpendPerInstrument(t *testing.T) {
	rows := map[string][]domain.AltDataRow{
		domain.SourceLobbying: {
			row("AAA", "Registrant 1", "spend", "100000"),
			row("AAA", "Registrant 1", "spend", "900000"), // AAA total: 1,000,000
			row("BBB", "Registrant 2", "spend", "200000"),
		},
	}

	p := NewLobbyingProducer(&mockStore{rows: rows}, &mockRefData{}, 90, zerolog.Nop())

	signals, err := p.GenerateSignals(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, signals, 2)

	var aaa domain.Signal
	for _, sig := range signals {
		if sig.InstrumentID == "AAA" {
			aaa = sig
		}
	}
	assert.Equal(t, "1000000", aaa.Metadata["total_spend"])
	assert.Greater(t, aaa.Score, 0.0, "the bigger spender ranks above the bottom quintile")
}

func TestLobbyingProducerNeverProducesNegativeScores(t *testing.T) {
	p := NewLobbyingProducer(&mockStore{rows: lobbyingRows()}, &mockRefData{}, 90, zerolog.Nop())

	signals, err := p.GenerateSignals(context.Background(), time.Now())
	require.NoError(t, err)

	for _, sig := range signals {
		assert.GreaterOrEqual(t, sig.Score, 0.0, "lobbying is a long-only proxy")
		assert.LessOrEqual(t, sig.Score, 1.0)
	}
}

func TestLobbyingProducerUnknownSectorIsNeutral(t *testing.T) {
	p := NewLobbyingProducer(&mockStore{rows: lobbyingRows()}, &mockRefData{
		sectors: map[string]string{"EEE": "Industrials"},
	}, 90, zerolog.Nop())

	signals, err := p.GenerateSignals(context.Background(), time.Now())
	require.NoError(t, err)

	sectorByInstrument := make(map[string]interface{})
	for _, sig := range signals {
		sectorByInstrument[sig.InstrumentID] = sig.Metadata["sector"]
	}
	assert.Equal(t, "Industrials", sectorByInstrument["EEE"])
	assert.Equal(t, "unknown", sectorByInstrument["AAA"])
}
