package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/alphaledger/internal/domain"
	"github.com/aristath/alphaledger/internal/modules/netting"
	"github.com/aristath/alphaledger/internal/modules/portfolio"
	"github.com/aristath/alphaledger/internal/modules/rebalancing"
	"github.com/aristath/alphaledger/internal/modules/signals"
	"github.com/aristath/alphaledger/internal/modules/sizing"
)

const cacheSchema = `
CREATE TABLE price_blocks (
	symbol TEXT PRIMARY KEY,
	reason TEXT NOT NULL,
	blocked_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE TABLE pass_snapshots (
	pass_id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	snapshot BLOB NOT NULL
);`

func setupCacheDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(cacheSchema)
	require.NoError(t, err)
	return db
}

type stubProducer struct {
	name    string
	signals []domain.Signal
	err     error
}

func (p *stubProducer) Name() string { return p.name }

func (p *stubProducer) GenerateSignals(ctx context.Context, asOf time.Time) ([]domain.Signal, error) {
	return p.signals, p.err
}

type stubPrices struct {
	prices map[string]decimal.Decimal
	bars   map[string][]domain.PriceBar
}

func (s *stubPrices) GetDailyBars(ctx context.Context, instrumentIDs []string, start, end time.Time) (map[string][]domain.PriceBar, error) {
	return s.bars, nil
}

func (s *stubPrices) GetCurrentPrice(ctx context.Context, instrumentID string) (*decimal.Decimal, error) {
	if p, ok := s.prices[instrumentID]; ok {
		return &p, nil
	}
	return nil, nil
}

type stubBroker struct {
	equity    decimal.Decimal
	equityErr error
	positions []domain.BrokerPosition
	placed    int
}

func (b *stubBroker) GetCurrentPositions() ([]domain.BrokerPosition, error) {
	return b.positions, nil
}

func (b *stubBroker) GetAccountEquity() (decimal.Decimal, error) {
	return b.equity, b.equityErr
}

func (b *stubBroker) PlaceOrder(instrumentID, side string, quantity decimal.Decimal) (*domain.BrokerOrderResult, error) {
	b.placed++
	return &domain.BrokerOrderResult{
		OrderID: fmt.Sprintf("order-%d", b.placed), InstrumentID: instrumentID,
		Side: side, Quantity: quantity,
	}, nil
}

func (b *stubBroker) ClosePosition(instrumentID string) (*domain.BrokerOrderResult, error) {
	return &domain.BrokerOrderResult{OrderID: "close-1", InstrumentID: instrumentID, Side: domain.OrderSideSell}, nil
}

func (b *stubBroker) CancelAllOpenOrders() (int, error) { return 0, nil }

func bars(n int, high, low, close float64) []domain.PriceBar {
	out := make([]domain.PriceBar, n)
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = domain.PriceBar{High: high, Low: low, Close: close, Timestamp: ts.AddDate(0, 0, i)}
	}
	return out
}

func mustSignal(t *testing.T, instrument, strategy string, score float64) domain.Signal {
	t.Helper()
	s, err := domain.NewSignal(instrument, strategy, score, nil, time.Now())
	require.NoError(t, err)
	return s
}

func newTestService(t *testing.T, producers []signals.Producer, broker *stubBroker, prices sizing.PriceReader) (*Service, *SnapshotRepository) {
	t.Helper()
	db := setupCacheDB(t)
	nop := zerolog.Nop()

	engine := netting.NewEngine(domain.StrategyWeightTable{
		"congress": 0.5,
		"insider":  0.5,
	}, nop)
	excl := sizing.NewExclusionList(db, 168*time.Hour, nop)
	sizer := sizing.NewSizer(prices, excl, sizing.Config{
		RiskTargetPct:             0.01,
		ATRLookback:               14,
		DefaultVolatilityFraction: 0.03,
	}, nop)
	constrainer := portfolio.NewConstrainer(portfolio.Config{
		MaxPositionPct:   0.10,
		MinPositionValue: decimal.NewFromInt(250),
	}, nop)
	executor := rebalancing.NewExecutor(broker, true, nop)
	snapshots := NewSnapshotRepository(db, nop)

	return NewService(producers, engine, sizer, constrainer, executor, broker, snapshots, nop), snapshots
}

func TestRunPassEndToEnd(t *testing.T) {
	producers := []signals.Producer{
		&stubProducer{name: "congress", signals: []domain.Signal{mustSignal(t, "AAPL", "congress", 0.8)}},
		&stubProducer{name: "insider", signals: []domain.Signal{mustSignal(t, "AAPL", "insider", 0.6)}},
	}
	broker := &stubBroker{equity: decimal.NewFromInt(100000)}
	prices := &stubPrices{
		prices: map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(100)},
		bars:   map[string][]domain.PriceBar{"AAPL": bars(20, 105, 95, 100)},
	}

	svc, snapshots := newTestService(t, producers, broker, prices)

	result, err := svc.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.SignalCount)
	assert.Equal(t, 1, result.ConvictionCount)
	require.Len(t, result.Targets, 1)
	// Net 0.7, $1,000 risk / $10 ATR = 100 raw shares, * 0.7 = 70 shares at $100.
	assert.Equal(t, "AAPL", result.Targets[0].InstrumentID)
	assert.Equal(t, "70", result.Targets[0].Shares)
	assert.Equal(t, "7000", result.Targets[0].TargetValue)
	assert.Equal(t, "0.07", result.GrossExposure)
	assert.Empty(t, result.ProducerErrors)
	assert.NotNil(t, result.Rebalance)
	assert.Equal(t, 1, result.Rebalance.ExecutedOrders)

	latest, err := snapshots.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, result.ID, latest.ID)
	assert.Equal(t, result.Targets, latest.Targets)
}

func TestRunPassSurvivesProducerFailure(t *testing.T) {
	producers := []signals.Producer{
		&stubProducer{name: "congress", signals: []domain.Signal{mustSignal(t, "AAPL", "congress", 0.8)}},
		&stubProducer{name: "insider", err: fmt.Errorf("upstream feed down")},
	}
	broker := &stubBroker{equity: decimal.NewFromInt(100000)}
	prices := &stubPrices{
		prices: map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(100)},
		bars:   map[string][]domain.PriceBar{"AAPL": bars(20, 105, 95, 100)},
	}

	svc, _ := newTestService(t, producers, broker, prices)

	result, err := svc.RunPass(context.Background())
	require.NoError(t, err, "one failed producer does not abort the pass")
	assert.Len(t, result.ProducerErrors, 1)
	assert.Contains(t, result.ProducerErrors[0], "insider")
	assert.Len(t, result.Targets, 1, "the surviving strategy still trades")
}

func TestRunPassEquityFailureIsFatal(t *testing.T) {
	broker := &stubBroker{equityErr: fmt.Errorf("broker session expired")}
	svc, snapshots := newTestService(t, nil, broker, &stubPrices{})

	_, err := svc.RunPass(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account equity")

	latest, err := snapshots.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest, "an aborted pass leaves no snapshot")
}

func TestRunPassWithNoSignals(t *testing.T) {
	producers := []signals.Producer{
		&stubProducer{name: "congress", signals: []domain.Signal{}},
	}
	broker := &stubBroker{equity: decimal.NewFromInt(100000)}
	svc, _ := newTestService(t, producers, broker, &stubPrices{})

	result, err := svc.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.SignalCount)
	assert.Empty(t, result.Targets)
	assert.Equal(t, "0", result.GrossExposure)
}

func TestSnapshotRepositoryGetAndPrune(t *testing.T) {
	db := setupCacheDB(t)
	repo := NewSnapshotRepository(db, zerolog.Nop())

	old := &PassResult{ID: "pass-old", CompletedAt: time.Now().Add(-72 * time.Hour)}
	recent := &PassResult{ID: "pass-new", CompletedAt: time.Now()}
	require.NoError(t, repo.Save(old))
	require.NoError(t, repo.Save(recent))

	got, err := repo.Get("pass-old")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "pass-old", got.ID)

	missing, err := repo.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	removed, err := repo.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	latest, err := repo.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "pass-new", latest.ID)
}
