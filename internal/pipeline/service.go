package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/alphaledger/internal/domain"
	"github.com/aristath/alphaledger/internal/modules/netting"
	"github.com/aristath/alphaledger/internal/modules/portfolio"
	"github.com/aristath/alphaledger/internal/modules/rebalancing"
	"github.com/aristath/alphaledger/internal/modules/signals"
	"github.com/aristath/alphaledger/internal/modules/sizing"
)

// TargetSummary is the snapshot form of one target position. Monetary
// values are decimal strings so the snapshot round-trips without
// floating-point drift.
type TargetSummary struct {
	InstrumentID string  `msgpack:"instrument_id" json:"instrument_id"`
	AssetClass   string  `msgpack:"asset_class" json:"asset_class"`
	TargetValue  string  `msgpack:"target_value" json:"target_value"`
	Shares       string  `msgpack:"shares" json:"shares"`
	CurrentPrice string  `msgpack:"current_price" json:"current_price"`
	NetScore     float64 `msgpack:"net_score" json:"net_score"`
	ATR          float64 `msgpack:"atr" json:"atr"`
	ATRFallback  bool    `msgpack:"atr_fallback" json:"atr_fallback"`
}

// RebalanceSummary is the snapshot form of a rebalancing run.
type RebalanceSummary struct {
	DryRun         bool `msgpack:"dry_run" json:"dry_run"`
	CanceledOrders int  `msgpack:"canceled_orders" json:"canceled_orders"`
	PlannedOrders  int  `msgpack:"planned_orders" json:"planned_orders"`
	ExecutedOrders int  `msgpack:"executed_orders" json:"executed_orders"`
	FailedOrders   int  `msgpack:"failed_orders" json:"failed_orders"`
}

// PassResult is the complete record of one pipeline pass: what was
// produced, what was skipped and why, and what changed at the broker.
type PassResult struct {
	ID          string    `msgpack:"id" json:"id"`
	StartedAt   time.Time `msgpack:"started_at" json:"started_at"`
	CompletedAt time.Time `msgpack:"completed_at" json:"completed_at"`
	Equity      string    `msgpack:"equity" json:"equity"`

	SignalCount     int      `msgpack:"signal_count" json:"signal_count"`
	ConvictionCount int      `msgpack:"conviction_count" json:"conviction_count"`
	ProducerErrors  []string `msgpack:"producer_errors" json:"producer_errors"`

	Targets []TargetSummary `msgpack:"targets" json:"targets"`

	// Exposures are fractions of equity, not dollar sums.
	GrossExposure string `msgpack:"gross_exposure" json:"gross_exposure"`
	NetExposure   string `msgpack:"net_exposure" json:"net_exposure"`

	SkippedZeroScore int `msgpack:"skipped_zero_score" json:"skipped_zero_score"`
	SkippedBlocked   int `msgpack:"skipped_blocked" json:"skipped_blocked"`
	BlockedThisPass  int `msgpack:"blocked_this_pass" json:"blocked_this_pass"`
	ATRFallbacks     int `msgpack:"atr_fallbacks" json:"atr_fallbacks"`
	CappedCount      int `msgpack:"capped_count" json:"capped_count"`
	DroppedCount     int `msgpack:"dropped_count" json:"dropped_count"`

	Rebalance *RebalanceSummary `msgpack:"rebalance" json:"rebalance"`
}

// Service orchestrates one full pass: signal production in parallel,
// netting, sizing, portfolio constraints, rebalancing, and the snapshot.
//
// Failure taxonomy: a producer failing loses that strategy's voice for
// the pass and nothing more. Equity, sizing, constraint, or rebalancing
// failures abort the pass entirely - a partially built portfolio is
// never acted on.
type Service struct {
	producers   []signals.Producer
	engine      *netting.Engine
	sizer       *sizing.Sizer
	constrainer *portfolio.Constrainer
	executor    *rebalancing.Executor
	broker      domain.BrokerClient
	snapshots   *SnapshotRepository
	log         zerolog.Logger
}

// NewService creates the pipeline service.
func NewService(
	producers []signals.Producer,
	engine *netting.Engine,
	sizer *sizing.Sizer,
	constrainer *portfolio.Constrainer,
	executor *rebalancing.Executor,
	broker domain.BrokerClient,
	snapshots *SnapshotRepository,
	log zerolog.Logger,
) *Service {
	return &Service{
		producers:   producers,
		engine:      engine,
		sizer:       sizer,
		constrainer: constrainer,
		executor:    executor,
		broker:      broker,
		snapshots:   snapshots,
		log:         log.With().Str("service", "pipeline").Logger(),
	}
}

// RunPass executes one complete pass as of now.
func (s *Service) RunPass(ctx context.Context) (*PassResult, error) {
	result := &PassResult{
		ID:             uuid.New().String(),
		StartedAt:      time.Now(),
		ProducerErrors: []string{},
	}
	log := s.log.With().Str("pass_id", result.ID).Logger()
	log.Info().Msg("Starting pipeline pass")

	equity, err := s.broker.GetAccountEquity()
	if err != nil {
		return nil, fmt.Errorf("pass aborted, cannot determine account equity: %w", err)
	}
	result.Equity = equity.String()

	allSignals := s.produceSignals(ctx, result, log)
	result.SignalCount = len(allSignals)

	convictions := s.engine.Net(allSignals)
	result.ConvictionCount = len(convictions)

	targets, sizeReport, err := s.sizer.Size(ctx, convictions, equity, result.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("pass aborted during sizing: %w", err)
	}
	result.SkippedZeroScore = sizeReport.SkippedZeroScore
	result.SkippedBlocked = sizeReport.SkippedBlocked
	result.BlockedThisPass = sizeReport.BlockedThisPass
	result.ATRFallbacks = sizeReport.ATRFallbacks

	constrained, err := s.constrainer.Apply(targets, equity)
	if err != nil {
		return nil, fmt.Errorf("pass aborted applying portfolio constraints: %w", err)
	}
	result.CappedCount = len(constrained.CapEvents)
	result.DroppedCount = len(constrained.Dropped)
	result.GrossExposure = constrained.GrossExposure.String()
	result.NetExposure = constrained.NetExposure.String()
	result.Targets = summarizeTargets(constrained.Targets)

	rebalance, err := s.executor.Execute(constrained.Targets)
	if err != nil {
		return nil, fmt.Errorf("pass aborted during rebalancing: %w", err)
	}
	result.Rebalance = &RebalanceSummary{
		DryRun:         rebalance.DryRun,
		CanceledOrders: rebalance.CanceledOrders,
		PlannedOrders:  len(rebalance.Planned),
		ExecutedOrders: len(rebalance.Executed),
		FailedOrders:   rebalance.Failed,
	}

	result.CompletedAt = time.Now()
	if err := s.snapshots.Save(result); err != nil {
		// The pass itself succeeded; losing the audit record is not
		// worth failing it for.
		log.Error().Err(err).Msg("Failed to store pass snapshot")
	}

	log.Info().
		Int("signals", result.SignalCount).
		Int("convictions", result.ConvictionCount).
		Int("targets", len(result.Targets)).
		Str("gross_exposure", result.GrossExposure).
		Str("net_exposure", result.NetExposure).
		Dur("elapsed", result.CompletedAt.Sub(result.StartedAt)).
		Msg("Pipeline pass complete")
	return result, nil
}

// produceSignals runs every producer concurrently. A failing producer
// loses its voice for this pass; the others are unaffected.
func (s *Service) produceSignals(ctx context.Context, result *PassResult, log zerolog.Logger) []domain.Signal {
	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		allSignals []domain.Signal
	)

	for _, producer := range s.producers {
		wg.Add(1)
		go func(p signals.Producer) {
			defer wg.Done()
			produced, err := p.GenerateSignals(ctx, result.StartedAt)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Error().Err(err).Str("producer", p.Name()).Msg("Producer failed, continuing without it")
				result.ProducerErrors = append(result.ProducerErrors, fmt.Sprintf("%s: %v", p.Name(), err))
				return
			}
			allSignals = append(allSignals, produced...)
		}(producer)
	}
	wg.Wait()

	return allSignals
}

func summarizeTargets(targets []domain.TargetPosition) []TargetSummary {
	summaries := make([]TargetSummary, 0, len(targets))
	for _, t := range targets {
		summaries = append(summaries, TargetSummary{
			InstrumentID: t.InstrumentID,
			AssetClass:   string(t.AssetClass),
			TargetValue:  t.TargetValue.String(),
			Shares:       t.Details.Shares.String(),
			CurrentPrice: t.Details.CurrentPrice.String(),
			NetScore:     t.Details.NetScore,
			ATR:          t.Details.ATR,
			ATRFallback:  t.Details.ATRFallback,
		})
	}
	return summaries
}
