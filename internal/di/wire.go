package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/alphaledger/internal/altdata"
	"github.com/aristath/alphaledger/internal/clientdata"
	"github.com/aristath/alphaledger/internal/clients/paper"
	"github.com/aristath/alphaledger/internal/config"
	"github.com/aristath/alphaledger/internal/modules/netting"
	"github.com/aristath/alphaledger/internal/modules/portfolio"
	"github.com/aristath/alphaledger/internal/modules/rebalancing"
	"github.com/aristath/alphaledger/internal/modules/signals"
	"github.com/aristath/alphaledger/internal/modules/sizing"
	"github.com/aristath/alphaledger/internal/pipeline"
	"github.com/aristath/alphaledger/internal/services"
)

// Wire builds the full dependency graph in order: databases, then
// repositories, then services, then the trading components, then the
// pipeline that ties them together. On error, anything already opened
// is closed before returning.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{}

	if err := InitializeDatabases(cfg, log, c); err != nil {
		return nil, err
	}

	// Repositories
	c.AltDataRepo = altdata.NewRepository(c.AltDataDB.Conn())
	c.CacheRepo = clientdata.NewRepository(c.ClientDataDB.Conn())
	c.Snapshots = pipeline.NewSnapshotRepository(c.CacheDB.Conn(), log)

	// Services. External market/reference data clients are optional;
	// with nil clients the services answer from cache only.
	c.PriceService = services.NewPriceService(nil, c.CacheRepo, log)
	c.RefDataService = services.NewReferenceDataService(nil, c.CacheRepo, log)

	// Broker
	broker, err := buildBroker(cfg, c, log)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Broker = broker

	// Trading components
	c.Producers = signals.NewRegistry(c.AltDataRepo, c.RefDataService, cfg.Trading, log)
	c.Engine = netting.NewEngine(cfg.Trading.StrategyWeights, log)
	c.Exclusions = sizing.NewExclusionList(c.CacheDB.Conn(), cfg.Trading.PriceBlockTTL, log)
	c.Sizer = sizing.NewSizer(c.PriceService, c.Exclusions, sizing.Config{
		RiskTargetPct:             cfg.Trading.RiskTargetPct,
		ATRLookback:               cfg.Trading.ATRLookback,
		DefaultVolatilityFraction: cfg.Trading.DefaultVolatilityFraction,
	}, log)
	c.Constrainer = portfolio.NewConstrainer(portfolio.Config{
		MaxPositionPct:   cfg.Trading.MaxPositionPct,
		MinPositionValue: cfg.Trading.MinPositionValue,
	}, log)
	c.Executor = rebalancing.NewExecutor(c.Broker, cfg.Trading.RebalancingEnabled, log)

	c.Pipeline = pipeline.NewService(
		c.Producers,
		c.Engine,
		c.Sizer,
		c.Constrainer,
		c.Executor,
		c.Broker,
		c.Snapshots,
		log,
	)

	log.Info().
		Str("environment", cfg.Environment).
		Int("producers", len(c.Producers)).
		Bool("rebalancing_enabled", cfg.Trading.RebalancingEnabled).
		Msg("Dependency graph wired")

	return c, nil
}

func buildBroker(cfg *config.Config, c *Container, log zerolog.Logger) (*paper.Broker, error) {
	if cfg.Environment != config.EnvPaper {
		return nil, fmt.Errorf("no broker client available for environment %q", cfg.Environment)
	}
	priceFunc := func(instrumentID string) (*decimal.Decimal, error) {
		return c.PriceService.GetCurrentPrice(context.Background(), instrumentID)
	}
	return paper.NewBroker(cfg.PaperStartingCash, priceFunc, log), nil
}
