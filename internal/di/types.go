package di

import (
	"github.com/aristath/alphaledger/internal/altdata"
	"github.com/aristath/alphaledger/internal/clientdata"
	"github.com/aristath/alphaledger/internal/database"
	"github.com/aristath/alphaledger/internal/domain"
	"github.com/aristath/alphaledger/internal/modules/netting"
	"github.com/aristath/alphaledger/internal/modules/portfolio"
	"github.com/aristath/alphaledger/internal/modules/rebalancing"
	"github.com/aristath/alphaledger/internal/modules/signals"
	"github.com/aristath/alphaledger/internal/modules/sizing"
	"github.com/aristath/alphaledger/internal/pipeline"
	"github.com/aristath/alphaledger/internal/services"
)

// Container holds all initialized dependencies. Built once at startup
// by Wire; everything downstream receives its dependencies from here
// via constructor injection.
type Container struct {
	// Databases
	AltDataDB    *database.DB
	ClientDataDB *database.DB
	CacheDB      *database.DB

	// Repositories
	AltDataRepo *altdata.Repository
	CacheRepo   *clientdata.Repository
	Snapshots   *pipeline.SnapshotRepository

	// Services
	PriceService   *services.PriceService
	RefDataService *services.ReferenceDataService

	// Trading components
	Broker      domain.BrokerClient
	Producers   []signals.Producer
	Engine      *netting.Engine
	Exclusions  *sizing.ExclusionList
	Sizer       *sizing.Sizer
	Constrainer *portfolio.Constrainer
	Executor    *rebalancing.Executor
	Pipeline    *pipeline.Service
}

// Databases returns the named database handles, for maintenance and
// backup jobs that iterate over all of them.
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		"altdata":     c.AltDataDB,
		"client_data": c.ClientDataDB,
		"cache":       c.CacheDB,
	}
}

// Close closes all database connections.
func (c *Container) Close() {
	if c.AltDataDB != nil {
		c.AltDataDB.Close()
	}
	if c.ClientDataDB != nil {
		c.ClientDataDB.Close()
	}
	if c.CacheDB != nil {
		c.CacheDB.Close()
	}
}
