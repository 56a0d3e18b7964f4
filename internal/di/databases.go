package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/alphaledger/internal/config"
	"github.com/aristath/alphaledger/internal/database"
)

// InitializeDatabases opens and migrates the three databases. On any
// failure it closes whatever it already opened before returning.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger, c *Container) error {
	specs := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		{"altdata", database.ProfileStandard, &c.AltDataDB},
		{"client_data", database.ProfileStandard, &c.ClientDataDB},
		{"cache", database.ProfileCache, &c.CacheDB},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, spec.name+".db"),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			c.Close()
			return fmt.Errorf("failed to open %s database: %w", spec.name, err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			c.Close()
			return fmt.Errorf("failed to migrate %s database: %w", spec.name, err)
		}
		*spec.target = db
		log.Debug().Str("database", spec.name).Msg("Database ready")
	}

	return nil
}
