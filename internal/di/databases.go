package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/config"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/database"
)

// InitializeDatabases opens and migrates the client data store
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// client_data.db - wallet responses and last known ticks
	clientDataDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, database.NameClientData+".db"),
		Profile: database.ProfileCache,
		Name:    database.NameClientData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize client_data database: %w", err)
	}

	if err := clientDataDB.Migrate(); err != nil {
		clientDataDB.Close()
		return nil, fmt.Errorf("failed to apply schema to %s: %w", clientDataDB.Name(), err)
	}
	container.ClientDataDB = clientDataDB

	log.Info().Str("path", clientDataDB.Path()).Msg("Client data database initialized")

	return container, nil
}
