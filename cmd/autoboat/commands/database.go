package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/teranos/autoboat/am"
	"github.com/teranos/autoboat/db"
	"github.com/teranos/autoboat/errors"
	"github.com/teranos/autoboat/logger"
)

// loadConfig loads and validates the merged configuration
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	cfg, err := am.Load(explicitConfig(cmd))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.SetTheme(cfg.GetLogTheme())
	return cfg, nil
}

// openDatabase opens and migrates the configured state database
func openDatabase(cfg *am.Config) (*sql.DB, error) {
	path := cfg.GetDatabasePath()
	database, err := db.OpenWithMigrations(path, logger.Logger)
	if err != nil {
		return nil, errors.WithHintf(errors.WrapPersistence(err, "open state database"),
			"check that %s is writable, or set database.path", path)
	}
	return database, nil
}
