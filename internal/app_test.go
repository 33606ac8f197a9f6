package internal_test

import (
	"path/filepath"
	"testing"

	"github.com/karloscodes/cartridge"
	"github.com/stretchr/testify/require"

	"github.com/Riken-Shah/finding-me/internal"
	"github.com/Riken-Shah/finding-me/internal/config"
)

// Config must satisfy every cartridge interface the application wiring hands
// it to, otherwise NewAppWithConfig stops compiling.
var (
	_ cartridge.Config            = (*config.Config)(nil)
	_ cartridge.LogConfigProvider = (*config.Config)(nil)
)

func TestNewAppWithConfig(t *testing.T) {
	cfg := config.GetConfig()
	cfg.Environment = config.Test
	cfg.DatabaseName = filepath.Join(t.TempDir(), "findingme-test.db")
	cfg.PublicDirectory = "../web"

	app, err := internal.NewAppWithConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, app.DBManager)

	t.Cleanup(func() {
		if db := app.DBManager.GetConnection(); db != nil {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
	})

	require.NoError(t, app.DBManager.MigrateDatabase())

	db := app.DBManager.GetConnection()
	require.NotNil(t, db)
	for _, table := range []string{"sessions", "pageviews", "events"} {
		require.Truef(t, db.Migrator().HasTable(table), "expected table %s after migration", table)
	}
}
