// Package internal contains core application functionality
package internal

import (
	"fmt"

	"github.com/karloscodes/cartridge"

	"github.com/Riken-Shah/finding-me/internal/config"
	"github.com/Riken-Shah/finding-me/internal/database"
	"github.com/Riken-Shah/finding-me/internal/pkg/geoip"
)

// Application wraps cartridge.Application with the analytics DB manager.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// The GeoLite database is optional; lookups degrade to empty locations
	// when it is absent.
	geoip.InitLogger(logger)
	geoip.GetGeoDB()

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:         cfg,
		Logger:         logger,
		DBManager:      dbManager,
		RouteMountFunc: MountAppRoutes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
	}, nil
}
