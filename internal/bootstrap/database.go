package bootstrap

import (
	"log"

	"github.com/google/uuid"

	"github.com/NangoHQ/nango-sub004/internal/config"
	"github.com/NangoHQ/nango-sub004/internal/models"
	"github.com/NangoHQ/nango-sub004/internal/store"
)

// initializeDatabase opens the store and optionally seeds a demo
// integration for local development
func initializeDatabase(cfg *config.Config) (*store.Store, error) {
	db, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	log.Printf("Database initialized (%s)", cfg.DatabaseDriver)

	if cfg.SeedDemoData {
		seedDemoProviderConfig(db, cfg)
	}

	return db, nil
}

// seedDemoProviderConfig inserts a GitHub integration row when the
// table is empty so a fresh checkout can run a flow end to end.
func seedDemoProviderConfig(db *store.Store, cfg *config.Config) {
	demo := &models.ProviderConfig{
		UniqueKey:         "github-demo",
		Provider:          "github",
		OAuthClientID:     uuid.New().String(),
		OAuthClientSecret: uuid.New().String(),
		OAuthScopes:       "repo,user",
		EnvironmentID:     cfg.EnvironmentID,
	}
	if err := db.SeedProviderConfig(demo); err != nil {
		log.Printf("Failed to seed demo provider config: %v", err)
		return
	}
	log.Printf("Seeded demo provider config %q", demo.UniqueKey)
}
