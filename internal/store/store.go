package store

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/NangoHQ/nango-sub004/internal/models"
)

type Store struct {
	db *gorm.DB
}

// DriverFactory is a function that creates a gorm.Dialector
type DriverFactory func(dsn string) gorm.Dialector

// driverFactories maps driver names to their factory functions
var driverFactories = map[string]DriverFactory{
	"sqlite":   sqlite.Open,
	"postgres": postgres.Open,
}

// GetDialector returns a GORM dialector for the given driver name and DSN
func GetDialector(driver, dsn string) (gorm.Dialector, error) {
	factory, exists := driverFactories[driver]
	if !exists {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	return factory(dsn), nil
}

func New(driver, dsn string) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.ProviderConfig{},
		&models.Connection{},
		&models.EndUser{},
		&models.ConnectSession{},
		&models.ActivityLog{},
		&models.ActivityMessage{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// SeedProviderConfig inserts a dev integration row when the table is empty.
// Only used by the bootstrap in non-production setups.
func (s *Store) SeedProviderConfig(cfg *models.ProviderConfig) error {
	var count int64
	s.db.Model(&models.ProviderConfig{}).Count(&count)
	if count > 0 {
		return nil
	}
	if err := s.db.Create(cfg).Error; err != nil {
		return err
	}
	log.Printf("Seeded provider config: %s (%s)", cfg.UniqueKey, cfg.Provider)
	return nil
}

// Provider config operations

// GetProviderConfig finds an integration by its unique key within an environment
func (s *Store) GetProviderConfig(uniqueKey, environmentID string) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	err := s.db.Where("unique_key = ? AND environment_id = ?", uniqueKey, environmentID).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProviderConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// CreateProviderConfig creates a new integration row
func (s *Store) CreateProviderConfig(cfg *models.ProviderConfig) error {
	return s.db.Create(cfg).Error
}

// Connection operations

// GetConnection finds a connection by its id triple
func (s *Store) GetConnection(
	connectionID, providerConfigKey, environmentID string,
) (*models.Connection, error) {
	var conn models.Connection
	err := s.db.Where(
		"connection_id = ? AND provider_config_key = ? AND environment_id = ?",
		connectionID, providerConfigKey, environmentID,
	).First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}
	return &conn, nil
}

// UpsertConnection creates or updates the connection record and classifies
// the operation. The classification compares the stored credential against
// the incoming one: a new row is a creation, a changed credential kind is an
// override, and same-kind token updates are a refresh. Calling it twice with
// identical inputs converges on the same row and never reports creation
// twice.
func (s *Store) UpsertConnection(conn *models.Connection) (*models.Connection, models.UpsertOperation, error) {
	var operation models.UpsertOperation

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Connection
		err := tx.Where(
			"connection_id = ? AND provider_config_key = ? AND environment_id = ?",
			conn.ConnectionID, conn.ProviderConfigKey, conn.EnvironmentID,
		).First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			operation = models.OperationCreation
			return tx.Create(conn).Error
		}
		if err != nil {
			return err
		}

		if existing.Credentials.SameKind(&conn.Credentials) {
			operation = models.OperationRefresh
		} else {
			operation = models.OperationOverride
		}

		existing.Provider = conn.Provider
		existing.Credentials = conn.Credentials
		existing.ConnectionConfig = conn.ConnectionConfig
		existing.Pending = conn.Pending
		if conn.EndUserID != nil {
			existing.EndUserID = conn.EndUserID
		}
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*conn = existing
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to upsert connection: %w", err)
	}

	return conn, operation, nil
}

// DeleteConnection removes a connection by its id triple
func (s *Store) DeleteConnection(connectionID, providerConfigKey, environmentID string) error {
	return s.db.Where(
		"connection_id = ? AND provider_config_key = ? AND environment_id = ?",
		connectionID, providerConfigKey, environmentID,
	).Delete(&models.Connection{}).Error
}

// Connect session operations

// GetConnectSession resolves a connect session together with its end user
func (s *Store) GetConnectSession(id string) (*models.ConnectSession, *models.EndUser, error) {
	var cs models.ConnectSession
	if err := s.db.Where("id = ?", id).First(&cs).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrConnectSessionNotFound
		}
		return nil, nil, err
	}

	var user models.EndUser
	if err := s.db.Where("id = ?", cs.EndUserID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrEndUserNotFound
		}
		return nil, nil, err
	}

	return &cs, &user, nil
}

// CreateConnectSession creates a connect session row
func (s *Store) CreateConnectSession(cs *models.ConnectSession) error {
	return s.db.Create(cs).Error
}

// CreateEndUser creates an end user row
func (s *Store) CreateEndUser(u *models.EndUser) error {
	return s.db.Create(u).Error
}

// LinkConnection attaches a connection to an end user
func (s *Store) LinkConnection(endUserID string, conn *models.Connection) error {
	return s.db.Model(&models.Connection{}).
		Where("id = ?", conn.ID).
		Update("end_user_id", endUserID).Error
}

// Activity log operations

// CreateActivityLog inserts a new activity log row
func (s *Store) CreateActivityLog(entry *models.ActivityLog) error {
	return s.db.Create(entry).Error
}

// CloseActivityLog sets the terminal state and end time of an activity log
func (s *Store) CloseActivityLog(id string, state models.ActivityState) error {
	return s.db.Model(&models.ActivityLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":    state,
			"ended_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}).Error
}

// CreateActivityMessages batch-inserts activity messages
func (s *Store) CreateActivityMessages(messages []*models.ActivityMessage) error {
	if len(messages) == 0 {
		return nil
	}
	return s.db.Create(messages).Error
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB returns the underlying GORM database connection (for transactions)
func (s *Store) DB() *gorm.DB {
	return s.db
}
