package models

import "time"

// UpsertOperation classifies the outcome of a connection upsert.
type UpsertOperation string

const (
	// OperationCreation means no prior connection with this id existed.
	OperationCreation UpsertOperation = "creation"
	// OperationOverride means a prior connection existed and the credential
	// kind changed (e.g. a re-connect with different auth).
	OperationOverride UpsertOperation = "override"
	// OperationRefresh means the credential kind is unchanged and only the
	// token values were updated.
	OperationRefresh UpsertOperation = "refresh"
)

// Connection is a durable, usable credential record for one external account.
type Connection struct {
	ID                uint   `gorm:"primaryKey;autoIncrement"`
	ConnectionID      string `gorm:"not null;uniqueIndex:idx_conn_key_env,priority:1"`
	ProviderConfigKey string `gorm:"not null;uniqueIndex:idx_conn_key_env,priority:2"`
	Provider          string `gorm:"not null"`

	Credentials      NormalizedCredential `gorm:"type:text"`
	ConnectionConfig StringMap            `gorm:"type:text"`

	EnvironmentID string  `gorm:"not null;uniqueIndex:idx_conn_key_env,priority:3"`
	EndUserID     *string `gorm:"index"`

	// Pending marks a CUSTOM install whose installation id has not yet been
	// confirmed by the provider; the connection is unusable until then.
	Pending bool `gorm:"default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Connection) TableName() string {
	return "connections"
}
