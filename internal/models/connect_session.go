package models

import "time"

// EndUser is the customer's end user a white-labeled reconnect flow acts for.
type EndUser struct {
	ID            string `gorm:"primaryKey"`
	DisplayName   string
	Email         string
	EnvironmentID string `gorm:"not null;index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (EndUser) TableName() string {
	return "end_users"
}

// ConnectSession is an end-user-scoped reconnect context, distinct from the
// ephemeral AuthSession. It carries integration defaults and, for a
// reconnection, the id of the existing connection whose identity is reused.
type ConnectSession struct {
	ID            string `gorm:"primaryKey"`
	EndUserID     string `gorm:"not null;index"`
	EnvironmentID string `gorm:"not null;index"`

	// ConnectionID is set for reconnect sessions; the flow re-resolves its
	// connection id from this existing connection.
	ConnectionID string

	// ConnectionDefaults are merged into the flow's connectionConfig below
	// caller-supplied params.
	ConnectionDefaults StringMap `gorm:"type:text"`

	// OverrideScopes replaces the integration's scopes for flows opened from
	// this session; takes precedence over query overrides.
	OverrideScopes string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ConnectSession) TableName() string {
	return "connect_sessions"
}
