package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ActivityAction identifies what kind of flow an activity log covers.
type ActivityAction string

const (
	ActivityAuth   ActivityAction = "AUTH"
	ActivityToken  ActivityAction = "TOKEN"
	ActivityInstall ActivityAction = "INSTALL"
)

// ActivityState is the terminal state of an activity log.
type ActivityState string

const (
	ActivityRunning ActivityState = "RUNNING"
	ActivitySuccess ActivityState = "SUCCESS"
	ActivityFailed  ActivityState = "FAILED"
)

// MessageLevel is the severity of a single activity message.
type MessageLevel string

const (
	LevelInfo  MessageLevel = "INFO"
	LevelError MessageLevel = "ERROR"
)

// ActivityDetails stores message-specific information as JSON
type ActivityDetails map[string]any

// Value implements the driver.Valuer interface for database storage
func (a ActivityDetails) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil //nolint:nilnil // nil driver.Value represents SQL NULL
	}
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface for database retrieval
func (a *ActivityDetails) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal ActivityDetails value: %v", value)
	}

	result := make(ActivityDetails)
	if err := json.Unmarshal(data, &result); err != nil {
		return err
	}

	*a = result
	return nil
}

// ActivityLog is the per-flow audit record: one row per authorization
// attempt, closed as SUCCESS or FAILED when the flow ends.
type ActivityLog struct {
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`

	Action ActivityAction `gorm:"type:varchar(20);index;not null" json:"action"`
	State  ActivityState  `gorm:"type:varchar(20);index;not null" json:"state"`

	ProviderConfigKey string `gorm:"type:varchar(255);index" json:"provider_config_key"`
	Provider          string `gorm:"type:varchar(100)"       json:"provider"`
	ConnectionID      string `gorm:"type:varchar(255);index" json:"connection_id"`
	EnvironmentID     string `gorm:"type:varchar(36);index"  json:"environment_id"`

	// Timestamps (no UpdatedAt beyond state transitions - logs are append-only)
	StartedAt time.Time  `gorm:"index;not null" json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `gorm:"index;not null" json:"created_at"`
}

// TableName specifies the table name for GORM
func (ActivityLog) TableName() string {
	return "activity_logs"
}

// ActivityMessage is one line appended to an activity log.
type ActivityMessage struct {
	ID            uint            `gorm:"primaryKey;autoIncrement"    json:"id"`
	ActivityLogID string          `gorm:"type:varchar(36);index;not null" json:"activity_log_id"`
	Level         MessageLevel    `gorm:"type:varchar(10);not null"   json:"level"`
	Message       string          `gorm:"type:text;not null"          json:"message"`
	Details       ActivityDetails `gorm:"type:json"                   json:"details"`
	CreatedAt     time.Time       `gorm:"index;not null"              json:"created_at"`
}

// TableName specifies the table name for GORM
func (ActivityMessage) TableName() string {
	return "activity_messages"
}
