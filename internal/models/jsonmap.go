package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringMap is a string-keyed map stored as a JSON column.
type StringMap map[string]string

// Value implements driver.Valuer for database storage.
func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string map: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for database retrieval.
func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(StringMap)
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for StringMap: %T", value)
	}

	return json.Unmarshal(data, m)
}

// Clone returns a shallow copy of the map (nil-safe).
func (m StringMap) Clone() StringMap {
	out := make(StringMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
