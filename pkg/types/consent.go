package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ConsentRecord captures one recorded consent decision.
type ConsentRecord struct {
	Consented  bool           `json:"consented"`
	RecordedAt time.Time      `json:"recorded_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ConsentData maps a consent type (e.g. "marketing_email") to its latest record.
type ConsentData map[string]ConsentRecord

// Value marshals the consent map into JSON for the database.
func (c ConsentData) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	buf, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Scan decodes a JSON column into the consent map.
func (c *ConsentData) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("consent data: unsupported scan type %T", value)
	}

	result := make(ConsentData)
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	*c = result
	return nil
}
