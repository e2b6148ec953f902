package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Vector holds an embedding persisted as a JSON float array.
type Vector []float64

// Value marshals the vector into JSON for the database.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Scan decodes a JSON column into the vector.
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}

	var raw []byte
	switch val := value.(type) {
	case string:
		raw = []byte(val)
	case []byte:
		raw = val
	default:
		return fmt.Errorf("vector: unsupported scan type %T", value)
	}

	result := Vector{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	*v = result
	return nil
}
