package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONArray is a slice stored as a JSON array in a TEXT column.
type JSONArray[T any] []T

// Scan implements the sql.Scanner interface for JSONArray
func (j *JSONArray[T]) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan type %T into JSONArray", value)
	}
	if len(raw) == 0 || string(raw) == "[]" {
		*j = JSONArray[T]{}
		return nil
	}
	return json.Unmarshal(raw, (*[]T)(j))
}

// Value implements the driver.Valuer interface for JSONArray
func (j JSONArray[T]) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]T(j))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
