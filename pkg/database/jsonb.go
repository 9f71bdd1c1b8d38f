package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB marshals T into a jsonb column and back.
type JSONB[T any] struct {
	Val T
}

func (p *JSONB[T]) Scan(src any) error {
	if src == nil {
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("JSONB.Scan: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, &p.Val)
}

func (p JSONB[T]) Value() (driver.Value, error) {
	return json.Marshal(p.Val)
}

func (p *JSONB[T]) GetValue() T {
	return p.Val
}
