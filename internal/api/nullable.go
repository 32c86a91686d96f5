package api

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

var jsonNull = []byte("null")

// optionalID records whether a JSON field was present, so an explicit null
// can clear a reference while an absent field leaves it alone.
type optionalID struct {
	Set   bool
	Value *uuid.UUID
}

func (o *optionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, jsonNull) {
		o.Value = nil
		return nil
	}
	var id uuid.UUID
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	o.Value = &id
	return nil
}

// optionalTime is optionalID for timestamps.
type optionalTime struct {
	Set   bool
	Value *time.Time
}

func (o *optionalTime) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, jsonNull) {
		o.Value = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	o.Value = &t
	return nil
}
