package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BaseModel contains common fields for all models
type BaseModel struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// TenantModel extends BaseModel with the owning tenant. Every record except
// Tenant itself embeds it.
type TenantModel struct {
	BaseModel
	TenantID uuid.UUID `json:"tenantId" db:"tenant_id"`
}

// SoftDelete marks a record as deleted without removing it.
type SoftDelete struct {
	DeletedAt *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
}

// IsDeleted reports whether the record carries a deletion marker.
func (s SoftDelete) IsDeleted() bool {
	return s.DeletedAt != nil
}

// Variables represents a JSON object for storing arbitrary data
type Variables map[string]interface{}

// Value implements driver.Valuer. The JSON is returned as a string so it binds
// to both jsonb and text columns.
func (v Variables) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (v *Variables) Scan(value interface{}) error {
	if value == nil {
		*v = make(Variables)
		return nil
	}

	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, v)
	case string:
		return json.Unmarshal([]byte(data), v)
	default:
		return fmt.Errorf("variables: unsupported type %T", value)
	}
}

// StringList is a JSON array of strings stored in a single column.
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(value interface{}) error {
	switch data := value.(type) {
	case nil:
		*l = StringList{}
		return nil
	case []byte:
		return json.Unmarshal(data, l)
	case string:
		return json.Unmarshal([]byte(data), l)
	default:
		return fmt.Errorf("string list: unsupported type %T", value)
	}
}

// Now returns the current time in UTC truncated to the precision the stores
// keep, so values read back compare equal to values written.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
