// Package models provides data model definitions for the StoryNest sync core.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// ID is a wrapper around string for entity identifier type safety.
// Locally-created entities carry a client-generated UUID until a successful
// remote create replaces it with the server-assigned identifier.
type ID string

// Value implements driver.Valuer for ID.
func (id ID) Value() (driver.Value, error) {
	return string(id), nil
}

// Scan implements sql.Scanner for ID.
func (id *ID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*id = ""
	case string:
		*id = ID(v)
	case []byte:
		*id = ID(v)
	default:
		return fmt.Errorf("cannot scan %T into ID", value)
	}
	return nil
}

// String returns the string representation of the ID.
func (id ID) String() string {
	return string(id)
}

// Now returns the current time as unix seconds, the storage representation
// used for every timestamp column.
func Now() int64 {
	return time.Now().Unix()
}
