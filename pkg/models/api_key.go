package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a user-issued key for programmatic access.
// Raw keys are shown once at creation; only the bcrypt hash is stored.
type APIKey struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	UserID       string     `db:"user_id"       json:"user_id"`
	Name         string     `db:"name"          json:"name"`
	KeyHash      string     `db:"key_hash"      json:"-"`
	KeyPrefix    string     `db:"key_prefix"    json:"key_prefix"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	LastUsed     *time.Time `db:"last_used"     json:"last_used,omitempty"`
	IsActive     bool       `db:"is_active"     json:"is_active"`
	RequestCount int64      `db:"request_count" json:"request_count"`
}
