package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProfileStatusActive   = "active"
	ProfileStatusInactive = "inactive"
)

// AdvertiserProfile is an Amazon Advertising profile synced for a user.
// Rows are unique on (user_id, profile_id) and never hard-deleted.
type AdvertiserProfile struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	UserID      string     `db:"user_id"      json:"user_id"`
	ProfileID   string     `db:"profile_id"   json:"profile_id"`
	AccountName string     `db:"account_name" json:"account_name"`
	Marketplace string     `db:"marketplace"  json:"marketplace"`
	AccountType string     `db:"account_type" json:"account_type"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	LastSynced  *time.Time `db:"last_synced"  json:"last_synced,omitempty"`
	Status      string     `db:"status"       json:"status"`
}
