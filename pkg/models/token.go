package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTokenScope is the Amazon Advertising scope requested at authorization time.
const DefaultTokenScope = "advertising::campaign_management"

// TokenRecord is a user's Amazon OAuth token pair. Only the most recent active
// record for a user is authoritative.
type TokenRecord struct {
	ID            uuid.UUID  `db:"id"             json:"id"`
	UserID        string     `db:"user_id"        json:"user_id"`
	AccessToken   string     `db:"access_token"   json:"-"`
	RefreshToken  string     `db:"refresh_token"  json:"-"`
	ExpiresAt     time.Time  `db:"expires_at"     json:"expires_at"`
	CreatedAt     time.Time  `db:"created_at"     json:"created_at"`
	LastRefreshed *time.Time `db:"last_refreshed" json:"last_refreshed,omitempty"`
	IsActive      bool       `db:"is_active"      json:"is_active"`
	Scope         string     `db:"scope"          json:"scope"`
}

// Expired reports whether the access token can no longer be used at t.
func (r *TokenRecord) Expired(t time.Time) bool {
	return !r.ExpiresAt.After(t)
}
