package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign is an advertising campaign under one of a user's profiles.
// Rows are unique on (user_id, profile_id, campaign_id).
type Campaign struct {
	ID            uuid.UUID `db:"id"             json:"id"`
	UserID        string    `db:"user_id"        json:"user_id"`
	ProfileID     string    `db:"profile_id"     json:"profile_id"`
	CampaignID    string    `db:"campaign_id"    json:"campaign_id"`
	Name          string    `db:"name"           json:"name"`
	Type          string    `db:"type"           json:"type"`
	TargetingType string    `db:"targeting_type" json:"targeting_type"`
	DailyBudget   float64   `db:"daily_budget"   json:"daily_budget"`
	StartDate     string    `db:"start_date"     json:"start_date"`
	State         string    `db:"state"          json:"state"`
	LastSynced    time.Time `db:"last_synced"    json:"last_synced"`
}
