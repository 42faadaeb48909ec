package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TaskKindSyncProfiles  = "sync_profiles"
	TaskKindSyncCampaigns = "sync_campaigns"
)

// Task statuses as tracked in the cache.
const (
	TaskStatusQueued    = "queued"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
	TaskStatusDead      = "dead"
)

// SyncTask is a unit of background sync work handed from the request path
// to the queue worker. ProfileID is only meaningful for campaign syncs.
type SyncTask struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"`
	UserID     string    `json:"user_id"`
	ProfileID  string    `json:"profile_id,omitempty"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewSyncTask returns a first-attempt task stamped with the current time.
func NewSyncTask(kind, userID, profileID string) *SyncTask {
	return &SyncTask{
		ID:         uuid.New(),
		Kind:       kind,
		UserID:     userID,
		ProfileID:  profileID,
		EnqueuedAt: time.Now().UTC(),
	}
}
