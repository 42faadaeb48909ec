package store

import (
	"context"
	"errors"
	"time"

	"github.com/adsconnect/adsconnect/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// TokenStore persists Amazon OAuth token records.
type TokenStore interface {
	// GetActiveToken returns the most recently created active token for the user.
	GetActiveToken(ctx context.Context, userID string) (*models.TokenRecord, error)
	HasActiveToken(ctx context.Context, userID string) (bool, error)
	// ReplaceActiveToken deactivates the user's tokens and inserts rec in one transaction.
	ReplaceActiveToken(ctx context.Context, rec *models.TokenRecord) error
	UpdateRefreshedToken(ctx context.Context, id uuid.UUID, upd TokenRefresh) error
	DeactivateTokens(ctx context.Context, userID string) error
}

// ProfileStore persists advertiser profiles.
type ProfileStore interface {
	UpsertAdvertiserProfile(ctx context.Context, p *models.AdvertiserProfile) error
	// ListActiveProfiles returns the user's active profiles ordered by account name.
	ListActiveProfiles(ctx context.Context, userID string) ([]*models.AdvertiserProfile, error)
}

// CampaignStore persists campaigns.
type CampaignStore interface {
	UpsertCampaign(ctx context.Context, c *models.Campaign) error
	ListCampaigns(ctx context.Context, userID, profileID string) ([]*models.Campaign, error)
}

// APIKeyStore persists user API keys.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	ListAPIKeys(ctx context.Context, userID string) ([]*models.APIKey, error)
	// RevokeAPIKey deactivates the key only if it belongs to userID.
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	TokenStore
	ProfileStore
	CampaignStore
	APIKeyStore
}

// TokenRefresh carries the fields rewritten by a successful refresh-token grant.
// An empty RefreshToken keeps the stored one.
type TokenRefresh struct {
	AccessToken   string
	RefreshToken  string
	ExpiresAt     time.Time
	LastRefreshed time.Time
}
