// Package connect manages a user's Amazon connection and API keys.
package connect

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adsconnect/adsconnect/internal/oauth"
	"github.com/adsconnect/adsconnect/internal/store"
	"github.com/adsconnect/adsconnect/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyPrefix starts every raw API key.
	KeyPrefix = "ak_"
	// LookupPrefixLen is the number of leading raw-key characters stored in clear for lookup.
	LookupPrefixLen = 8

	keyRandomBytes = 16
)

// Store is the subset of persistence the facade needs.
type Store interface {
	store.TokenStore
	store.ProfileStore
	store.APIKeyStore
}

// APIKeyResponse carries a newly issued key. Key is the raw value and is
// never retrievable again.
type APIKeyResponse struct {
	Key    string         `json:"key"`
	APIKey *models.APIKey `json:"apiKey"`
}

type Service struct {
	store      Store
	bcryptCost int
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(st Store, logger *zap.Logger) *Service {
	return &Service{
		store:      st,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger.Named("connect"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CheckConnectionStatus reports whether the user has an active Amazon token.
func (s *Service) CheckConnectionStatus(ctx context.Context, userID string) (bool, error) {
	ok, err := s.store.HasActiveToken(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("checking connection: %w", err)
	}
	return ok, nil
}

// Disconnect deactivates all of the user's tokens. Disconnecting twice is fine.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.store.DeactivateTokens(ctx, userID); err != nil {
		return fmt.Errorf("disconnecting: %w", err)
	}
	s.logger.Info("amazon account disconnected", zap.String("user_id", userID))
	return nil
}

// GenerateAPIKey issues a new key for a connected user.
func (s *Service) GenerateAPIKey(ctx context.Context, userID, name string) (*APIKeyResponse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: key name is required", oauth.ErrInvalidRequest)
	}

	connected, err := s.store.HasActiveToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("checking connection: %w", err)
	}
	if !connected {
		return nil, oauth.ErrNotConnected
	}

	raw, err := newRawKey()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing api key: %w", err)
	}

	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:LookupPrefixLen],
		CreatedAt: s.now(),
		IsActive:  true,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("creating api key: %w", err)
	}

	s.logger.Info("api key created",
		zap.String("user_id", userID),
		zap.String("key_id", key.ID.String()),
		zap.String("key_prefix", key.KeyPrefix),
	)
	return &APIKeyResponse{Key: raw, APIKey: key}, nil
}

func (s *Service) ListAPIKeys(ctx context.Context, userID string) ([]*models.APIKey, error) {
	keys, err := s.store.ListAPIKeys(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey deactivates keyID if it belongs to userID. Revoking an unknown,
// already revoked, or foreign key does nothing.
func (s *Service) RevokeAPIKey(ctx context.Context, userID string, keyID uuid.UUID) error {
	err := s.store.RevokeAPIKey(ctx, keyID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	s.logger.Info("api key revoked", zap.String("user_id", userID), zap.String("key_id", keyID.String()))
	return nil
}

// ListAdvertisers returns the user's active advertiser profiles by account name.
func (s *Service) ListAdvertisers(ctx context.Context, userID string) ([]*models.AdvertiserProfile, error) {
	profiles, err := s.store.ListActiveProfiles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing advertisers: %w", err)
	}
	return profiles, nil
}

func newRawKey() (string, error) {
	buf := make([]byte, keyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(buf), nil
}
