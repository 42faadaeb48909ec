// Package syncer pulls advertiser profiles and campaigns from the Amazon
// Advertising API into the store.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/adsconnect/adsconnect/internal/amazon"
	"github.com/adsconnect/adsconnect/internal/metrics"
	"github.com/adsconnect/adsconnect/internal/oauth"
	"github.com/adsconnect/adsconnect/internal/store"
	"github.com/adsconnect/adsconnect/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultAccountName = "Unknown Account"
	defaultMarketplace = "unknown"
	defaultAccountType = "seller"
)

// ProfileSyncResult reports how many profiles the provider returned.
type ProfileSyncResult struct {
	Count int
}

// CampaignSyncResult is the per-profile outcome of a campaign sync.
// Failed profiles are reported in Errors rather than failing the call.
type CampaignSyncResult struct {
	Results            []ProfileCampaigns `json:"results"`
	Errors             []ProfileError     `json:"errors,omitempty"`
	ProfilesProcessed  int                `json:"profilesProcessed"`
	ProfilesWithErrors int                `json:"profilesWithErrors"`
}

type ProfileCampaigns struct {
	ProfileID      string `json:"profileId"`
	CampaignsCount int    `json:"campaignsCount"`
}

type ProfileError struct {
	ProfileID string `json:"profileId"`
	Error     string `json:"error"`
	Status    int    `json:"status"`
}

// Store is the subset of persistence the synchronizer needs.
type Store interface {
	store.ProfileStore
	store.CampaignStore
}

// Service synchronizes profiles and campaigns for a user.
type Service struct {
	tokens      oauth.TokenRefresher
	amazon      amazon.Client
	store       Store
	concurrency int
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(tokens oauth.TokenRefresher, client amazon.Client, st Store, concurrency int, m *metrics.Metrics, logger *zap.Logger) *Service {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		tokens:      tokens,
		amazon:      client,
		store:       st,
		concurrency: concurrency,
		metrics:     m,
		logger:      logger.Named("syncer"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SyncProfiles lists the user's advertiser profiles and upserts each one.
// A failed upsert is logged and does not affect the others.
func (s *Service) SyncProfiles(ctx context.Context, userID string) (*ProfileSyncResult, error) {
	tok, err := s.tokens.EnsureValidToken(ctx, userID)
	if err != nil {
		s.metrics.RecordSync("profiles", metrics.OutcomeFailure)
		return nil, err
	}

	profiles, err := s.amazon.ListProfiles(ctx, tok.AccessToken)
	if err != nil {
		s.metrics.RecordSync("profiles", metrics.OutcomeFailure)
		s.logger.Warn("listing profiles failed", zap.String("user_id", userID), zap.Error(err))
		return nil, upstreamError(err)
	}

	now := s.now()
	g := s.group()
	for _, p := range profiles {
		row := profileRow(userID, p, now)
		g.Go(func() error {
			if err := s.store.UpsertAdvertiserProfile(ctx, row); err != nil {
				s.logger.Error("upserting profile failed",
					zap.String("user_id", userID),
					zap.String("profile_id", row.ProfileID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.RecordSync("profiles", metrics.OutcomeSuccess)
	s.logger.Info("profiles synced", zap.String("user_id", userID), zap.Int("count", len(profiles)))
	return &ProfileSyncResult{Count: len(profiles)}, nil
}

// SyncCampaigns syncs campaigns for profileID, or for every active profile
// of the user when profileID is empty. Profiles are processed one at a time.
func (s *Service) SyncCampaigns(ctx context.Context, userID, profileID string) (*CampaignSyncResult, error) {
	tok, err := s.tokens.EnsureValidToken(ctx, userID)
	if err != nil {
		s.metrics.RecordSync("campaigns", metrics.OutcomeFailure)
		return nil, err
	}

	profileIDs, err := s.profileSet(ctx, userID, profileID)
	if err != nil {
		s.metrics.RecordSync("campaigns", metrics.OutcomeFailure)
		return nil, err
	}

	result := &CampaignSyncResult{
		Results:           []ProfileCampaigns{},
		ProfilesProcessed: len(profileIDs),
	}

	for _, pid := range profileIDs {
		campaigns, err := s.amazon.ListCampaigns(ctx, tok.AccessToken, pid)
		if err != nil {
			ue := upstreamError(err)
			s.logger.Warn("listing campaigns failed",
				zap.String("user_id", userID),
				zap.String("profile_id", pid),
				zap.Int("status", ue.Status),
				zap.Error(err),
			)
			result.Errors = append(result.Errors, ProfileError{ProfileID: pid, Error: ue.Message, Status: ue.Status})
			continue
		}

		s.upsertCampaigns(ctx, userID, pid, campaigns)
		result.Results = append(result.Results, ProfileCampaigns{ProfileID: pid, CampaignsCount: len(campaigns)})
	}

	result.ProfilesWithErrors = len(result.Errors)
	s.metrics.RecordCampaignProfileErrors(result.ProfilesWithErrors)
	s.metrics.RecordSync("campaigns", metrics.OutcomeSuccess)
	s.logger.Info("campaigns synced",
		zap.String("user_id", userID),
		zap.Int("profiles_processed", result.ProfilesProcessed),
		zap.Int("profiles_with_errors", result.ProfilesWithErrors),
	)
	return result, nil
}

func (s *Service) profileSet(ctx context.Context, userID, profileID string) ([]string, error) {
	if profileID != "" {
		return []string{profileID}, nil
	}

	profiles, err := s.store.ListActiveProfiles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, ErrNoProfiles
	}

	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ProfileID)
	}
	return ids, nil
}

func (s *Service) upsertCampaigns(ctx context.Context, userID, profileID string, campaigns []amazon.Campaign) {
	now := s.now()
	g := s.group()
	for _, c := range campaigns {
		row := &models.Campaign{
			ID:            uuid.New(),
			UserID:        userID,
			ProfileID:     profileID,
			CampaignID:    c.CampaignID,
			Name:          c.Name,
			Type:          c.CampaignType,
			TargetingType: c.TargetingType,
			DailyBudget:   c.DailyBudget,
			StartDate:     c.StartDate,
			State:         c.State,
			LastSynced:    now,
		}
		g.Go(func() error {
			if err := s.store.UpsertCampaign(ctx, row); err != nil {
				s.logger.Error("upserting campaign failed",
					zap.String("user_id", userID),
					zap.String("profile_id", profileID),
					zap.String("campaign_id", row.CampaignID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) group() *errgroup.Group {
	g := &errgroup.Group{}
	g.SetLimit(s.concurrency)
	return g
}

func profileRow(userID string, p amazon.Profile, now time.Time) *models.AdvertiserProfile {
	name := p.AccountName
	if name == "" {
		name = p.AccountInfo.Name
	}
	if name == "" {
		name = defaultAccountName
	}

	marketplace := p.CountryCode
	if marketplace == "" {
		marketplace = defaultMarketplace
	}

	accountType := p.AccountInfo.Type
	if accountType == "" {
		accountType = defaultAccountType
	}

	return &models.AdvertiserProfile{
		ID:          uuid.New(),
		UserID:      userID,
		ProfileID:   p.ProfileID,
		AccountName: name,
		Marketplace: marketplace,
		AccountType: accountType,
		CreatedAt:   now,
		LastSynced:  &now,
		Status:      models.ProfileStatusActive,
	}
}
