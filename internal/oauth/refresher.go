package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adsconnect/adsconnect/internal/amazon"
	"github.com/adsconnect/adsconnect/internal/config"
	"github.com/adsconnect/adsconnect/internal/metrics"
	"github.com/adsconnect/adsconnect/internal/store"
	"github.com/adsconnect/adsconnect/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// refreshFlightTimeout bounds a shared refresh that no caller is waiting on.
const refreshFlightTimeout = 2 * time.Minute

// ValidToken is an access token that was unexpired when returned, plus the
// client id the Advertising API expects alongside it.
type ValidToken struct {
	AccessToken string
	ClientID    string
}

// TokenRefresher is what callers that need a usable access token depend on.
type TokenRefresher interface {
	EnsureValidToken(ctx context.Context, userID string) (*ValidToken, error)
}

// Refresher returns a user's access token, refreshing it first when expired.
type Refresher struct {
	tokens     store.TokenStore
	amazon     amazon.Client
	configured bool
	metrics    *metrics.Metrics
	logger     *zap.Logger
	group      singleflight.Group
	now        func() time.Time
}

func NewRefresher(tokens store.TokenStore, client amazon.Client, cfg config.AmazonConfig, m *metrics.Metrics, logger *zap.Logger) *Refresher {
	return &Refresher{
		tokens:     tokens,
		amazon:     client,
		configured: cfg.HasClientCredentials(),
		metrics:    m,
		logger:     logger.Named("refresher"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// EnsureValidToken loads the user's active token and refreshes it synchronously
// if expires_at <= now. Concurrent callers for the same user share one refresh.
func (r *Refresher) EnsureValidToken(ctx context.Context, userID string) (*ValidToken, error) {
	rec, err := r.tokens.GetActiveToken(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}

	if !r.configured {
		return nil, ErrConfiguration
	}

	if !rec.Expired(r.now()) {
		return &ValidToken{AccessToken: rec.AccessToken, ClientID: r.amazon.ClientID()}, nil
	}

	ch := r.group.DoChan(userID, func() (interface{}, error) {
		// The flight is shared, and a grant Amazon has answered must be
		// persisted even if the caller that started it goes away.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshFlightTimeout)
		defer cancel()

		// Another flight may have refreshed the record since it was read.
		current, err := r.tokens.GetActiveToken(fctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotConnected
		}
		if err != nil {
			return nil, fmt.Errorf("loading token: %w", err)
		}
		if !current.Expired(r.now()) {
			return current.AccessToken, nil
		}
		return r.refresh(fctx, current)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return &ValidToken{AccessToken: res.Val.(string), ClientID: r.amazon.ClientID()}, nil
	}
}

func (r *Refresher) refresh(ctx context.Context, rec *models.TokenRecord) (string, error) {
	tok, err := r.amazon.RefreshToken(ctx, rec.RefreshToken)
	if err != nil {
		r.metrics.RecordTokenRefresh(metrics.OutcomeFailure)
		r.logger.Warn("token refresh failed", zap.String("user_id", rec.UserID), zap.Error(err))
		if pe, ok := amazon.AsProviderError(err); ok && errors.Is(err, amazon.ErrGrantRejected) {
			return "", fmt.Errorf("%w: %s", ErrRefreshFailed, pe.Message())
		}
		return "", fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	now := r.now()
	upd := store.TokenRefresh{
		AccessToken:   tok.AccessToken,
		RefreshToken:  tok.RefreshToken,
		ExpiresAt:     now.Add(tok.ExpiresIn),
		LastRefreshed: now,
	}
	if err := r.tokens.UpdateRefreshedToken(ctx, rec.ID, upd); err != nil {
		r.metrics.RecordTokenRefresh(metrics.OutcomeFailure)
		return "", fmt.Errorf("persisting refreshed token: %w", err)
	}

	r.metrics.RecordTokenRefresh(metrics.OutcomeSuccess)
	r.logger.Info("token refreshed",
		zap.String("user_id", rec.UserID),
		zap.Time("expires_at", upd.ExpiresAt),
		zap.Bool("rotated", tok.RefreshToken != ""),
	)
	return tok.AccessToken, nil
}

var _ TokenRefresher = (*Refresher)(nil)
