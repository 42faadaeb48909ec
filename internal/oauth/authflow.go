package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adsconnect/adsconnect/internal/amazon"
	"github.com/adsconnect/adsconnect/internal/config"
	"github.com/adsconnect/adsconnect/internal/identity"
	"github.com/adsconnect/adsconnect/internal/store"
	"github.com/adsconnect/adsconnect/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Enqueuer hands a background sync task to the worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *models.SyncTask) error
}

// AuthFlow completes the Login with Amazon authorization-code flow.
type AuthFlow struct {
	verifier identity.Verifier
	tokens   store.TokenStore
	amazon   amazon.Client
	queue    Enqueuer
	cfg      config.AmazonConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewAuthFlow(verifier identity.Verifier, tokens store.TokenStore, client amazon.Client, queue Enqueuer, cfg config.AmazonConfig, logger *zap.Logger) *AuthFlow {
	return &AuthFlow{
		verifier: verifier,
		tokens:   tokens,
		amazon:   client,
		queue:    queue,
		cfg:      cfg,
		logger:   logger.Named("authflow"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AuthorizeURL returns the consent URL the user's browser is sent to.
// state must be the caller's session token so ExchangeCode can resolve the user.
func (f *AuthFlow) AuthorizeURL(state string) (string, error) {
	if f.cfg.ClientID == "" || f.cfg.RedirectURI == "" {
		return "", ErrConfiguration
	}
	if state == "" {
		return "", fmt.Errorf("%w: state is required", ErrInvalidRequest)
	}
	return f.amazon.AuthorizeURL(state), nil
}

// ExchangeCode trades an authorization code for tokens and stores them as the
// user's only active record. A profile sync is queued on success.
func (f *AuthFlow) ExchangeCode(ctx context.Context, code, state string) (*models.TokenRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code is required", ErrInvalidRequest)
	}
	if !f.cfg.HasClientCredentials() || f.cfg.RedirectURI == "" {
		return nil, ErrConfiguration
	}

	userID, err := f.verifier.Verify(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	tok, err := f.amazon.ExchangeCode(ctx, code)
	if err != nil {
		f.logger.Warn("code exchange failed", zap.String("user_id", userID), zap.Error(err))
		if pe, ok := amazon.AsProviderError(err); ok && errors.Is(err, amazon.ErrGrantRejected) {
			return nil, fmt.Errorf("%w: %s", ErrExchangeFailed, pe.Message())
		}
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	scope := f.cfg.Scope
	if scope == "" {
		scope = models.DefaultTokenScope
	}
	now := f.now()
	rec := &models.TokenRecord{
		ID:           uuid.New(),
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    now.Add(tok.ExpiresIn),
		CreatedAt:    now,
		Scope:        scope,
	}
	if err := f.tokens.ReplaceActiveToken(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}

	f.logger.Info("amazon account connected", zap.String("user_id", userID), zap.Time("expires_at", rec.ExpiresAt))

	task := models.NewSyncTask(models.TaskKindSyncProfiles, userID, "")
	if err := f.queue.Enqueue(context.WithoutCancel(ctx), task); err != nil {
		f.logger.Error("failed to enqueue profile sync", zap.String("user_id", userID), zap.Error(err))
	}

	return rec, nil
}
