package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/adsconnect/adsconnect/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tokens ---

func (s *PostgresStore) GetActiveToken(ctx context.Context, userID string) (*models.TokenRecord, error) {
	var t models.TokenRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, access_token, refresh_token, expires_at, created_at, last_refreshed, is_active, scope
		 FROM amazon_tokens WHERE user_id = $1 AND is_active
		 ORDER BY created_at DESC LIMIT 1`, userID,
	).Scan(&t.ID, &t.UserID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.CreatedAt,
		&t.LastRefreshed, &t.IsActive, &t.Scope)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active token: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) HasActiveToken(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM amazon_tokens WHERE user_id = $1 AND is_active)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active token: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ReplaceActiveToken(ctx context.Context, rec *models.TokenRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace token: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE amazon_tokens SET is_active = FALSE WHERE user_id = $1 AND is_active`, rec.UserID); err != nil {
		return fmt.Errorf("deactivate previous tokens: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO amazon_tokens (id, user_id, access_token, refresh_token, expires_at, created_at, last_refreshed, is_active, scope)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)`,
		rec.ID, rec.UserID, rec.AccessToken, rec.RefreshToken, rec.ExpiresAt, rec.CreatedAt,
		rec.LastRefreshed, rec.Scope); err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace token: %w", err)
	}
	rec.IsActive = true
	return nil
}

func (s *PostgresStore) UpdateRefreshedToken(ctx context.Context, id uuid.UUID, upd TokenRefresh) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE amazon_tokens SET
		   access_token = $2,
		   refresh_token = COALESCE(NULLIF($3::text, ''), refresh_token),
		   expires_at = $4,
		   last_refreshed = $5
		 WHERE id = $1`,
		id, upd.AccessToken, upd.RefreshToken, upd.ExpiresAt, upd.LastRefreshed)
	if err != nil {
		return fmt.Errorf("update refreshed token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeactivateTokens(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE amazon_tokens SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return fmt.Errorf("deactivate tokens: %w", err)
	}
	return nil
}

// --- Advertiser Profiles ---

func (s *PostgresStore) UpsertAdvertiserProfile(ctx context.Context, p *models.AdvertiserProfile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO advertisers (id, user_id, profile_id, account_name, marketplace, account_type, created_at, last_synced, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id, profile_id) DO UPDATE SET
		   account_name = EXCLUDED.account_name,
		   marketplace = EXCLUDED.marketplace,
		   account_type = EXCLUDED.account_type,
		   last_synced = EXCLUDED.last_synced,
		   status = EXCLUDED.status`,
		p.ID, p.UserID, p.ProfileID, p.AccountName, p.Marketplace, p.AccountType,
		p.CreatedAt, p.LastSynced, p.Status)
	if err != nil {
		return fmt.Errorf("upsert advertiser profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActiveProfiles(ctx context.Context, userID string) ([]*models.AdvertiserProfile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, profile_id, account_name, marketplace, account_type, created_at, last_synced, status
		 FROM advertisers WHERE user_id = $1 AND status = $2 ORDER BY account_name ASC`,
		userID, models.ProfileStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active profiles: %w", err)
	}
	defer rows.Close()

	profiles := []*models.AdvertiserProfile{}
	for rows.Next() {
		var p models.AdvertiserProfile
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProfileID, &p.AccountName, &p.Marketplace,
			&p.AccountType, &p.CreatedAt, &p.LastSynced, &p.Status); err != nil {
			return nil, fmt.Errorf("scan advertiser profile: %w", err)
		}
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

// --- Campaigns ---

func (s *PostgresStore) UpsertCampaign(ctx context.Context, c *models.Campaign) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO campaigns (id, user_id, profile_id, campaign_id, name, type, targeting_type, daily_budget, start_date, state, last_synced)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (user_id, profile_id, campaign_id) DO UPDATE SET
		   name = EXCLUDED.name,
		   type = EXCLUDED.type,
		   targeting_type = EXCLUDED.targeting_type,
		   daily_budget = EXCLUDED.daily_budget,
		   start_date = EXCLUDED.start_date,
		   state = EXCLUDED.state,
		   last_synced = EXCLUDED.last_synced`,
		c.ID, c.UserID, c.ProfileID, c.CampaignID, c.Name, c.Type, c.TargetingType,
		c.DailyBudget, c.StartDate, c.State, c.LastSynced)
	if err != nil {
		return fmt.Errorf("upsert campaign: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, userID, profileID string) ([]*models.Campaign, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, profile_id, campaign_id, name, type, targeting_type, daily_budget, start_date, state, last_synced
		 FROM campaigns WHERE user_id = $1 AND profile_id = $2 ORDER BY name ASC`, userID, profileID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*models.Campaign{}
	for rows.Next() {
		var c models.Campaign
		if err := rows.Scan(&c.ID, &c.UserID, &c.ProfileID, &c.CampaignID, &c.Name, &c.Type,
			&c.TargetingType, &c.DailyBudget, &c.StartDate, &c.State, &c.LastSynced); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, &c)
	}
	return campaigns, rows.Err()
}

// --- API Keys ---

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, created_at, is_active, request_count)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE, 0)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	key.IsActive = true
	return nil
}

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, created_at, last_used, is_active, request_count
		 FROM api_keys WHERE key_prefix = $1 AND is_active`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, created_at, last_used, is_active, request_count
		 FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET is_active = FALSE WHERE id = $1 AND user_id = $2 AND is_active`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used = NOW(), request_count = request_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	keys := []*models.APIKey{}
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.CreatedAt,
			&k.LastUsed, &k.IsActive, &k.RequestCount); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
