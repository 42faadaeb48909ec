package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/adsconnect/adsconnect/internal/store"
	"github.com/adsconnect/adsconnect/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("adsconnect_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newToken(userID, access string, createdAt time.Time) *models.TokenRecord {
	return &models.TokenRecord{
		ID:           uuid.New(),
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: "refresh-" + access,
		ExpiresAt:    createdAt.Add(time.Hour),
		CreatedAt:    createdAt,
		Scope:        models.DefaultTokenScope,
	}
}

// --- Token Tests ---

func TestGetActiveToken_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	_, err := s.GetActiveToken(context.Background(), "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)

	ok, err := s.HasActiveToken(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReplaceActiveToken_DeactivatesPrevious(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := newToken("user-1", "A1", now.Add(-time.Minute))
	require.NoError(t, s.ReplaceActiveToken(ctx, first))

	second := newToken("user-1", "A2", now)
	require.NoError(t, s.ReplaceActiveToken(ctx, second))
	assert.True(t, second.IsActive)

	got, err := s.GetActiveToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, "A2", got.AccessToken)
	assert.Equal(t, models.DefaultTokenScope, got.Scope)

	var active int
	err = pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM amazon_tokens WHERE user_id = $1 AND is_active`, "user-1").Scan(&active)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}

func TestUpdateRefreshedToken(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	rec := newToken("user-1", "A1", now.Add(-2*time.Hour))
	require.NoError(t, s.ReplaceActiveToken(ctx, rec))

	t.Run("keeps refresh token when none returned", func(t *testing.T) {
		err := s.UpdateRefreshedToken(ctx, rec.ID, store.TokenRefresh{
			AccessToken:   "A2",
			ExpiresAt:     now.Add(time.Hour),
			LastRefreshed: now,
		})
		require.NoError(t, err)

		got, err := s.GetActiveToken(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "A2", got.AccessToken)
		assert.Equal(t, "refresh-A1", got.RefreshToken)
		assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))
		require.NotNil(t, got.LastRefreshed)
		assert.True(t, got.LastRefreshed.Equal(now))
	})

	t.Run("stores rotated refresh token", func(t *testing.T) {
		err := s.UpdateRefreshedToken(ctx, rec.ID, store.TokenRefresh{
			AccessToken:   "A3",
			RefreshToken:  "R-new",
			ExpiresAt:     now.Add(2 * time.Hour),
			LastRefreshed: now,
		})
		require.NoError(t, err)

		got, err := s.GetActiveToken(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "R-new", got.RefreshToken)
	})

	t.Run("unknown id", func(t *testing.T) {
		err := s.UpdateRefreshedToken(ctx, uuid.New(), store.TokenRefresh{AccessToken: "x", ExpiresAt: now})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestDeactivateTokens(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.ReplaceActiveToken(ctx, newToken("user-1", "A1", time.Now().UTC())))
	require.NoError(t, s.DeactivateTokens(ctx, "user-1"))

	ok, err := s.HasActiveToken(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deactivating a user with no tokens is a no-op.
	require.NoError(t, s.DeactivateTokens(ctx, "user-2"))
}

// --- Advertiser Profile Tests ---

func TestUpsertAdvertiserProfile_UpdatesInPlace(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	p := &models.AdvertiserProfile{
		ID: uuid.New(), UserID: "user-1", ProfileID: "111", AccountName: "Acme",
		Marketplace: "US", AccountType: "seller", CreatedAt: now, LastSynced: &now,
		Status: models.ProfileStatusActive,
	}
	require.NoError(t, s.UpsertAdvertiserProfile(ctx, p))

	again := *p
	again.ID = uuid.New()
	again.AccountName = "Acme Renamed"
	require.NoError(t, s.UpsertAdvertiserProfile(ctx, &again))

	other := &models.AdvertiserProfile{
		ID: uuid.New(), UserID: "user-1", ProfileID: "222", AccountName: "Beta",
		Marketplace: "DE", AccountType: "vendor", CreatedAt: now, LastSynced: &now,
		Status: models.ProfileStatusActive,
	}
	require.NoError(t, s.UpsertAdvertiserProfile(ctx, other))

	profiles, err := s.ListActiveProfiles(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "Acme Renamed", profiles[0].AccountName)
	assert.Equal(t, p.ID, profiles[0].ID)
	assert.Equal(t, "Beta", profiles[1].AccountName)
}

func TestListActiveProfiles_ExcludesInactive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.UpsertAdvertiserProfile(ctx, &models.AdvertiserProfile{
		ID: uuid.New(), UserID: "user-1", ProfileID: "111", AccountName: "Old",
		Marketplace: "US", AccountType: "seller", CreatedAt: now, Status: models.ProfileStatusInactive,
	}))

	profiles, err := s.ListActiveProfiles(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

// --- Campaign Tests ---

func TestUpsertCampaign_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	c := &models.Campaign{
		ID: uuid.New(), UserID: "user-1", ProfileID: "111", CampaignID: "9001",
		Name: "Spring", Type: "sponsoredProducts", TargetingType: "manual",
		DailyBudget: 10.5, StartDate: "20240101", State: "enabled", LastSynced: now,
	}
	require.NoError(t, s.UpsertCampaign(ctx, c))

	updated := *c
	updated.ID = uuid.New()
	updated.State = "paused"
	updated.DailyBudget = 20
	require.NoError(t, s.UpsertCampaign(ctx, &updated))

	campaigns, err := s.ListCampaigns(ctx, "user-1", "111")
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, c.ID, campaigns[0].ID)
	assert.Equal(t, "paused", campaigns[0].State)
	assert.InDelta(t, 20.0, campaigns[0].DailyBudget, 0.0001)
}

// --- API Key Tests ---

func TestAPIKeyLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	key := &models.APIKey{
		ID: uuid.New(), UserID: "user-1", Name: "ci", KeyHash: "$2a$10$hash",
		KeyPrefix: "ak_12345", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	found, err := s.GetAPIKeyByPrefix(ctx, "ak_12345")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, key.ID, found[0].ID)
	assert.Nil(t, found[0].LastUsed)

	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))
	keys, err := s.ListAPIKeys(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.EqualValues(t, 1, keys[0].RequestCount)
	assert.NotNil(t, keys[0].LastUsed)

	t.Run("other user cannot revoke", func(t *testing.T) {
		err := s.RevokeAPIKey(ctx, key.ID, "user-2")
		assert.ErrorIs(t, err, store.ErrNotFound)

		found, err := s.GetAPIKeyByPrefix(ctx, "ak_12345")
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})

	t.Run("owner revokes", func(t *testing.T) {
		require.NoError(t, s.RevokeAPIKey(ctx, key.ID, "user-1"))

		found, err := s.GetAPIKeyByPrefix(ctx, "ak_12345")
		require.NoError(t, err)
		assert.Empty(t, found)

		keys, err := s.ListAPIKeys(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.False(t, keys[0].IsActive)
	})

	t.Run("revoking twice is not found", func(t *testing.T) {
		assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID, "user-1"), store.ErrNotFound)
	})
}

func TestCreateAPIKey_DuplicateID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	key := &models.APIKey{
		ID: uuid.New(), UserID: "user-1", Name: "ci", KeyHash: "h", KeyPrefix: "ak_aaaaa",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))
	assert.ErrorIs(t, s.CreateAPIKey(ctx, key), store.ErrDuplicateKey)
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	assert.NoError(t, s.Ping(context.Background()))
}
