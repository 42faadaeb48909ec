package oauth

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/adsconnect/adsconnect/internal/amazon"
	"github.com/adsconnect/adsconnect/internal/identity"
	"github.com/adsconnect/adsconnect/internal/store"
	"github.com/adsconnect/adsconnect/pkg/models"
	"github.com/google/uuid"
)

// --- token store ---

type mockTokenStore struct {
	mu       sync.Mutex
	records  map[string]*models.TokenRecord
	replaced []*models.TokenRecord
	updates  []store.TokenRefresh
	getErr   error
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{records: make(map[string]*models.TokenRecord)}
}

func (s *mockTokenStore) put(rec *models.TokenRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.UserID] = rec
}

func (s *mockTokenStore) GetActiveToken(_ context.Context, userID string) (*models.TokenRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok || !rec.IsActive {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *mockTokenStore) HasActiveToken(ctx context.Context, userID string) (bool, error) {
	_, err := s.GetActiveToken(ctx, userID)
	return err == nil, nil
}

func (s *mockTokenStore) ReplaceActiveToken(_ context.Context, rec *models.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.IsActive = true
	s.records[rec.UserID] = rec
	s.replaced = append(s.replaced, rec)
	return nil
}

func (s *mockTokenStore) UpdateRefreshedToken(ctx context.Context, id uuid.UUID, upd store.TokenRefresh) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, upd)
	for _, rec := range s.records {
		if rec.ID != id {
			continue
		}
		rec.AccessToken = upd.AccessToken
		if upd.RefreshToken != "" {
			rec.RefreshToken = upd.RefreshToken
		}
		rec.ExpiresAt = upd.ExpiresAt
		last := upd.LastRefreshed
		rec.LastRefreshed = &last
		return nil
	}
	return store.ErrNotFound
}

func (s *mockTokenStore) DeactivateTokens(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[userID]; ok {
		rec.IsActive = false
	}
	return nil
}

// --- amazon client ---

type mockAmazon struct {
	exchangeCalls atomic.Int32
	refreshCalls  atomic.Int32

	exchangeFn func(code string) (*amazon.Token, error)
	refreshFn  func(refreshToken string) (*amazon.Token, error)
}

func (m *mockAmazon) ClientID() string { return "client-1" }

func (m *mockAmazon) AuthorizeURL(state string) string {
	return "https://www.amazon.com/ap/oa?state=" + state
}

func (m *mockAmazon) ExchangeCode(_ context.Context, code string) (*amazon.Token, error) {
	m.exchangeCalls.Add(1)
	return m.exchangeFn(code)
}

func (m *mockAmazon) RefreshToken(_ context.Context, refreshToken string) (*amazon.Token, error) {
	m.refreshCalls.Add(1)
	return m.refreshFn(refreshToken)
}

func (m *mockAmazon) ListProfiles(_ context.Context, _ string) ([]amazon.Profile, error) {
	return nil, nil
}

func (m *mockAmazon) ListCampaigns(_ context.Context, _, _ string) ([]amazon.Campaign, error) {
	return nil, nil
}

// --- identity ---

type mockVerifier map[string]string

func (v mockVerifier) Verify(_ context.Context, token string) (string, error) {
	if userID, ok := v[token]; ok {
		return userID, nil
	}
	return "", identity.ErrInvalidToken
}

// --- queue ---

type mockQueue struct {
	mu    sync.Mutex
	tasks []*models.SyncTask
	err   error
}

func (q *mockQueue) Enqueue(_ context.Context, task *models.SyncTask) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}
