package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	mw "github.com/adsconnect/adsconnect/internal/api/middleware"
	"github.com/adsconnect/adsconnect/internal/identity"
	"github.com/adsconnect/adsconnect/pkg/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

const (
	jwtSecret    = "session-secret"
	serviceToken = "svc-token-123"
	rawKey       = "ak_0123456789abcdef0123456789abcdef"
)

// --- Mock APIKeyStore ---

type mockKeyStore struct {
	mu       sync.Mutex
	keys     []*models.APIKey
	err      error
	prefixes []string
	used     chan uuid.UUID
}

func newMockKeyStore(keys ...*models.APIKey) *mockKeyStore {
	return &mockKeyStore{keys: keys, used: make(chan uuid.UUID, 4)}
}

func (m *mockKeyStore) CreateAPIKey(context.Context, *models.APIKey) error { return nil }

func (m *mockKeyStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	m.mu.Lock()
	m.prefixes = append(m.prefixes, prefix)
	m.mu.Unlock()
	return m.keys, m.err
}

func (m *mockKeyStore) ListAPIKeys(context.Context, string) ([]*models.APIKey, error) {
	return nil, nil
}

func (m *mockKeyStore) RevokeAPIKey(context.Context, uuid.UUID, string) error { return nil }

func (m *mockKeyStore) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	m.used <- id
	return nil
}

// --- Mock Cache ---

type mockCache struct {
	counter int64
	left    time.Duration
	err     error
	keys    []string
}

func (m *mockCache) Ping(context.Context) error { return nil }
func (m *mockCache) SetTaskStatus(context.Context, uuid.UUID, string, time.Duration) error {
	return nil
}
func (m *mockCache) GetTaskStatus(context.Context, uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (m *mockCache) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, time.Duration, error) {
	m.counter++
	m.keys = append(m.keys, key)
	return m.counter, m.left, m.err
}

// --- helpers ---

// captureHandler records the request context it was called with.
type captureHandler struct {
	r *http.Request
}

func (c *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.r = r
	w.WriteHeader(http.StatusOK)
}

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func hashKey(t *testing.T, raw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func sessionToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func newAuth(keys *mockKeyStore) *mw.Auth {
	return mw.NewAuth(keys, identity.NewJWTVerifier(jwtSecret), serviceToken, zap.NewNop())
}

func authRequest(bearer string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Code
}

// ========================================
// Auth Middleware Tests
// ========================================

func TestAuth_MissingAuthHeader(t *testing.T) {
	w := httptest.NewRecorder()
	newAuth(newMockKeyStore()).Authenticate(okHandler()).ServeHTTP(w, authRequest(""))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", errCode(t, w))
}

func TestAuth_InvalidBearerFormat(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()
	newAuth(newMockKeyStore()).Authenticate(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_Session(t *testing.T) {
	tok := sessionToken(t, "user-1", time.Now().Add(time.Hour))
	next := &captureHandler{}
	w := httptest.NewRecorder()
	newAuth(newMockKeyStore()).Authenticate(next).ServeHTTP(w, authRequest(tok))

	require.Equal(t, http.StatusOK, w.Code)
	userID, ok := mw.GetUserID(next.r)
	assert.True(t, ok)
	assert.Equal(t, "user-1", userID)

	session, ok := mw.GetSessionToken(next.r)
	assert.True(t, ok)
	assert.Equal(t, tok, session)
	assert.False(t, mw.IsService(next.r))
}

func TestAuth_ExpiredSession(t *testing.T) {
	tok := sessionToken(t, "user-1", time.Now().Add(-time.Minute))
	w := httptest.NewRecorder()
	newAuth(newMockKeyStore()).Authenticate(okHandler()).ServeHTTP(w, authRequest(tok))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", errCode(t, w))
}

func TestAuth_ServiceToken(t *testing.T) {
	next := &captureHandler{}
	w := httptest.NewRecorder()
	newAuth(newMockKeyStore()).Authenticate(next).ServeHTTP(w, authRequest(serviceToken))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mw.IsService(next.r))
	_, ok := mw.GetUserID(next.r)
	assert.False(t, ok)
}

func TestAuth_ServiceTokenDisabled(t *testing.T) {
	auth := mw.NewAuth(newMockKeyStore(), identity.NewJWTVerifier(jwtSecret), "", zap.NewNop())
	w := httptest.NewRecorder()
	auth.Authenticate(okHandler()).ServeHTTP(w, authRequest(serviceToken))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_APIKey_Valid(t *testing.T) {
	key := &models.APIKey{ID: uuid.New(), UserID: "user-7", KeyPrefix: rawKey[:8], KeyHash: hashKey(t, rawKey), IsActive: true}
	keys := newMockKeyStore(key)
	next := &captureHandler{}
	w := httptest.NewRecorder()
	newAuth(keys).Authenticate(next).ServeHTTP(w, authRequest(rawKey))

	require.Equal(t, http.StatusOK, w.Code)
	userID, _ := mw.GetUserID(next.r)
	assert.Equal(t, "user-7", userID)
	_, isSession := mw.GetSessionToken(next.r)
	assert.False(t, isSession)
	assert.Equal(t, []string{"ak_01234"}, keys.prefixes)

	select {
	case id := <-keys.used:
		assert.Equal(t, key.ID, id)
	case <-time.After(time.Second):
		t.Fatal("last_used was not updated")
	}
}

func TestAuth_APIKey_WrongSecret(t *testing.T) {
	key := &models.APIKey{ID: uuid.New(), UserID: "user-7", KeyPrefix: rawKey[:8], KeyHash: hashKey(t, "ak_01234different"), IsActive: true}
	w := httptest.NewRecorder()
	newAuth(newMockKeyStore(key)).Authenticate(okHandler()).ServeHTTP(w, authRequest(rawKey))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", errCode(t, w))
}

func TestAuth_APIKey_NotFound(t *testing.T) {
	w := httptest.NewRecorder()
	newAuth(newMockKeyStore()).Authenticate(okHandler()).ServeHTTP(w, authRequest(rawKey))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_APIKey_TooShort(t *testing.T) {
	w := httptest.NewRecorder()
	newAuth(newMockKeyStore()).Authenticate(okHandler()).ServeHTTP(w, authRequest("ak_12"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_APIKey_StoreError(t *testing.T) {
	keys := newMockKeyStore()
	keys.err = errors.New("connection refused")
	w := httptest.NewRecorder()
	newAuth(keys).Authenticate(okHandler()).ServeHTTP(w, authRequest(rawKey))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errCode(t, w))
}

// ========================================
// ResolveUserID Tests
// ========================================

func TestResolveUserID(t *testing.T) {
	base := httptest.NewRequest(http.MethodPost, "/test", nil)
	user := base.WithContext(mw.SetUserID(base.Context(), "user-1"))
	service := base.WithContext(mw.SetService(base.Context()))

	tests := []struct {
		name      string
		r         *http.Request
		requested string
		want      string
		wantErr   error
	}{
		{"user acts for self", user, "", "user-1", nil},
		{"user names self", user, "user-1", "user-1", nil},
		{"user names other", user, "user-2", "", mw.ErrForbidden},
		{"service names user", service, "user-2", "user-2", nil},
		{"service without user", service, "", "", mw.ErrUserRequired},
		{"unauthenticated", base, "user-1", "", mw.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mw.ResolveUserID(tt.r, tt.requested)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func withKeyPrefix(prefix string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	return req.WithContext(context.WithValue(req.Context(), mw.ExportedKeyPrefixKey(), prefix))
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCache{}
	w := httptest.NewRecorder()
	mw.NewRateLimit(mc, 60, zap.NewNop()).Limit(okHandler()).ServeHTTP(w, withKeyPrefix("ak_test1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{"ratelimit:ak_test1"}, mc.keys)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCache{counter: 60}
	w := httptest.NewRecorder()
	mw.NewRateLimit(mc, 60, zap.NewNop()).Limit(okHandler()).ServeHTTP(w, withKeyPrefix("ak_over1"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errCode(t, w))
}

func TestRateLimit_RetryAfterUsesWindowRemainder(t *testing.T) {
	mc := &mockCache{counter: 5, left: 16500 * time.Millisecond}
	w := httptest.NewRecorder()
	before := time.Now()
	mw.NewRateLimit(mc, 5, zap.NewNop()).Limit(okHandler()).ServeHTTP(w, withKeyPrefix("ak_late1"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "17", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	reset, err := strconv.ParseInt(w.Header().Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, err)
	assert.InDelta(t, before.Add(16500*time.Millisecond).Unix(), reset, 1)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	mc := &mockCache{err: errors.New("redis down")}
	w := httptest.NewRecorder()
	mw.NewRateLimit(mc, 1, zap.New(core)).Limit(okHandler()).ServeHTTP(w, withKeyPrefix("ak_down1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "ak_down1", logs.All()[0].ContextMap()["key_prefix"])
}

func TestRateLimit_NoKeyPrefix_PassThrough(t *testing.T) {
	mc := &mockCache{}
	w := httptest.NewRecorder()
	mw.NewRateLimit(mc, 60, zap.NewNop()).Limit(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mc.keys)
}

// ========================================
// Recovery / Logger Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	w := httptest.NewRecorder()
	mw.Recovery(zap.New(core))(panicking).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errCode(t, w))
	assert.NotContains(t, w.Body.String(), "something went wrong")
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestRecovery_NoPanic(t *testing.T) {
	w := httptest.NewRecorder()
	mw.Recovery(zap.NewNop())(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogger_RecordsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	mw.Logger(zap.New(core))(notFound).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(http.StatusNotFound), fields["status"])
	assert.Equal(t, "/api/v1/keys", fields["path"])
	assert.Equal(t, "GET", fields["method"])
}

// ========================================
// Deadline Middleware Tests
// ========================================

func TestDeadline_BoundsRequestContext(t *testing.T) {
	capture := &captureHandler{}
	before := time.Now()
	mw.Deadline(30*time.Second)(capture).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/sync", nil))

	require.NotNil(t, capture.r)
	deadline, ok := capture.r.Context().Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, before.Add(30*time.Second), deadline, time.Second)
	assert.ErrorIs(t, capture.r.Context().Err(), context.Canceled)
}

func TestDeadline_ZeroLeavesRequestUnbounded(t *testing.T) {
	capture := &captureHandler{}
	mw.Deadline(0)(capture).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/sync", nil))

	require.NotNil(t, capture.r)
	_, ok := capture.r.Context().Deadline()
	assert.False(t, ok)
}
