package service

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hickoryhq/hickory/internal/auth"
	"github.com/hickoryhq/hickory/internal/domain"
	"github.com/hickoryhq/hickory/internal/repository"
	"github.com/hickoryhq/hickory/internal/totp"
	apperrors "github.com/hickoryhq/hickory/pkg/errors"
)

const testPassword = "Correct-Horse-1"

// --- In-memory refresh token store ---

type memTokenStore struct {
	mu            sync.Mutex
	tokens        map[string]*domain.RefreshToken
	failRevokeAll error
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{tokens: make(map[string]*domain.RefreshToken)}
}

func (m *memTokenStore) Create(_ context.Context, t *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(t)
}

func (m *memTokenStore) insertLocked(t *domain.RefreshToken) error {
	for _, existing := range m.tokens {
		if existing.TokenHash == t.TokenHash {
			return apperrors.ErrAlreadyExists
		}
	}
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *memTokenStore) GetByTokenHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memTokenStore) ListActiveByUser(_ context.Context, userID string, now time.Time) ([]domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RefreshToken
	for _, t := range m.tokens {
		if t.UserID == userID && t.IsActive(now) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memTokenStore) Revoke(_ context.Context, id, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if t.RevokedAt != nil {
		return apperrors.ErrConflict
	}
	t.RevokedAt = &at
	t.RevokedReason = &reason
	return nil
}

func (m *memTokenStore) RevokeAllActive(_ context.Context, userID, reason string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRevokeAll != nil {
		return 0, m.failRevokeAll
	}
	var n int64
	for _, t := range m.tokens {
		if t.UserID == userID && t.IsActive(at) {
			t.RevokedAt = &at
			t.RevokedReason = &reason
			n++
		}
	}
	return n, nil
}

func (m *memTokenStore) Rotate(_ context.Context, oldID string, next *domain.RefreshToken, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.tokens[oldID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if old.RevokedAt != nil {
		return apperrors.ErrConflict
	}
	reason := domain.RevokedReasonReplaced
	hash := next.TokenHash
	old.RevokedAt = &at
	old.RevokedReason = &reason
	old.ReplacedByTokenHash = &hash
	return m.insertLocked(next)
}

func (m *memTokenStore) forUser(userID string) []domain.RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RefreshToken
	for _, t := range m.tokens {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memTokenStore) byRaw(raw string) *domain.RefreshToken {
	t, err := m.GetByTokenHash(context.Background(), auth.HashToken(raw))
	if err != nil {
		return nil
	}
	return t
}

// --- In-memory user store ---

type memUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserStore(users ...*domain.User) *memUserStore {
	s := &memUserStore{users: make(map[string]*domain.User)}
	for _, u := range users {
		cp := *u
		s.users[u.ID] = &cp
	}
	return s
}

func (s *memUserStore) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *memUserStore) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

func (s *memUserStore) SetPendingTwoFactor(_ context.Context, id, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if u.TwoFactorEnabled {
		return apperrors.ErrConflict
	}
	u.TwoFactorSecret = &secret
	u.TwoFactorBackupCodes = nil
	u.TwoFactorEnabledAt = nil
	return nil
}

func (s *memUserStore) EnableTwoFactor(_ context.Context, id, secret, backupCodes string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if u.TwoFactorEnabled || u.TwoFactorSecret == nil || *u.TwoFactorSecret != secret {
		return apperrors.ErrConflict
	}
	u.TwoFactorEnabled = true
	u.TwoFactorBackupCodes = &backupCodes
	u.TwoFactorEnabledAt = &at
	return nil
}

func (s *memUserStore) ResetBackupCodes(_ context.Context, id, secret, backupCodes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if !u.TwoFactorEnabled || u.TwoFactorSecret == nil || *u.TwoFactorSecret != secret {
		return apperrors.ErrConflict
	}
	u.TwoFactorBackupCodes = &backupCodes
	return nil
}

func (s *memUserStore) ClearTwoFactor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	u.TwoFactorEnabled = false
	u.TwoFactorSecret = nil
	u.TwoFactorBackupCodes = nil
	u.TwoFactorEnabledAt = nil
	return nil
}

func (s *memUserStore) ReplaceBackupCodes(_ context.Context, id, expected, updated string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if !u.TwoFactorEnabled || u.TwoFactorBackupCodes == nil || *u.TwoFactorBackupCodes != expected {
		return apperrors.ErrConflict
	}
	u.TwoFactorBackupCodes = &updated
	return nil
}

func (s *memUserStore) get(id string) *domain.User {
	u, _ := s.GetByID(context.Background(), id)
	return u
}

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockUserRepository) SetPendingTwoFactor(ctx context.Context, id, secret string) error {
	args := m.Called(ctx, id, secret)
	return args.Error(0)
}

func (m *mockUserRepository) EnableTwoFactor(ctx context.Context, id, secret, backupCodes string, at time.Time) error {
	args := m.Called(ctx, id, secret, backupCodes, at)
	return args.Error(0)
}

func (m *mockUserRepository) ResetBackupCodes(ctx context.Context, id, secret, backupCodes string) error {
	args := m.Called(ctx, id, secret, backupCodes)
	return args.Error(0)
}

func (m *mockUserRepository) ClearTwoFactor(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockUserRepository) ReplaceBackupCodes(ctx context.Context, id, expected, updated string) error {
	args := m.Called(ctx, id, expected, updated)
	return args.Error(0)
}

// --- Mock Event Publisher ---

type mockEventPublisher struct {
	mock.Mock
}

func newMockEventPublisher() *mockEventPublisher {
	m := &mockEventPublisher{}
	m.On("PublishLoginSucceeded", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishTokenReuseDetected", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishTwoFactorEnabled", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishTwoFactorDisabled", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishSessionsRevoked", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

func (m *mockEventPublisher) PublishLoginSucceeded(ctx context.Context, user *domain.User, method string, at time.Time) error {
	return m.Called(ctx, user, method, at).Error(0)
}

func (m *mockEventPublisher) PublishTokenReuseDetected(ctx context.Context, userID, tokenID string, revoked int64) error {
	return m.Called(ctx, userID, tokenID, revoked).Error(0)
}

func (m *mockEventPublisher) PublishTwoFactorEnabled(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockEventPublisher) PublishTwoFactorDisabled(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockEventPublisher) PublishSessionsRevoked(ctx context.Context, userID, reason string, revoked int64) error {
	return m.Called(ctx, userID, reason, revoked).Error(0)
}

// --- In-memory replay store ---

type memReplayStore struct {
	mu   sync.Mutex
	used map[string]struct{}
	err  error
}

func newMemReplayStore() *memReplayStore {
	return &memReplayStore{used: make(map[string]struct{})}
}

func (s *memReplayStore) MarkUsed(_ context.Context, userID string, step int64, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	key := userID + ":" + strconv.FormatInt(step, 10)
	if _, ok := s.used[key]; ok {
		return false, nil
	}
	s.used[key] = struct{}{}
	return true, nil
}

// --- Test Helpers ---

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	svc    *AuthService
	tokens *memTokenStore
	replay *memReplayStore
	events *mockEventPublisher
	engine *totp.Engine
	clock  *testClock
	logs   *bytes.Buffer
}

func newTestEnv(t *testing.T, users repository.UserRepository) *testEnv {
	t.Helper()

	env := &testEnv{
		tokens: newMemTokenStore(),
		replay: newMemReplayStore(),
		events: newMockEventPublisher(),
		engine: totp.NewEngine("Hickory"),
		clock:  &testClock{t: time.Now().UTC()},
		logs:   &bytes.Buffer{},
	}

	issuer := auth.NewTokenIssuer(auth.IssuerConfig{
		Secret:    "test-secret-key-for-testing-0123456789",
		Issuer:    "hickory",
		Audience:  "hickory-clients",
		AccessTTL: 15 * time.Minute,
	})
	logger := slog.New(slog.NewJSONHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	env.svc = NewAuthService(users, env.tokens, env.replay, issuer, auth.NewPasswordHasher(bcrypt.MinCost),
		env.engine, env.events, Config{}, logger)
	env.svc.now = env.clock.now
	return env
}

func hashPassword(t *testing.T, pw string) *string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	s := string(h)
	return &s
}

func sampleUser(t *testing.T) *domain.User {
	now := time.Now().UTC()
	return &domain.User{
		ID:           "11111111-1111-4111-8111-111111111111",
		Email:        "agent@example.com",
		Name:         "Ada Agent",
		Role:         domain.RoleAgent,
		PasswordHash: hashPassword(t, testPassword),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// enrolledUser returns a user with two-factor enabled, its secret and its
// plaintext backup codes.
func enrolledUser(t *testing.T, engine *totp.Engine) (*domain.User, string, []string) {
	t.Helper()
	u := sampleUser(t)

	secret, err := engine.GenerateSecretKey()
	require.NoError(t, err)
	codes, err := totp.GenerateBackupCodes(totp.DefaultBackupCodeCount)
	require.NoError(t, err)
	hashed, err := totp.HashBackupCodes(codes)
	require.NoError(t, err)

	enabledAt := time.Now().UTC().Add(-24 * time.Hour)
	u.TwoFactorEnabled = true
	u.TwoFactorSecret = &secret
	u.TwoFactorBackupCodes = &hashed
	u.TwoFactorEnabledAt = &enabledAt
	return u, secret, codes
}

func boolPtr(b bool) *bool { return &b }
