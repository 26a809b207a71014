package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hickoryhq/hickory/internal/domain"
	apperrors "github.com/hickoryhq/hickory/pkg/errors"
)

func TestCreateUser_Success(t *testing.T) {
	users := newMemUserStore()
	env := newTestEnv(t, users)

	u, err := env.svc.CreateUser(context.Background(), CreateUserInput{
		Email:    "  New.Agent@Example.COM ",
		Name:     "New Agent",
		Password: testPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, "new.agent@example.com", u.Email)
	assert.Equal(t, domain.RoleAgent, u.Role)
	assert.True(t, u.IsActive)
	require.NotNil(t, u.PasswordHash)
	assert.NotEqual(t, testPassword, *u.PasswordHash)

	outcome, err := env.svc.Login(context.Background(), "new.agent@example.com", testPassword)
	require.NoError(t, err)
	assert.IsType(t, &domain.AuthSession{}, outcome)
}

func TestCreateUser_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateUserInput
	}{
		{"missing email", CreateUserInput{Name: "A", Password: testPassword}},
		{"malformed email", CreateUserInput{Email: "agent", Name: "A", Password: testPassword}},
		{"missing name", CreateUserInput{Email: "a@example.com", Password: testPassword}},
		{"unknown role", CreateUserInput{Email: "a@example.com", Name: "A", Password: testPassword, Role: "customer"}},
		{"short password", CreateUserInput{Email: "a@example.com", Name: "A", Password: "Ab1"}},
		{"weak password", CreateUserInput{Email: "a@example.com", Name: "A", Password: "alllowercase"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, newMemUserStore())
			_, err := env.svc.CreateUser(context.Background(), tt.input)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	existing := sampleUser(t)
	env := newTestEnv(t, newMemUserStore(existing))

	_, err := env.svc.CreateUser(context.Background(), CreateUserInput{
		Email:    "AGENT@example.com",
		Name:     "Dup",
		Password: testPassword,
		Role:     domain.RoleAdmin,
	})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}
