package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/testutil"
	"github.com/npezzotti/go-supportchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-signing-key")

func TestVerify(t *testing.T) {
	repo := database.NewMemorySupportChatRepository()
	ctx := context.Background()

	customer, err := repo.CreateAccount(ctx, database.CreateAccountParams{Username: "customer", EmailAddress: "c@example.com"})
	require.NoError(t, err)

	v := NewJWTVerifier(testutil.TestLogger(t), repo, testKey)

	valid, err := v.IssueToken(customer.Id, time.Hour)
	require.NoError(t, err)

	expired, err := v.IssueToken(customer.Id, -time.Hour)
	require.NoError(t, err)

	unknownUser, err := v.IssueToken(999, time.Hour)
	require.NoError(t, err)

	otherKey := NewJWTVerifier(testutil.TestLogger(t), repo, []byte("other-key"))
	wrongKey, err := otherKey.IssueToken(customer.Id, time.Hour)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{userIdClaim: customer.Id}).SignedString(testKey)
	require.NoError(t, err)

	tcases := []struct {
		name       string
		credential string
		err        error
	}{
		{name: "valid token", credential: valid},
		{name: "missing token", credential: "", err: ErrUnauthorized},
		{name: "malformed token", credential: "not-a-jwt", err: ErrUnauthorized},
		{name: "expired token", credential: expired, err: ErrUnauthorized},
		{name: "wrong signing key", credential: wrongKey, err: ErrUnauthorized},
		{name: "missing exp claim", credential: noExp, err: ErrUnauthorized},
		{name: "unknown user", credential: unknownUser, err: ErrUnauthorized},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			user, err := v.Verify(ctx, tc.credential)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				assert.Equal(t, "unauthorized", err.Error(), "expected no distinguishing detail")
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, customer.Id, user.Id)
			assert.Equal(t, types.RoleCustomer, user.Role)
		})
	}
}

func TestResolve_StaffAccountGetsProfile(t *testing.T) {
	repo := database.NewMemorySupportChatRepository()
	ctx := context.Background()

	staff, err := repo.CreateAccount(ctx, database.CreateAccountParams{Username: "agent", EmailAddress: "a@example.com", IsStaff: true})
	require.NoError(t, err)

	v := NewJWTVerifier(testutil.TestLogger(t), repo, testKey)
	user, err := v.Resolve(ctx, staff.Id)
	require.NoError(t, err)
	assert.True(t, user.IsStaff(), "expected staff account to resolve with the staff role")

	p, err := repo.GetStaffProfile(ctx, staff.Id)
	require.NoError(t, err)
	assert.Equal(t, database.DefaultMaxConcurrentChats, p.MaxConcurrentChats)
}

func TestResolve_LookupFailure(t *testing.T) {
	repo := &database.MockSupportChatRepository{}
	defer repo.AssertExpectations(t)

	dbErr := errors.New("db down")
	repo.On("GetAccountById", 1).Return(database.User{}, dbErr).Once()

	v := NewJWTVerifier(testutil.TestLogger(t), repo, testKey)
	_, err := v.Resolve(context.Background(), 1)
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestCredentialFromRequest(t *testing.T) {
	tcases := []struct {
		name     string
		setup    func(r *http.Request)
		url      string
		expected string
	}{
		{
			name:     "query parameter",
			url:      "/ws/chat/abc?token=q-token",
			setup:    func(r *http.Request) {},
			expected: "q-token",
		},
		{
			name: "authorization header",
			url:  "/ws/chat/abc",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer h-token")
			},
			expected: "h-token",
		},
		{
			name: "non bearer header ignored",
			url:  "/ws/chat/abc",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Basic abc")
			},
			expected: "",
		},
		{
			name: "cookie",
			url:  "/ws/chat/abc",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: TokenCookieKey, Value: "c-token"})
			},
			expected: "c-token",
		},
		{
			name: "query wins over header",
			url:  "/ws/chat/abc?token=q-token",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer h-token")
			},
			expected: "q-token",
		},
		{
			name:     "none",
			url:      "/ws/chat/abc",
			setup:    func(r *http.Request) {},
			expected: "",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.url, nil)
			tc.setup(r)
			assert.Equal(t, tc.expected, CredentialFromRequest(r))
		})
	}
}
