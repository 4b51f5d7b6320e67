package api

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-supportchat/internal/auth"
	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/testutil"
	"github.com/npezzotti/go-supportchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &SupportChatApp{
		log: testutil.TestLogger(t),
	}

	app.log.SetOutput(buf)

	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(panicHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "panic: test panic")
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &SupportChatApp{}

	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(okHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func TestAuthMiddleware(t *testing.T) {
	logger := testutil.TestLogger(t)
	db := database.NewMemorySupportChatRepository()
	verifier := auth.NewJWTVerifier(logger, db, []byte("key"))
	app := &SupportChatApp{log: logger, verifier: verifier}

	account, err := db.CreateAccount(t.Context(), database.CreateAccountParams{Username: "alice", EmailAddress: "alice@example.com"})
	require.NoError(t, err)

	valid, err := verifier.IssueToken(account.Id, time.Hour)
	require.NoError(t, err)
	expired, err := verifier.IssueToken(account.Id, -time.Hour)
	require.NoError(t, err)
	unknown, err := verifier.IssueToken(9999, time.Hour)
	require.NoError(t, err)

	tcases := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
	}{
		{"no credential", func(r *http.Request) {}, http.StatusUnauthorized},
		{"malformed", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"expired", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) }, http.StatusUnauthorized},
		{"unknown user", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+unknown) }, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: auth.TokenCookieKey, Value: valid}) }, http.StatusOK},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var got types.User
			next := func(w http.ResponseWriter, r *http.Request) {
				got, _ = UserFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rr := httptest.NewRecorder()
			app.authMiddleware(next)(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusOK {
				assert.Equal(t, account.Id, got.Id)
				assert.Equal(t, types.RoleCustomer, got.Role)
				assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")
			} else {
				assert.JSONEq(t, `{"status_code":401,"message":"unauthorized"}`, rr.Body.String())
			}
		})
	}
}
