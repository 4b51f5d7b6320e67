package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-supportchat/internal/auth"
	"github.com/npezzotti/go-supportchat/internal/config"
	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/server"
	"github.com/npezzotti/go-supportchat/internal/support"
	"github.com/npezzotti/go-supportchat/internal/testutil"
	"github.com/npezzotti/go-supportchat/internal/types"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	app *SupportChatApp
	srv *httptest.Server
	db  *database.MemorySupportChatRepository
	svc *support.Services
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := testutil.TestLogger(t)

	db := database.NewMemorySupportChatRepository()
	svc := support.NewServices(logger, db, nil)
	cs := server.NewChatServer(logger, svc, nil)
	go cs.Run()

	verifier := auth.NewJWTVerifier(logger, db, []byte("test-signing-key"))
	cfg := &config.Config{
		ServerAddr:     ":0",
		AllowedOrigins: []string{"http://localhost:3000"},
	}

	app := NewSupportChatApp(http.NewServeMux(), logger, cs, db, svc, verifier, cfg)
	srv := httptest.NewServer(app.Handler())

	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	})

	return &testApp{app: app, srv: srv, db: db, svc: svc}
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// signup registers and logs in a user, returning the identity and credential.
func (a *testApp) signup(t *testing.T, username string, staff bool) (types.User, string) {
	t.Helper()

	resp := a.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Email:    username + "@example.com",
		Username: username,
		Password: "password123",
		IsStaff:  staff,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Email:    username + "@example.com",
		Password: "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	login := decode[LoginResponse](t, resp)
	require.NotEmpty(t, login.Token)
	return login.User, login.Token
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}
