package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-supportchat/internal/auth"
	"github.com/npezzotti/go-supportchat/internal/config"
	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/server"
	"github.com/npezzotti/go-supportchat/internal/support"
)

type SupportChatApp struct {
	log            *log.Logger
	db             database.SupportChatRepository
	svc            *support.Services
	cs             *server.ChatServer
	verifier       *auth.JWTVerifier
	allowedOrigins []string
	srv            *http.Server
}

func NewSupportChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.SupportChatRepository, svc *support.Services, verifier *auth.JWTVerifier, cfg *config.Config) *SupportChatApp {
	s := &SupportChatApp{
		log:            logger,
		db:             db,
		svc:            svc,
		cs:             cs,
		verifier:       verifier,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))

	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.HandleFunc("GET /api/rooms/{room_id}", s.authMiddleware(s.getRoom))
	mux.HandleFunc("POST /api/rooms/{room_id}/messages", s.authMiddleware(s.postMessage))
	mux.HandleFunc("POST /api/rooms/{room_id}/read", s.authMiddleware(s.markRead))
	mux.HandleFunc("POST /api/rooms/{room_id}/close", s.authMiddleware(s.closeRoom))
	mux.HandleFunc("POST /api/rooms/{room_id}/assign", s.authMiddleware(s.assignRoom))

	mux.HandleFunc("GET /api/staff", s.authMiddleware(s.listStaff))
	mux.HandleFunc("GET /api/staff/me", s.authMiddleware(s.staffProfile))
	mux.HandleFunc("POST /api/staff/status", s.authMiddleware(s.setStaffStatus))

	// authenticates itself so it can refuse with a bare status before upgrading
	mux.HandleFunc("GET /ws/chat/{room_id}", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = handlers.CombinedLoggingHandler(logger.Writer(), h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *SupportChatApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *SupportChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *SupportChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
