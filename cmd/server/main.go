package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-supportchat/internal/api"
	"github.com/npezzotti/go-supportchat/internal/auth"
	"github.com/npezzotti/go-supportchat/internal/cache"
	"github.com/npezzotti/go-supportchat/internal/config"
	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/server"
	"github.com/npezzotti/go-supportchat/internal/stats"
	"github.com/npezzotti/go-supportchat/internal/support"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
	redisAddr      string
	cacheTTL       time.Duration
	migrate        bool
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string, or memory:// for an in-process store")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&redisAddr, "redis-addr", "", "redis address for the room list cache (disabled when empty)")
	flag.DurationVar(&cacheTTL, "cache-ttl", config.DefaultCacheTTL, "room list cache TTL")
	flag.BoolVar(&migrate, "migrate", true, "apply database migrations on startup")
	flag.Parse()

	logger := log.New(os.Stderr, "[support-chat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, redisAddr, cacheTTL)
	if err != nil {
		logger.Fatal("config:", err)
	}

	var repo database.SupportChatRepository
	if cfg.InMemory() {
		logger.Println("using in-memory store")
		repo = database.NewMemorySupportChatRepository()
	} else {
		pg, err := database.NewPgSupportChatRepository(cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("db open:", err)
		}
		defer func() {
			if err := pg.Close(); err != nil {
				logger.Println("db close:", err)
			}
		}()

		if migrate {
			if err := pg.Migrate(); err != nil {
				logger.Fatal("migrate:", err)
			}
		}
		repo = pg
	}

	var roomCache cache.RoomListCache = cache.NopRoomListCache{}
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisRoomListCache(logger, cfg.RedisAddr, cfg.CacheTTL)
		if err != nil {
			logger.Fatal("redis:", err)
		}
		defer rc.Close()
		roomCache = rc
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	svc := support.NewServices(logger, repo, roomCache)
	verifier := auth.NewJWTVerifier(logger, repo, cfg.SigningKey)
	chatServer := server.NewChatServer(logger, svc, statsUpdater)

	srv := api.NewSupportChatApp(mux, logger, chatServer, repo, svc, verifier, cfg)

	statsUpdater.Run()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Println("server:", err)
		}
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}
	statsUpdater.Stop()

	logger.Println("shutdown complete")
}
