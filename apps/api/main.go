package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mahaj/chat-session/pkg/auth"
	"github.com/mahaj/chat-session/pkg/config"
	"github.com/mahaj/chat-session/pkg/db"
	"github.com/mahaj/chat-session/pkg/logging"
	"github.com/mahaj/chat-session/pkg/presence"
)

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // Allow all for dev, or specific origin
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

type messageStore interface {
	historyStore
	unreadStore
}

func newRouter(issuer *auth.Issuer, messages messageStore, members memberStore) http.Handler {
	presence := NewPresenceHandler(members)

	mux := http.NewServeMux()
	mux.Handle("POST /login", LoginHandler(issuer))
	mux.Handle("GET /history", AuthMiddleware(issuer, NewHistoryHandler(messages)))
	mux.Handle("GET /rooms/{id}/unread", AuthMiddleware(issuer, UnreadHandler(messages)))
	mux.Handle("GET /rooms/{id}/users", AuthMiddleware(issuer, http.HandlerFunc(presence.RoomUsers)))
	mux.Handle("GET /users/online", AuthMiddleware(issuer, http.HandlerFunc(presence.Online)))
	mux.Handle("GET /users/{id}/status", AuthMiddleware(issuer, http.HandlerFunc(presence.UserStatus)))
	return mux
}

func main() {
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logFile, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := db.NewSession(cfg.Hosts, cfg.Keyspace, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to ScyllaDB")
	}
	defer session.Close()

	store := presence.New(cfg.RedisAddr)
	defer store.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           CORSMiddleware(newRouter(auth.NewIssuer(cfg.JWTSecret, auth.DefaultTokenTTL), db.NewStore(session), store)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("API service starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("API service stopped")
	}
}
