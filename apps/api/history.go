package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mahaj/chat-session/pkg/auth"
	"github.com/mahaj/chat-session/pkg/model"
)

const maxHistoryLimit = 500

type historyStore interface {
	History(ctx context.Context, roomID string, limit int) ([]model.Message, error)
}

type HistoryHandler struct {
	store historyStore
}

func NewHistoryHandler(store historyStore) *HistoryHandler {
	return &HistoryHandler{store: store}
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		roomID = "general" // Default to general
	}
	if err := model.RoomTopic(roomID, model.KindMessages).Validate(); err != nil {
		http.Error(w, "Invalid room_id", http.StatusBadRequest)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	messages, err := h.store.History(r.Context(), roomID, limit)
	if err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("failed to load history")
		http.Error(w, "Failed to retrieve history", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	writeJSON(w, messages)
}

func LoginHandler(issuer *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if req.UserID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}

		token, err := issuer.GenerateToken(req.UserID)
		if err != nil {
			http.Error(w, "Failed to generate token", http.StatusInternalServerError)
			return
		}

		writeJSON(w, auth.LoginResponse{Token: token})
	}
}

func AuthMiddleware(issuer *auth.Issuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		claims, err := issuer.ValidateToken(auth.BearerToken(tokenString))
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		log.Debug().Str("user", claims.UserID).Str("path", r.URL.Path).Msg("authenticated")
		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}
