package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mahaj/chat-session/pkg/model"
)

type memberStore interface {
	RoomMembers(ctx context.Context, room string) ([]string, error)
	Online(ctx context.Context) ([]string, error)
	IsOnline(ctx context.Context, user string) (bool, error)
}

type PresenceHandler struct {
	store memberStore
}

func NewPresenceHandler(store memberStore) *PresenceHandler {
	return &PresenceHandler{store: store}
}

// RoomUsers serves GET /rooms/{id}/users.
func (h *PresenceHandler) RoomUsers(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if err := model.RoomTopic(roomID, model.KindMessages).Validate(); err != nil {
		http.Error(w, "Invalid room", http.StatusBadRequest)
		return
	}

	users, err := h.store.RoomMembers(r.Context(), roomID)
	if err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("failed to fetch presence")
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}
	writeJSON(w, nonNil(users))
}

// Online serves GET /users/online.
func (h *PresenceHandler) Online(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.Online(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch online users")
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}
	writeJSON(w, nonNil(users))
}

// UserStatus serves GET /users/{id}/status.
func (h *PresenceHandler) UserStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		http.Error(w, "user id is required", http.StatusBadRequest)
		return
	}

	online, err := h.store.IsOnline(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user", userID).Msg("failed to fetch user status")
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}

	status := model.PresenceOffline
	if online {
		status = model.PresenceOnline
	}
	writeJSON(w, model.Presence{UserID: userID, Status: status, Timestamp: time.Now().UTC()})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
