package main

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mahaj/chat-session/pkg/auth"
	"github.com/mahaj/chat-session/pkg/model"
)

type unreadStore interface {
	Unread(ctx context.Context, roomID, userID string) ([]model.Message, error)
}

type UnreadResponse struct {
	RoomID   string          `json:"room_id"`
	UserID   string          `json:"user_id"`
	Count    int             `json:"count"`
	Messages []model.Message `json:"messages"`
}

// UnreadHandler serves GET /rooms/{id}/unread for the authenticated user.
func UnreadHandler(store unreadStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFrom(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		roomID := r.PathValue("id")
		if err := model.RoomTopic(roomID, model.KindMessages).Validate(); err != nil {
			http.Error(w, "Invalid room", http.StatusBadRequest)
			return
		}

		messages, err := store.Unread(r.Context(), roomID, claims.UserID)
		if err != nil {
			log.Error().Err(err).Str("room", roomID).Str("user", claims.UserID).Msg("failed to load unread messages")
			http.Error(w, "Failed to retrieve unread messages", http.StatusInternalServerError)
			return
		}
		if messages == nil {
			messages = []model.Message{}
		}

		writeJSON(w, UnreadResponse{RoomID: roomID, UserID: claims.UserID, Count: len(messages), Messages: messages})
	}
}
