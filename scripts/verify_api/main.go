package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mahaj/chat-session/pkg/auth"
)

func main() {
	apiAddr := "http://localhost:8081"
	if v := os.Getenv("CHAT_API"); v != "" {
		apiAddr = v
	}
	room := "general"
	user := "test_user"
	if len(os.Args) > 1 {
		room = os.Args[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 1. Login
	token, err := auth.LoginSource{APIAddr: apiAddr, UserID: user}.Token(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("login failed")
	}
	fmt.Printf("Token: %s...\n", token[:min(10, len(token))])

	// 2. History, unread and members of the room
	for _, path := range []string{
		"/history?room_id=" + url.QueryEscape(room),
		"/rooms/" + url.PathEscape(room) + "/users",
		"/rooms/" + url.PathEscape(room) + "/unread",
		"/users/online",
		"/users/" + url.PathEscape(user) + "/status",
	} {
		body, err := get(ctx, apiAddr+path, token)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("request failed")
		}
		fmt.Printf("%s: %s\n", path, body)
	}
}

func get(ctx context.Context, target, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s", resp.Status, body)
	}
	return body, nil
}
