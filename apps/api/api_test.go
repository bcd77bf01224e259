package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-session/pkg/auth"
	"github.com/mahaj/chat-session/pkg/model"
)

type fakeHistory struct {
	room  string
	limit int
	user  string
	msgs  []model.Message
	err   error
}

func (f *fakeHistory) History(_ context.Context, room string, limit int) ([]model.Message, error) {
	f.room, f.limit = room, limit
	return f.msgs, f.err
}

// Unread applies the same rule as the Scylla store: not sent and not read by user.
func (f *fakeHistory) Unread(_ context.Context, room, user string) ([]model.Message, error) {
	f.room, f.user = room, user
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Message
	for _, m := range f.msgs {
		if m.SenderID != user && !slices.Contains(m.ReadBy, user) {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeMembers map[string][]string

func (f fakeMembers) RoomMembers(_ context.Context, room string) ([]string, error) {
	return f[room], nil
}

func (f fakeMembers) Online(context.Context) ([]string, error) {
	return f["*"], nil
}

func (f fakeMembers) IsOnline(_ context.Context, user string) (bool, error) {
	if user == "broken" {
		return false, errors.New("redis down")
	}
	return slices.Contains(f["*"], user), nil
}

func newTestServer(t *testing.T, history *fakeHistory, members fakeMembers) (*httptest.Server, string) {
	t.Helper()
	issuer := auth.NewIssuer("secret", time.Hour)
	srv := httptest.NewServer(CORSMiddleware(newRouter(issuer, history, members)))
	t.Cleanup(srv.Close)

	token, err := auth.LoginSource{APIAddr: srv.URL, UserID: "alice"}.Token(context.Background())
	require.NoError(t, err)
	return srv, token
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHistory(t *testing.T) {
	history := &fakeHistory{msgs: []model.Message{{ID: "1", RoomID: "dev", SenderID: "bob", Content: "hi", ReadBy: []string{"alice"}}}}
	srv, token := newTestServer(t, history, nil)

	resp := get(t, srv.URL+"/history?room_id=dev&limit=20", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []model.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, history.msgs, got)
	assert.Equal(t, "dev", history.room)
	assert.Equal(t, 20, history.limit)
}

func TestHistory_Errors(t *testing.T) {
	history := &fakeHistory{}
	srv, token := newTestServer(t, history, nil)

	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/history", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/history", "forged").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/history?limit=0", token).StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/history?room_id=a/b", token).StatusCode)

	history.err = errors.New("scylla down")
	assert.Equal(t, http.StatusInternalServerError, get(t, srv.URL+"/history", token).StatusCode)

	history.err = nil
	resp := get(t, srv.URL+"/history", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got []model.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.NotNil(t, got)
	assert.Equal(t, "general", history.room)
}

func TestRoomUsers(t *testing.T) {
	srv, token := newTestServer(t, &fakeHistory{}, fakeMembers{"general": {"alice", "bob"}, "*": {"alice"}})

	resp := get(t, srv.URL+"/rooms/general/users", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	assert.Equal(t, []string{"alice", "bob"}, users)

	resp = get(t, srv.URL+"/rooms/empty/users", token)
	users = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	assert.Equal(t, []string{}, users)

	resp = get(t, srv.URL+"/users/online", token)
	users = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	assert.Equal(t, []string{"alice"}, users)
}

func TestUnread(t *testing.T) {
	history := &fakeHistory{msgs: []model.Message{
		{ID: "1", RoomID: "dev", SenderID: "bob", Content: "read", ReadBy: []string{"alice"}},
		{ID: "2", RoomID: "dev", SenderID: "alice", Content: "mine"},
		{ID: "3", RoomID: "dev", SenderID: "bob", Content: "new", DeliveredTo: []string{"alice"}},
		{ID: "4", RoomID: "dev", SenderID: "carol", Content: "newer", ReadBy: []string{"bob"}},
	}}
	srv, token := newTestServer(t, history, nil)

	resp := get(t, srv.URL+"/rooms/dev/unread", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got UnreadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "dev", got.RoomID)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, 2, got.Count)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "3", got.Messages[0].ID)
	assert.Equal(t, "4", got.Messages[1].ID)
	assert.Equal(t, "alice", history.user, "unread is scoped to the token's user")
}

func TestUnread_Errors(t *testing.T) {
	history := &fakeHistory{}
	srv, token := newTestServer(t, history, nil)

	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/rooms/dev/unread", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/rooms/a%2Fb/unread", token).StatusCode)

	resp := get(t, srv.URL+"/rooms/quiet/unread", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got UnreadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 0, got.Count)
	assert.NotNil(t, got.Messages)

	history.err = errors.New("scylla down")
	assert.Equal(t, http.StatusInternalServerError, get(t, srv.URL+"/rooms/dev/unread", token).StatusCode)
}

func TestUserStatus(t *testing.T) {
	srv, token := newTestServer(t, &fakeHistory{}, fakeMembers{"*": {"alice"}})

	for user, want := range map[string]model.PresenceStatus{
		"alice": model.PresenceOnline,
		"bob":   model.PresenceOffline,
	} {
		resp := get(t, srv.URL+"/users/"+user+"/status", token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got model.Presence
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, user, got.UserID)
		assert.Equal(t, want, got.Status)
	}

	assert.Equal(t, http.StatusInternalServerError, get(t, srv.URL+"/users/broken/status", token).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/users/alice/status", "").StatusCode)
}

func TestLogin_Validation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeHistory{}, nil)

	resp, err := http.Post(srv.URL+"/login", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/login")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}
