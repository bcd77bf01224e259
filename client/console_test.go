package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-session/pkg/chatclient"
	"github.com/mahaj/chat-session/pkg/model"
	"github.com/mahaj/chat-session/pkg/receipts"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want command
		ok   bool
	}{
		{"", command{}, false},
		{"   ", command{}, false},
		{"hello there", command{kind: cmdSend, arg: "hello there"}, true},
		{"/quit", command{kind: cmdQuit}, true},
		{"/typing", command{kind: cmdTyping}, true},
		{"/read 12345", command{kind: cmdRead, arg: "12345"}, true},
		{"/read", command{kind: cmdUnknown, arg: "/read"}, true},
		{"/dance", command{kind: cmdUnknown, arg: "/dance"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := parseLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeRoom struct {
	sent    []string
	typing  int
	read    []string
	sendErr error
}

func (r *fakeRoom) SendMessage(content string) (model.Message, error) {
	if r.sendErr != nil {
		return model.Message{}, r.sendErr
	}
	r.sent = append(r.sent, content)
	return model.Message{Content: content, Pending: true}, nil
}

func (r *fakeRoom) OnLocalInput() error { r.typing++; return nil }

func (r *fakeRoom) MarkRead(id string) error { r.read = append(r.read, id); return nil }

func TestRunLoop(t *testing.T) {
	var out bytes.Buffer
	room := &fakeRoom{}
	in := strings.NewReader("hi\n/typing\n/read 42\n/nope\n/quit\nnever sent\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, runLoop(ctx, in, room, newConsole(&out)))

	assert.Equal(t, []string{"hi"}, room.sent)
	assert.Equal(t, 1, room.typing)
	assert.Equal(t, []string{"42"}, room.read)
	assert.Contains(t, out.String(), `unknown command "/nope"`)
}

func TestRunLoop_ReportsSendErrors(t *testing.T) {
	var out bytes.Buffer
	room := &fakeRoom{sendErr: chatclient.ErrNotConnected}

	require.NoError(t, runLoop(context.Background(), strings.NewReader("hello\n"), room, newConsole(&out)))
	assert.Contains(t, out.String(), "not connected")
}

func TestRunLoop_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, w := io.Pipe()
	defer w.Close()
	assert.NoError(t, runLoop(ctx, r, &fakeRoom{}, newConsole(&bytes.Buffer{})))
}

func TestConsole_Observer(t *testing.T) {
	var out bytes.Buffer
	con := newConsole(&out)

	con.MessageAdded("general", model.Message{ID: "1", SenderID: "bob", Content: "hey"})
	con.MessageAdded("general", model.Message{SenderID: "me", Content: "draft", Pending: true})
	con.StatusChanged("general", "1", receipts.StatusRead)
	con.TypingChanged("general", []string{"bob", "carol"})
	con.TypingChanged("general", nil)
	con.PresenceChanged(model.Presence{UserID: "bob", Status: model.PresenceOffline})
	con.StateChanged(chatclient.ReconnectPending)

	s := out.String()
	assert.Contains(t, s, "[general] bob: hey  (1)")
	assert.NotContains(t, s, "draft")
	assert.Contains(t, s, "* 1 read")
	assert.Contains(t, s, "bob, carol typing...")
	assert.Contains(t, s, "* bob is offline")
	assert.Equal(t, 5, strings.Count(s, "> "))
}
