package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mahaj/chat-session/pkg/chatclient"
	"github.com/mahaj/chat-session/pkg/model"
	"github.com/mahaj/chat-session/pkg/receipts"
)

// console renders session events between prompts.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console { return &console{out: out} }

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "\r"+format+"\n> ", args...)
}

func (c *console) StateChanged(s chatclient.State) {
	c.printf("* %s", s)
}

func (c *console) MessageAdded(room string, m model.Message) {
	if m.Pending {
		return
	}
	c.printf("[%s] %s: %s  (%s)", room, m.SenderID, m.Content, m.ID)
}

func (c *console) StatusChanged(_, messageID string, st receipts.Status) {
	c.printf("* %s %s", messageID, st)
}

func (c *console) TypingChanged(room string, peers []string) {
	if len(peers) == 0 {
		return
	}
	c.printf("[%s] %s typing...", room, strings.Join(peers, ", "))
}

func (c *console) PresenceChanged(p model.Presence) {
	c.printf("* %s is %s", p.UserID, p.Status)
}

type commandKind int

const (
	cmdSend commandKind = iota
	cmdTyping
	cmdRead
	cmdQuit
	cmdUnknown
)

type command struct {
	kind commandKind
	arg  string
}

func parseLine(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, false
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSend, arg: line}, true
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit":
		return command{kind: cmdQuit}, true
	case "/typing":
		return command{kind: cmdTyping}, true
	case "/read":
		if arg != "" {
			return command{kind: cmdRead, arg: arg}, true
		}
	}
	return command{kind: cmdUnknown, arg: line}, true
}

type chatRoom interface {
	SendMessage(content string) (model.Message, error)
	OnLocalInput() error
	MarkRead(messageID string) error
}

// runLoop reads commands from in until EOF, /quit or ctx is done.
func runLoop(ctx context.Context, in io.Reader, room chatRoom, con *console) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
		}

		cmd, ok := parseLine(line)
		if !ok {
			continue
		}

		var err error
		switch cmd.kind {
		case cmdQuit:
			return nil
		case cmdSend:
			_, err = room.SendMessage(cmd.arg)
		case cmdTyping:
			err = room.OnLocalInput()
		case cmdRead:
			err = room.MarkRead(cmd.arg)
		case cmdUnknown:
			con.printf("unknown command %q (try /typing, /read <id>, /quit)", cmd.arg)
		}
		if err != nil {
			con.printf("! %v", err)
		}
	}
}
