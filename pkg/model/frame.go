package model

import "encoding/json"

type Command string

const (
	CommandConnected   Command = "CONNECTED"
	CommandError       Command = "ERROR"
	CommandSubscribe   Command = "SUBSCRIBE"
	CommandUnsubscribe Command = "UNSUBSCRIBE"
	CommandSend        Command = "SEND"
	CommandMessage     Command = "MESSAGE"
)

// Frame is one protocol unit exchanged over the websocket. CONNECTED completes
// the handshake; ERROR carries a reason in Body as a JSON string.
type Frame struct {
	Command     Command         `json:"command"`
	Destination string          `json:"destination,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}
