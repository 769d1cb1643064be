package gateway

import "time"

// Frame operations of the bridge protocol
const (
	OpIdentify = "identify" // client -> bridge, first frame, carries the token
	OpReady    = "ready"    // bridge -> client, identify accepted; Author is our own account
	OpSend     = "send"     // client -> bridge, post a plain message
	OpInvoke   = "invoke"   // client -> bridge, run a slash command
	OpMessage  = "message"  // bridge -> client, a message was posted
	OpError    = "error"    // bridge -> client
)

// Frame is one JSON message on the bridge websocket
type Frame struct {
	Op        string     `json:"op"`
	ID        string     `json:"id,omitempty"`
	ChannelID string     `json:"channel_id,omitempty"`
	Author    string     `json:"author,omitempty"`
	Content   string     `json:"content,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Token     string     `json:"token,omitempty"`

	// invoke
	Command   string   `json:"command,omitempty"`
	CommandID string   `json:"command_id,omitempty"`
	Options   []string `json:"options,omitempty"`

	// Silent asks the bridge not to echo our own message back
	Silent bool `json:"silent,omitempty"`

	Error string `json:"error,omitempty"`
}
