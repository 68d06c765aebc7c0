package hub

import (
	"sync"
	"time"
)

// ProtocolVersion identifies the message-type enumeration clients speak.
// Bump it whenever a type is added or removed.
const ProtocolVersion = "1"

// MessageType enumerates every envelope type in the protocol. The set is
// closed: anything else is rejected before serialization.
type MessageType string

// Client-originated message types.
const (
	TypePing        MessageType = "ping"
	TypeGetImage    MessageType = "get_image"
	TypeUpdateTags  MessageType = "update_tags"
	TypeSaveSession MessageType = "save_session"
	TypeGetTags     MessageType = "get_tags"
	TypeAddTag      MessageType = "add_tag"
	TypeDeleteTag   MessageType = "delete_tag"
)

// Server-originated message types.
const (
	TypePong             MessageType = "pong"
	TypeSessionState     MessageType = "session_state"
	TypeImageData        MessageType = "image_data"
	TypeTagsUpdated      MessageType = "tags_updated"
	TypeImageTagsUpdate  MessageType = "image_tags_update"
	TypeMasterTagsUpdate MessageType = "master_tags_update"
	TypeTagsList         MessageType = "tags_list"
	TypeTagAdded         MessageType = "tag_added"
	TypeTagExists        MessageType = "tag_exists"
	TypeTagDeleted       MessageType = "tag_deleted"
	TypeTagNotFound      MessageType = "tag_not_found"
	TypeTagUpdate        MessageType = "tag_update"
	TypeSessionSaved     MessageType = "session_saved"
	TypeShutdown         MessageType = "server_shutdown"
	TypeError            MessageType = "error"
)

var knownTypes = map[MessageType]struct{}{
	TypePing: {}, TypeGetImage: {}, TypeUpdateTags: {}, TypeSaveSession: {},
	TypeGetTags: {}, TypeAddTag: {}, TypeDeleteTag: {},
	TypePong: {}, TypeSessionState: {}, TypeImageData: {}, TypeTagsUpdated: {},
	TypeImageTagsUpdate: {}, TypeMasterTagsUpdate: {}, TypeTagsList: {},
	TypeTagAdded: {}, TypeTagExists: {}, TypeTagDeleted: {}, TypeTagNotFound: {},
	TypeTagUpdate: {}, TypeSessionSaved: {}, TypeShutdown: {}, TypeError: {},
}

// Known reports whether t belongs to the closed enumeration.
func (t MessageType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Envelope is the wire format for every message in both directions.
type Envelope struct {
	Type      MessageType            `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Seq       int64                  `json:"seq,omitempty"`
	Timestamp int64                  `json:"timestamp,omitempty"`
}

// ErrorEnvelope builds the typed error envelope sent back to a client.
func ErrorEnvelope(message string) Envelope {
	return Envelope{
		Type: TypeError,
		Data: map[string]interface{}{"message": message},
	}
}

// ClientState tracks the per-connection lifecycle. Disconnected is terminal;
// a reconnecting client is a brand-new connection.
type ClientState int

const (
	StateConnecting ClientState = iota
	StateConnected
	StateDisconnected
)

// Conn is the transport surface the hub needs from a websocket connection.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one live connection. Purely in-memory, process-local; nothing
// about it is persisted. The mutable fields are read by the sweeper and the
// status surface while the read loop and writers update them, so they live
// behind their own mutex.
type Client struct {
	ID          string
	Conn        Conn
	ConnectedAt time.Time

	mu            sync.Mutex
	lastHeartbeat time.Time
	messageCount  int64
	state         ClientState

	writeMu sync.Mutex
}

// Write serializes concurrent writers on the same connection.
func (c *Client) Write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// 1 is the websocket text message opcode.
	if err := c.Conn.WriteMessage(1, data); err != nil {
		return err
	}

	c.mu.Lock()
	c.messageCount++
	c.mu.Unlock()
	return nil
}

// Touch records a liveness observation at t.
func (c *Client) Touch(t time.Time) {
	c.mu.Lock()
	c.lastHeartbeat = t
	c.mu.Unlock()
}

// LastHeartbeat returns the most recent liveness observation.
func (c *Client) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

// MessageCount returns the number of envelopes written to this connection.
func (c *Client) MessageCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageCount
}

// State returns the connection lifecycle state.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// ClientInfo is the read-only snapshot exposed to status surfaces.
type ClientInfo struct {
	ID            string    `json:"id"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	MessageCount  int64     `json:"messageCount"`
	Idle          bool      `json:"idle"`
}
