// Package hub tracks live websocket connections and fans state-change
// events out to every viewer. Delivery is best-effort: there is no buffering
// of missed messages, and a reconnecting client must re-request full state.
package hub

import (
	"encoding/json"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/widyatma/loratag/internal/observability"
)

// Hub owns the connection set and the broadcast path.
type Hub struct {
	registry *Registry
	logger   zerolog.Logger
	seq      uint64
}

// New creates a hub.
func New(logger zerolog.Logger) *Hub {
	observability.EnsureRegistered()
	return &Hub{
		registry: NewRegistry(),
		logger:   logger.With().Str("component", "hub").Logger(),
	}
}

// Connect registers a connection whose transport handshake has already
// succeeded and returns the client record.
func (h *Hub) Connect(conn Conn) *Client {
	id, err := gonanoid.New()
	if err != nil {
		// nanoid only fails when the entropy source does; fall back to a
		// timestamp id rather than refusing the connection.
		id = time.Now().Format("20060102150405.000000000")
	}

	now := time.Now()
	client := &Client{
		ID:            id,
		Conn:          conn,
		ConnectedAt:   now,
		lastHeartbeat: now,
		state:         StateConnecting,
	}
	h.registry.Add(client)
	client.setState(StateConnected)
	observability.SetConnectedClients(h.registry.Count())

	h.logger.Info().
		Str("clientId", id).
		Int("connections", h.registry.Count()).
		Msg("Client connected")
	return client
}

// Disconnect removes a connection. Idempotent: unknown ids and repeated
// calls are safe.
func (h *Hub) Disconnect(clientID string) {
	client, exists := h.registry.Get(clientID)
	if !exists {
		return
	}

	client.setState(StateDisconnected)
	client.Conn.Close()
	h.registry.Remove(clientID)
	observability.SetConnectedClients(h.registry.Count())

	h.logger.Info().
		Str("clientId", clientID).
		Int("connections", h.registry.Count()).
		Msg("Client disconnected")
}

// Send delivers an envelope to one client. The type is validated against the
// closed enumeration before serialization; a validation failure is returned
// to the caller without touching the connection set. A transport failure
// evicts the connection.
func (h *Hub) Send(clientID string, env Envelope) error {
	if err := validateOutbound(env); err != nil {
		return err
	}

	client, exists := h.registry.Get(clientID)
	if !exists {
		return nil
	}

	data, err := json.Marshal(h.stamp(env))
	if err != nil {
		return err
	}

	if err := client.Write(data); err != nil {
		h.logger.Warn().
			Err(err).
			Str("clientId", clientID).
			Str("type", string(env.Type)).
			Msg("Send failed, evicting client")
		observability.RecordEviction("send_failure")
		h.Disconnect(clientID)
		return err
	}
	return nil
}

// Broadcast delivers an envelope to every live connection. Validation and
// serialization happen once; each delivery is independent, so one failing
// client never blocks the rest. Failed connections are evicted after the
// fan-out pass completes.
func (h *Hub) Broadcast(env Envelope) error {
	if err := validateOutbound(env); err != nil {
		return err
	}

	data, err := json.Marshal(h.stamp(env))
	if err != nil {
		return err
	}

	clients := h.registry.GetAll()
	var failed []string
	success := 0
	for _, client := range clients {
		if err := client.Write(data); err != nil {
			h.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("type", string(env.Type)).
				Msg("Broadcast delivery failed")
			failed = append(failed, client.ID)
		} else {
			success++
		}
	}

	for _, id := range failed {
		observability.RecordEviction("send_failure")
		h.Disconnect(id)
	}
	observability.RecordBroadcast(success, len(failed))

	h.logger.Debug().
		Str("type", string(env.Type)).
		Int("success", success).
		Int("failed", len(failed)).
		Msg("Broadcast complete")
	return nil
}

// BroadcastExcept behaves like Broadcast but skips one client, typically the
// originator of the change who already received a direct confirmation.
func (h *Hub) BroadcastExcept(exceptID string, env Envelope) error {
	if err := validateOutbound(env); err != nil {
		return err
	}

	data, err := json.Marshal(h.stamp(env))
	if err != nil {
		return err
	}

	var failed []string
	for _, client := range h.registry.GetAll() {
		if client.ID == exceptID {
			continue
		}
		if err := client.Write(data); err != nil {
			failed = append(failed, client.ID)
		}
	}
	for _, id := range failed {
		observability.RecordEviction("send_failure")
		h.Disconnect(id)
	}
	return nil
}

// UpdateHeartbeat refreshes liveness for a client.
func (h *Hub) UpdateHeartbeat(clientID string) {
	h.registry.UpdateHeartbeat(clientID)
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	return h.registry.Count()
}

// Infos returns connection snapshots for the status surface.
func (h *Hub) Infos(idleAfter time.Duration) []ClientInfo {
	return h.registry.Infos(idleAfter)
}

// Close evicts every connection.
func (h *Hub) Close() {
	for _, client := range h.registry.GetAll() {
		h.Disconnect(client.ID)
	}
}

func (h *Hub) stamp(env Envelope) Envelope {
	if env.Seq == 0 {
		env.Seq = int64(atomic.AddUint64(&h.seq, 1))
	}
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixMilli()
	}
	return env
}
