package hub

import (
	"sync"
	"time"
)

// Registry tracks live client connections.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// Add registers a client.
func (r *Registry) Add(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[client.ID] = client
}

// Remove deletes a client. Removing an unknown id is a no-op.
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, clientID)
}

// Get retrieves a client by id.
func (r *Registry) Get(clientID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.clients[clientID]
	return client, exists
}

// GetAll returns all live clients.
func (r *Registry) GetAll() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

// Count returns the number of live clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

// UpdateHeartbeat refreshes a client's liveness timestamp.
func (r *Registry) UpdateHeartbeat(clientID string) {
	r.mu.RLock()
	client, exists := r.clients[clientID]
	r.mu.RUnlock()

	if exists {
		client.Touch(time.Now())
	}
}

// Infos returns a snapshot of all connections for status surfaces.
func (r *Registry) Infos(idleAfter time.Duration) []ClientInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	infos := make([]ClientInfo, 0, len(r.clients))
	for _, client := range r.clients {
		heartbeat := client.LastHeartbeat()
		infos = append(infos, ClientInfo{
			ID:            client.ID,
			ConnectedAt:   client.ConnectedAt,
			LastHeartbeat: heartbeat,
			MessageCount:  client.MessageCount(),
			Idle:          now.Sub(heartbeat) > idleAfter,
		})
	}
	return infos
}
