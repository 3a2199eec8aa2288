package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cardroom/cardroom-server/internal/store"
)

// Registry maps live sockets to authenticated identities and room bindings.
// It is the only component that knows "who is this socket"; room membership
// itself belongs to the Hub.
type Registry struct {
	users store.UserStore
	log   *zerolog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{} // authenticated clients
	byRoom  map[string]map[*Client]struct{}
	binding map[*Client]string // client -> room code
}

// NewRegistry builds an empty registry resolving users against the store.
func NewRegistry(users store.UserStore, logger *zerolog.Logger) *Registry {
	return &Registry{
		users:   users,
		log:     logger,
		clients: make(map[*Client]struct{}),
		byRoom:  make(map[string]map[*Client]struct{}),
		binding: make(map[*Client]string),
	}
}

// Authenticate verifies the user id resolves in the store and binds the
// socket to that identity. Commands from unauthenticated sockets are
// rejected at the transport boundary.
func (r *Registry) Authenticate(ctx context.Context, c *Client, userID int64) (*store.User, error) {
	user, err := r.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve user %d: %w", userID, err)
	}

	r.mu.Lock()
	c.UserID = user.ID
	c.Username = user.Username
	r.clients[c] = struct{}{}
	r.mu.Unlock()

	r.log.Debug().Str("conn_id", c.ConnID).Int64("user_id", user.ID).Msg("socket authenticated")
	return user, nil
}

// Forget drops every trace of the socket. Called exactly once per socket
// lifetime; membership cleanup is the Hub's job and happens before this.
func (r *Registry) Forget(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, c)
	if code, ok := r.binding[c]; ok {
		delete(r.binding, c)
		r.removeFromRoomLocked(code, c)
	}
}

// Bind attaches the socket to a room. Any other socket of the same user
// bound to that room is displaced, so a stale connection's close can no
// longer be mistaken for the user leaving.
func (r *Registry) Bind(c *Client, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for other := range r.byRoom[code] {
		if other != c && other.UserID == c.UserID {
			delete(r.byRoom[code], other)
			delete(r.binding, other)
		}
	}

	if prev, ok := r.binding[c]; ok && prev != code {
		r.removeFromRoomLocked(prev, c)
	}
	set, ok := r.byRoom[code]
	if !ok {
		set = make(map[*Client]struct{})
		r.byRoom[code] = set
	}
	set[c] = struct{}{}
	r.binding[c] = code
}

// Unbind detaches the socket from its room, if any.
func (r *Registry) Unbind(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code, ok := r.binding[c]; ok {
		delete(r.binding, c)
		r.removeFromRoomLocked(code, c)
	}
}

// UnbindUser detaches every socket the user has bound to the room.
func (r *Registry) UnbindUser(code string, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c := range r.byRoom[code] {
		if c.UserID == userID {
			delete(r.byRoom[code], c)
			delete(r.binding, c)
		}
	}
}

// RoomBinding returns the socket's last known room code, or "".
func (r *Registry) RoomBinding(c *Client) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.binding[c]
}

// RoomClients snapshots the sockets currently bound to a room.
func (r *Registry) RoomClients(code string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byRoom[code]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// AllClients snapshots every authenticated socket.
func (r *Registry) AllClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Registry) removeFromRoomLocked(code string, c *Client) {
	if set, ok := r.byRoom[code]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.byRoom, code)
		}
	}
}
