package core

import "github.com/rs/zerolog"

// Router fans events out to sockets: either everyone bound to one room
// (participants and spectators alike) or every authenticated socket.
type Router struct {
	reg *Registry
	log *zerolog.Logger
}

// NewRouter builds a router over the given registry.
func NewRouter(reg *Registry, logger *zerolog.Logger) *Router {
	return &Router{reg: reg, log: logger}
}

// ToRoom delivers an event to every socket bound to the room.
func (r *Router) ToRoom(code string, event *Event) {
	for _, c := range r.reg.RoomClients(code) {
		r.send(c, event)
	}
}

// ToRoomExcept delivers to the room, skipping one socket. Used when the
// originator already received a richer event (e.g. the join snapshot).
func (r *Router) ToRoomExcept(code string, event *Event, except *Client) {
	for _, c := range r.reg.RoomClients(code) {
		if c == except {
			continue
		}
		r.send(c, event)
	}
}

// ToAll delivers an event to every authenticated socket. Reserved for
// lobby-list-relevant events so browsing clients stay current.
func (r *Router) ToAll(event *Event) {
	for _, c := range r.reg.AllClients() {
		r.send(c, event)
	}
}

// ToClient delivers an event to a single socket.
func (r *Router) ToClient(c *Client, event *Event) {
	r.send(c, event)
}

// send is fire-and-forget: command handling never blocks on a socket.
func (r *Router) send(c *Client, event *Event) {
	select {
	case c.Events <- event:
	default:
		// Drop if slow consumer.
		r.log.Debug().Str("conn_id", c.ConnID).Int("kind", int(event.Kind)).Msg("dropped event for slow consumer")
	}
}
