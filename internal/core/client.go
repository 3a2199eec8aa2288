package core

// Client is one live socket connection as seen by the core layer.
// Identity fields are zero until the registry authenticates it.
type Client struct {
	ConnID    string
	UserID    int64
	Username  string
	Spectator bool
	Events    chan *Event
}

// NewClient constructs an unauthenticated client with an initialized
// event channel.
func NewClient(connID string) *Client {
	return &Client{
		ConnID: connID,
		Events: make(chan *Event, 16),
	}
}

// Authenticated reports whether the registry has bound an identity.
func (c *Client) Authenticated() bool {
	return c.UserID != 0
}
