package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cardroom/cardroom-server/internal/game"
	"github.com/cardroom/cardroom-server/internal/store"
	"github.com/cardroom/cardroom-server/internal/store/sqlite"
	"github.com/cardroom/cardroom-server/internal/utils"
)

func newTestHub(t *testing.T) (*Hub, store.Store) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := zerolog.New(nil)
	reg := NewRegistry(st, &logger)
	router := NewRouter(reg, &logger)
	hub := NewHub(st, reg, router, game.NewStandardEngine(), &logger)
	return hub, st
}

func seedClient(t *testing.T, hub *Hub, st store.Store, username string) *Client {
	t.Helper()

	user, err := st.CreateUser(context.Background(), username, "hash")
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}

	c := NewClient(utils.NewConnID())
	if _, err := hub.Registry().Authenticate(context.Background(), c, user.ID); err != nil {
		t.Fatalf("failed to authenticate %s: %v", username, err)
	}
	return c
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// drainEvents empties the client's channel and returns what was buffered.
func drainEvents(c *Client) []*Event {
	var out []*Event
	for {
		select {
		case ev := <-c.Events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countKind(events []*Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func coreCode(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error")
	}
	return AsError(err).Code
}
