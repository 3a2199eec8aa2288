package core

import (
	"context"
	"sync"
	"testing"

	"github.com/cardroom/cardroom-server/internal/store"
)

func TestSetReadyBroadcasts(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()

	alice := seedClient(t, hub, st, "alice")
	bob := seedClient(t, hub, st, "bob")

	snap, err := hub.CreateRoom(ctx, alice, 0, 4, store.Settings{}, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := hub.Join(ctx, bob, snap.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	drainEvents(alice)
	drainEvents(bob)

	res, err := hub.SetReady(ctx, bob.UserID, snap.Code, true)
	if err != nil {
		t.Fatalf("set ready: %v", err)
	}
	if !res.Ready || res.AllReady || res.Started {
		t.Fatalf("unexpected result: %+v", res)
	}

	ev := mustEvent(t, alice.Events, EventReadyChanged)
	if ev.UserID != bob.UserID || !ev.Ready || ev.AllReady {
		t.Fatalf("unexpected ready event: %+v", ev)
	}

	// Toggling back off is announced the same way.
	if _, err := hub.SetReady(ctx, bob.UserID, snap.Code, false); err != nil {
		t.Fatalf("unset ready: %v", err)
	}
	ev = mustEvent(t, alice.Events, EventReadyChanged)
	if ev.Ready {
		t.Fatalf("expected ready=false, got %+v", ev)
	}
}

func TestSetReadyNonParticipant(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()

	alice := seedClient(t, hub, st, "alice")
	stranger := seedClient(t, hub, st, "stranger")

	snap, err := hub.CreateRoom(ctx, alice, 0, 4, store.Settings{}, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	_, err = hub.SetReady(ctx, stranger.UserID, snap.Code, true)
	if code := coreCode(t, err); code != ErrCodeParticipantNotFound {
		t.Fatalf("expected participant_not_found, got %s", code)
	}
}

func TestAutoStartWhenAllReady(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()

	alice := seedClient(t, hub, st, "alice")
	bob := seedClient(t, hub, st, "bob")

	snap, err := hub.CreateRoom(ctx, alice, 100, 4, store.Settings{Rounds: 9, Mode: "online"}, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := hub.Join(ctx, bob, snap.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	drainEvents(alice)
	drainEvents(bob)

	if _, err := hub.SetReady(ctx, alice.UserID, snap.Code, true); err != nil {
		t.Fatalf("set ready: %v", err)
	}
	res, err := hub.SetReady(ctx, bob.UserID, snap.Code, true)
	if err != nil {
		t.Fatalf("set ready: %v", err)
	}
	if !res.AllReady || !res.Started {
		t.Fatalf("expected auto-start, got %+v", res)
	}

	for _, c := range []*Client{alice, bob} {
		ev := mustEvent(t, c.Events, EventRoomStarted)
		if ev.Players != 2 || ev.Settings == nil || ev.Settings.Rounds != 9 || ev.Settings.Mode != "online" {
			t.Fatalf("unexpected started event for %s: %+v", c.Username, ev)
		}
	}

	lobby := mustEvent(t, alice.Events, EventLobbyUpdated)
	for lobby.Action != LobbyActionDeleted {
		lobby = mustEvent(t, alice.Events, EventLobbyUpdated)
	}

	room, err := st.GetRoomByCode(ctx, snap.Code)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.Status != store.RoomStatusActive {
		t.Fatalf("expected active status, got %s", room.Status)
	}

	// Each participant paid exactly one stake from the default balance.
	for _, c := range []*Client{alice, bob} {
		u, err := st.GetUserByID(ctx, c.UserID)
		if err != nil {
			t.Fatalf("get user: %v", err)
		}
		if u.Balance != 900 {
			t.Errorf("%s balance = %d, want 900", c.Username, u.Balance)
		}
	}
}

func TestRedundantReadyDoesNotRestart(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()

	alice := seedClient(t, hub, st, "alice")
	bob := seedClient(t, hub, st, "bob")

	snap, err := hub.CreateRoom(ctx, alice, 100, 4, store.Settings{}, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := hub.Join(ctx, bob, snap.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := hub.SetReady(ctx, alice.UserID, snap.Code, true); err != nil {
		t.Fatalf("set ready: %v", err)
	}
	if _, err := hub.SetReady(ctx, bob.UserID, snap.Code, true); err != nil {
		t.Fatalf("set ready: %v", err)
	}
	drainEvents(alice)
	drainEvents(bob)

	// The room is active now; a repeated ready is acknowledged but must not
	// trigger a second start or a second debit.
	res, err := hub.SetReady(ctx, bob.UserID, snap.Code, true)
	if err != nil {
		t.Fatalf("redundant ready: %v", err)
	}
	if res.Started {
		t.Fatalf("redundant ready restarted the match")
	}
	if countKind(drainEvents(alice), EventRoomStarted) != 0 {
		t.Fatalf("redundant ready broadcast a second start")
	}

	u, err := st.GetUserByID(ctx, bob.UserID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Balance != 900 {
		t.Fatalf("stake debited twice, balance = %d", u.Balance)
	}
}

func TestConcurrentReadyStartsOnce(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()

	alice := seedClient(t, hub, st, "alice")
	bob := seedClient(t, hub, st, "bob")
	carol := seedClient(t, hub, st, "carol")

	snap, err := hub.CreateRoom(ctx, alice, 50, 4, store.Settings{}, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := hub.Join(ctx, bob, snap.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := hub.Join(ctx, carol, snap.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := hub.SetReady(ctx, alice.UserID, snap.Code, true); err != nil {
		t.Fatalf("set ready: %v", err)
	}
	drainEvents(alice)
	drainEvents(bob)
	drainEvents(carol)

	// Both remaining participants flip ready at the same moment. Exactly one
	// interleaving completes the set and starts the match.
	var wg sync.WaitGroup
	started := make(chan bool, 2)
	for _, c := range []*Client{bob, carol} {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			res, err := hub.SetReady(ctx, c.UserID, snap.Code, true)
			if err != nil {
				t.Errorf("set ready for %s: %v", c.Username, err)
				return
			}
			started <- res.Started
		}(c)
	}
	wg.Wait()
	close(started)

	startCount := 0
	for s := range started {
		if s {
			startCount++
		}
	}
	if startCount != 1 {
		t.Fatalf("expected exactly one start, got %d", startCount)
	}
	if countKind(drainEvents(alice), EventRoomStarted) != 1 {
		t.Fatalf("expected exactly one started broadcast")
	}

	// One stake per participant, no matter which interleaving won.
	for _, c := range []*Client{alice, bob, carol} {
		u, err := st.GetUserByID(ctx, c.UserID)
		if err != nil {
			t.Fatalf("get user: %v", err)
		}
		if u.Balance != 950 {
			t.Errorf("%s balance = %d, want 950", c.Username, u.Balance)
		}
	}
}

func TestStakeSettlementBestEffort(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()

	alice := seedClient(t, hub, st, "alice")
	bob := seedClient(t, hub, st, "bob")

	// Stake exceeds the default balance for everyone.
	snap, err := hub.CreateRoom(ctx, alice, 5000, 4, store.Settings{}, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := hub.Join(ctx, bob, snap.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	drainEvents(alice)
	drainEvents(bob)

	if _, err := hub.SetReady(ctx, alice.UserID, snap.Code, true); err != nil {
		t.Fatalf("set ready: %v", err)
	}
	res, err := hub.SetReady(ctx, bob.UserID, snap.Code, true)
	if err != nil {
		t.Fatalf("set ready: %v", err)
	}
	if !res.Started {
		t.Fatalf("failed debits must not block the start")
	}
	mustEvent(t, alice.Events, EventRoomStarted)

	u, err := st.GetUserByID(ctx, bob.UserID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Balance != 1000 {
		t.Fatalf("insufficient balance was debited anyway: %d", u.Balance)
	}
}

func TestSoloReadyDoesNotStart(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()

	alice := seedClient(t, hub, st, "alice")
	snap, err := hub.CreateRoom(ctx, alice, 0, 4, store.Settings{}, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	res, err := hub.SetReady(ctx, alice.UserID, snap.Code, true)
	if err != nil {
		t.Fatalf("set ready: %v", err)
	}
	if res.AllReady || res.Started {
		t.Fatalf("a lone ready participant must not start a match: %+v", res)
	}
}
