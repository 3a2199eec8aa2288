package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cardroom/cardroom-server/internal/store"
)

// fakeNow pins the hub clock to a settable instant.
func fakeNow(hub *Hub, base time.Time) func(time.Duration) {
	current := base
	hub.now = func() time.Time { return current }
	return func(offset time.Duration) { current = base.Add(offset) }
}

func newTestMonitor(hub *Hub) *IdleMonitor {
	logger := zerolog.New(nil)
	return NewIdleMonitor(hub, DefaultSweepInterval, &logger)
}

func TestIdleWarningThenFailover(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()
	advance := fakeNow(hub, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	monitor := newTestMonitor(hub)

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

	// Inside the warn threshold nothing happens.
	advance(IdleWarnAfter)
	monitor.Sweep(ctx)
	if countKind(drainEvents(bob), EventIdleWarning) != 0 {
		t.Fatalf("warning issued before the threshold elapsed")
	}

	advance(IdleWarnAfter + time.Second)
	monitor.Sweep(ctx)
	warn := mustEvent(t, bob.Events, EventIdleWarning)
	if warn.CrownID != alice.UserID || warn.GraceMS != IdleGrace.Milliseconds() {
		t.Fatalf("unexpected warning: %+v", warn)
	}

	// Still inside the grace period: warned, not failed over.
	advance(IdleFailoverAfter)
	monitor.Sweep(ctx)
	if countKind(drainEvents(bob), EventCrownTransferred) != 0 {
		t.Fatalf("failover fired inside the grace period")
	}

	advance(IdleFailoverAfter + time.Second)
	monitor.Sweep(ctx)
	ev := mustEvent(t, bob.Events, EventCrownTransferred)
	if ev.PrevCrownID != alice.UserID || ev.NextCrownID != bob.UserID || ev.Reason != "idle" {
		t.Fatalf("unexpected failover: %+v", ev)
	}

	room, err := st.GetRoomByCode(ctx, snap.Code)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.CrownHolderID != bob.UserID {
		t.Fatalf("failover not persisted, holder is %d", room.CrownHolderID)
	}

	// The new holder got a fresh activity slate; the next sweep is quiet.
	monitor.Sweep(ctx)
	if countKind(drainEvents(bob), EventIdleWarning) != 0 {
		t.Fatalf("new crown holder warned immediately after failover")
	}
}

func TestRepeatedSweepWarnsOnce(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()
	advance := fakeNow(hub, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	monitor := newTestMonitor(hub)

	alice := seedClient(t, hub, st, "alice")
	bob := seedClient(t, hub, st, "bob")

	snap, err := hub.CreateRoom(ctx, alice, 0, 4, store.Settings{}, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := hub.Join(ctx, bob, snap.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	drainEvents(bob)

	advance(IdleWarnAfter + time.Second)
	monitor.Sweep(ctx)
	monitor.Sweep(ctx)

	if got := countKind(drainEvents(bob), EventIdleWarning); got != 1 {
		t.Fatalf("expected exactly one warning, got %d", got)
	}
}

func TestActivitySignalClearsWarning(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()
	advance := fakeNow(hub, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	monitor := newTestMonitor(hub)

	alice := seedClient(t, hub, st, "alice")
	bob := seedClient(t, hub, st, "bob")

	snap, err := hub.CreateRoom(ctx, alice, 0, 4, store.Settings{}, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := hub.Join(ctx, bob, snap.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	drainEvents(bob)

	advance(IdleWarnAfter + time.Second)
	monitor.Sweep(ctx)
	mustEvent(t, bob.Events, EventIdleWarning)

	if err := hub.Activity(ctx, alice.UserID, snap.Code); err != nil {
		t.Fatalf("activity: %v", err)
	}

	// Past the original failover deadline, but the clock restarted.
	advance(IdleFailoverAfter + time.Second)
	monitor.Sweep(ctx)
	if countKind(drainEvents(bob), EventCrownTransferred) != 0 {
		t.Fatalf("failover fired after the warning was cleared")
	}
}

func TestActivityFromNonCrownIgnored(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()
	advance := fakeNow(hub, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	monitor := newTestMonitor(hub)

	alice := seedClient(t, hub, st, "alice")
	bob := seedClient(t, hub, st, "bob")

	snap, err := hub.CreateRoom(ctx, alice, 0, 4, store.Settings{}, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := hub.Join(ctx, bob, snap.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	drainEvents(bob)

	advance(IdleWarnAfter + time.Second)
	monitor.Sweep(ctx)
	mustEvent(t, bob.Events, EventIdleWarning)

	// Only the crown holder's activity counts.
	if err := hub.Activity(ctx, bob.UserID, snap.Code); err != nil {
		t.Fatalf("activity: %v", err)
	}

	advance(IdleFailoverAfter + time.Second)
	monitor.Sweep(ctx)
	ev := mustEvent(t, bob.Events, EventCrownTransferred)
	if ev.Reason != "idle" {
		t.Fatalf("expected idle failover, got %+v", ev)
	}
}

func TestMutatingCommandClearsWarning(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()
	advance := fakeNow(hub, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	monitor := newTestMonitor(hub)

	alice := seedClient(t, hub, st, "alice")
	bob := seedClient(t, hub, st, "bob")

	snap, err := hub.CreateRoom(ctx, alice, 0, 4, store.Settings{}, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := hub.Join(ctx, bob, snap.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	drainEvents(bob)

	advance(IdleWarnAfter + time.Second)
	monitor.Sweep(ctx)
	mustEvent(t, bob.Events, EventIdleWarning)

	// A settings change is crown activity in its own right.
	if _, err := hub.UpdateSettings(ctx, alice.UserID, snap.Code, store.Settings{Rounds: 7, Mode: "online"}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	advance(IdleFailoverAfter + time.Second)
	monitor.Sweep(ctx)
	if countKind(drainEvents(bob), EventCrownTransferred) != 0 {
		t.Fatalf("failover fired after a mutating crown command")
	}
}

func TestSoloIdleCrownClosesRoom(t *testing.T) {
	hub, st := newTestHub(t)
	ctx := context.Background()
	advance := fakeNow(hub, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	monitor := newTestMonitor(hub)

	alice := seedClient(t, hub, st, "alice")

	snap, err := hub.CreateRoom(ctx, alice, 0, 4, store.Settings{}, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	drainEvents(alice)

	advance(IdleWarnAfter + time.Second)
	monitor.Sweep(ctx)
	mustEvent(t, alice.Events, EventIdleWarning)

	advance(IdleFailoverAfter + time.Second)
	monitor.Sweep(ctx)

	closed := mustEvent(t, alice.Events, EventRoomClosed)
	if closed.Reason != "idle" {
		t.Fatalf("unexpected close reason: %+v", closed)
	}
	// No one to hand the crown to, so no transfer is announced.
	if countKind(drainEvents(alice), EventCrownTransferred) != 0 {
		t.Fatalf("crown transfer announced in an empty room")
	}

	if _, err := st.GetRoomByCode(ctx, snap.Code); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("room record must be gone, got %v", err)
	}
}
