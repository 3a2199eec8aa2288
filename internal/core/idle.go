package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Crown-idleness thresholds. A silent crown holder is warned after
// IdleWarnAfter and replaced (or the room closed) after IdleFailoverAfter;
// the difference is the announced grace period.
const (
	IdleWarnAfter        = 4 * time.Minute
	IdleFailoverAfter    = 5 * time.Minute
	IdleGrace            = IdleFailoverAfter - IdleWarnAfter
	DefaultSweepInterval = time.Minute
)

// IdlePhase is the crown-idleness state of a room.
type IdlePhase string

const (
	// IdlePhaseActive means no idle warning is pending.
	IdlePhaseActive IdlePhase = "active"
	// IdlePhaseWarned means a warning was broadcast and the grace period runs.
	IdlePhaseWarned IdlePhase = "warned"
)

// idlePhase derives the room's phase. Caller holds state.mu.
func (s *roomState) idlePhase() IdlePhase {
	if s.room.IdleWarnedAt != nil {
		return IdlePhaseWarned
	}
	return IdlePhaseActive
}

// IdleMonitor periodically sweeps all rooms with a crown holder and drives
// the warn/failover transitions. It shares no state with request handling
// beyond the per-room locks, which also make overlapping sweeps safe.
type IdleMonitor struct {
	hub      *Hub
	interval time.Duration
	log      *zerolog.Logger
}

// NewIdleMonitor builds a monitor over the hub. A non-positive interval
// falls back to the default sweep period.
func NewIdleMonitor(hub *Hub, interval time.Duration, logger *zerolog.Logger) *IdleMonitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &IdleMonitor{hub: hub, interval: interval, log: logger}
}

// Run sweeps on a fixed period until the context is cancelled.
func (m *IdleMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", m.interval).Msg("idle monitor started")
	for {
		select {
		case <-ticker.C:
			m.Sweep(ctx)
		case <-ctx.Done():
			m.log.Info().Msg("idle monitor stopped")
			return
		}
	}
}

// Sweep examines every candidate room once. A failure for one room is
// isolated and does not abort the sweep for the others.
func (m *IdleMonitor) Sweep(ctx context.Context) {
	rooms, err := m.hub.store.ListRoomsWithCrown(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("idle sweep: list rooms failed")
		return
	}
	for _, room := range rooms {
		if err := m.hub.sweepRoom(ctx, room.Code); err != nil {
			m.log.Error().Err(err).Str("room", room.Code).Msg("idle sweep failed for room")
		}
	}
}

// sweepRoom applies the warn/failover state machine to one room.
func (h *Hub) sweepRoom(ctx context.Context, code string) error {
	state, err := h.state(code)
	if err != nil {
		return nil // deleted between listing and sweeping
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.deleted {
		return nil
	}

	idle := h.now().Sub(state.room.LastActivityAt)
	switch state.idlePhase() {
	case IdlePhaseActive:
		if idle <= IdleWarnAfter {
			return nil
		}
		now := h.now()
		if err := h.store.SetIdleWarning(ctx, state.room.ID, now); err != nil {
			return err
		}
		state.room.IdleWarnedAt = &now
		h.router.ToRoom(state.room.Code, &Event{
			Kind:    EventIdleWarning,
			Room:    state.room.Code,
			CrownID: state.room.CrownHolderID,
			GraceMS: IdleGrace.Milliseconds(),
		})
		h.log.Info().Str("room", state.room.Code).Int64("crown", state.room.CrownHolderID).Msg("idle warning issued")

	case IdlePhaseWarned:
		if idle <= IdleFailoverAfter {
			return nil
		}
		return h.failoverLocked(ctx, state)
	}
	return nil
}

// failoverLocked replaces a silent crown holder with the lowest-join-order
// remaining participant, or closes the room when none exists. Caller holds
// state.mu.
func (h *Hub) failoverLocked(ctx context.Context, state *roomState) error {
	prev := state.room.CrownHolderID

	var next *ParticipantInfo
	for _, p := range state.byJoinOrder() {
		if p.UserID != prev {
			next = &ParticipantInfo{UserID: p.UserID, Username: p.Username, JoinOrder: p.JoinOrder}
			break
		}
	}

	if next == nil {
		// The silent crown holder is alone; close the room.
		code := state.room.Code
		if err := h.store.MarkParticipantLeft(ctx, state.room.ID, prev, h.now()); err != nil {
			return err
		}
		delete(state.participants, prev)
		h.router.ToRoom(code, &Event{Kind: EventRoomClosed, Room: code, Reason: "idle"})
		if err := h.deleteRoomLocked(ctx, state); err != nil {
			return err
		}
		h.reg.UnbindUser(code, prev)
		h.log.Info().Str("room", code).Int64("crown", prev).Msg("room closed, crown holder idle and alone")
		return nil
	}

	if err := h.store.TransferCrown(ctx, state.room.ID, next.UserID); err != nil {
		return err
	}
	state.room.CrownHolderID = next.UserID
	// The new crown holder starts with a clean activity slate.
	h.refreshActivityLocked(ctx, state)

	h.router.ToRoom(state.room.Code, &Event{
		Kind:        EventCrownTransferred,
		Room:        state.room.Code,
		PrevCrownID: prev,
		NextCrownID: next.UserID,
		Reason:      "idle",
	})
	h.log.Info().Str("room", state.room.Code).Int64("prev", prev).Int64("next", next.UserID).Msg("crown failed over after idle timeout")
	return nil
}
