package core

import (
	"context"
	"fmt"

	"github.com/cardroom/cardroom-server/internal/store"
)

// ReadyResult reports the outcome of a ready-flag change.
type ReadyResult struct {
	Ready    bool
	AllReady bool
	Started  bool
}

// SetReady persists the caller's ready flag, broadcasts the change, and
// fires the auto-start sequence when the change makes the whole room ready.
// This is the single handler behind both the socket command and the REST
// alternate, so two transports can never race each other into a double
// start.
func (h *Hub) SetReady(ctx context.Context, userID int64, code string, ready bool) (*ReadyResult, error) {
	state, err := h.state(code)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.deleted {
		return nil, coreError(ErrCodeRoomNotFound, "room not found")
	}

	p, ok := state.participants[userID]
	if !ok {
		return nil, coreError(ErrCodeParticipantNotFound, "not a participant of this room")
	}

	if err := h.store.UpdateParticipantReady(ctx, state.room.ID, userID, ready); err != nil {
		return nil, fmt.Errorf("update ready: %w", err)
	}
	p.Ready = ready
	if userID == state.room.CrownHolderID {
		h.refreshActivityLocked(ctx, state)
	}

	allReady := state.allReady()
	h.router.ToRoom(state.room.Code, &Event{
		Kind:     EventReadyChanged,
		Room:     state.room.Code,
		UserID:   userID,
		Ready:    ready,
		AllReady: allReady,
	})

	result := &ReadyResult{Ready: ready, AllReady: allReady}
	if allReady && state.room.Status == store.RoomStatusWaiting {
		if err := h.startLocked(ctx, state); err != nil {
			return nil, err
		}
		result.Started = true
	}
	return result, nil
}

// allReady reports whether every active participant is ready and there are
// enough of them to play. Caller holds state.mu.
func (s *roomState) allReady() bool {
	if len(s.participants) < minPlayersToGo {
		return false
	}
	for _, p := range s.participants {
		if !p.Ready {
			return false
		}
	}
	return true
}

// startLocked performs the atomic start sequence: status flip (with
// idempotency guard), best-effort stake settlement, engine hand-off, then
// the room-scoped start and global lobby-removal broadcasts. Caller holds
// state.mu.
func (h *Hub) startLocked(ctx context.Context, state *roomState) error {
	flipped, err := h.store.UpdateRoomStatus(ctx, state.room.ID, store.RoomStatusWaiting, store.RoomStatusActive)
	if err != nil {
		return fmt.Errorf("flip room status: %w", err)
	}
	if !flipped {
		// Another trigger won the flip; this one is a no-op.
		h.log.Warn().Str("room", state.room.Code).Msg("auto-start raced, already active")
		return coreError(ErrCodeStartRaced, "match already starting")
	}
	state.room.Status = store.RoomStatusActive
	state.room.SettingsLocked = true

	// Stake settlement is best-effort: one participant's failure is logged
	// and does not block the others or abort the start.
	players := state.byJoinOrder()
	for _, p := range players {
		if p.StakePaid <= 0 {
			continue
		}
		if err := h.store.DebitBalance(ctx, p.UserID, p.StakePaid); err != nil {
			h.log.Error().Err(err).Str("room", state.room.Code).Int64("user_id", p.UserID).Int64("stake", p.StakePaid).Msg("stake settlement failed for participant")
		}
	}

	playerIDs := make([]int64, 0, len(players))
	for _, p := range players {
		playerIDs = append(playerIDs, p.UserID)
	}
	if deal, err := h.engine.Deal(playerIDs, state.room.Settings.Rounds); err != nil {
		h.log.Error().Err(err).Str("room", state.room.Code).Msg("engine deal failed")
	} else {
		h.log.Debug().Str("room", state.room.Code).Int("hands", len(deal.Hands)).Msg("initial deal ready")
	}

	settings := state.room.Settings
	h.router.ToRoom(state.room.Code, &Event{
		Kind:     EventRoomStarted,
		Room:     state.room.Code,
		Settings: &settings,
		Players:  len(players),
	})
	h.router.ToAll(&Event{Kind: EventLobbyUpdated, Room: state.room.Code, Action: LobbyActionDeleted})

	h.log.Info().Str("room", state.room.Code).Int("players", len(players)).Msg("match started")
	return nil
}
