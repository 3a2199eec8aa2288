package core

import (
	"context"
	"fmt"

	"github.com/cardroom/cardroom-server/internal/store"
)

// UpdateSettings applies new settings to an unlocked room. Crown holder only.
func (h *Hub) UpdateSettings(ctx context.Context, userID int64, code string, settings store.Settings) (*store.Settings, error) {
	state, err := h.state(code)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.deleted {
		return nil, coreError(ErrCodeRoomNotFound, "room not found")
	}
	if state.room.CrownHolderID != userID {
		return nil, coreError(ErrCodeNotCrown, "only the crown holder may change settings")
	}
	if state.room.SettingsLocked {
		return nil, coreError(ErrCodeSettingsLocked, "settings are locked")
	}
	if settings.Rounds <= 0 || settings.Mode == "" {
		return nil, coreError(ErrCodeBadRequest, "invalid settings")
	}

	if err := h.store.UpdateRoomSettings(ctx, state.room.ID, settings); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	state.room.Settings = settings
	h.refreshActivityLocked(ctx, state)

	h.router.ToRoom(state.room.Code, &Event{
		Kind:     EventSettingsUpdated,
		Room:     state.room.Code,
		Settings: &settings,
	})
	h.log.Info().Str("room", state.room.Code).Int("rounds", settings.Rounds).Str("mode", settings.Mode).Msg("settings updated")
	return &state.room.Settings, nil
}

// Publish makes the lobby publicly joinable and permanently locks its
// settings. Crown holder only.
func (h *Hub) Publish(ctx context.Context, userID int64, code string, private bool) error {
	state, err := h.state(code)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.deleted {
		return coreError(ErrCodeRoomNotFound, "room not found")
	}
	if state.room.CrownHolderID != userID {
		return coreError(ErrCodeNotCrown, "only the crown holder may publish")
	}
	if state.room.Published {
		return coreError(ErrCodeAlreadyPublished, "room is already published")
	}

	if err := h.store.PublishRoom(ctx, state.room.ID, private); err != nil {
		return fmt.Errorf("publish room: %w", err)
	}
	state.room.Published = true
	state.room.SettingsLocked = true
	state.room.Private = private
	h.refreshActivityLocked(ctx, state)

	h.router.ToRoom(state.room.Code, &Event{
		Kind:      EventRoomPublished,
		Room:      state.room.Code,
		IsPrivate: private,
	})
	if !private {
		h.router.ToAll(&Event{Kind: EventLobbyUpdated, Room: state.room.Code, Action: LobbyActionCreated})
	}
	h.log.Info().Str("room", state.room.Code).Bool("private", private).Msg("room published")
	return nil
}

// TransferCrown hands authority to a named current participant. Crown
// holder only.
func (h *Hub) TransferCrown(ctx context.Context, userID int64, code string, targetID int64) error {
	state, err := h.state(code)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.deleted {
		return coreError(ErrCodeRoomNotFound, "room not found")
	}
	if state.room.CrownHolderID != userID {
		return coreError(ErrCodeNotCrown, "only the crown holder may transfer the crown")
	}
	if _, ok := state.participants[targetID]; !ok {
		return coreError(ErrCodeParticipantNotFound, "target is not a participant of this room")
	}

	if err := h.store.TransferCrown(ctx, state.room.ID, targetID); err != nil {
		return fmt.Errorf("transfer crown: %w", err)
	}
	prev := state.room.CrownHolderID
	state.room.CrownHolderID = targetID
	h.refreshActivityLocked(ctx, state)

	h.router.ToRoom(state.room.Code, &Event{
		Kind:        EventCrownTransferred,
		Room:        state.room.Code,
		PrevCrownID: prev,
		NextCrownID: targetID,
		Reason:      "manual",
	})
	h.log.Info().Str("room", state.room.Code).Int64("prev", prev).Int64("next", targetID).Msg("crown transferred")
	return nil
}

// Activity is the explicit refresh signal from the crown holder. It clears
// a pending idle warning and refreshes last activity; without a pending
// warning it has no effect.
func (h *Hub) Activity(ctx context.Context, userID int64, code string) error {
	state, err := h.state(code)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.deleted {
		return coreError(ErrCodeRoomNotFound, "room not found")
	}
	if state.room.CrownHolderID != userID {
		return nil // only the crown holder's silence is monitored
	}
	if state.room.IdleWarnedAt == nil {
		return nil
	}

	h.refreshActivityLocked(ctx, state)
	h.log.Debug().Str("room", state.room.Code).Int64("crown", userID).Msg("idle warning cleared by activity signal")
	return nil
}

// refreshActivityLocked stamps last activity and clears any pending idle
// warning. Every crown-holder mutating command routes through here, so a
// crown holder actively configuring the room is never failed over.
// Persistence failures are logged, not propagated: the command that
// triggered the refresh already succeeded. Caller holds state.mu.
func (h *Hub) refreshActivityLocked(ctx context.Context, state *roomState) {
	now := h.now()
	if err := h.store.TouchActivity(ctx, state.room.ID, now); err != nil {
		h.log.Warn().Err(err).Str("room", state.room.Code).Msg("failed to persist activity refresh")
		return
	}
	state.room.LastActivityAt = now

	if state.room.IdleWarnedAt != nil {
		if err := h.store.ClearIdleWarning(ctx, state.room.ID); err != nil {
			h.log.Warn().Err(err).Str("room", state.room.Code).Msg("failed to clear idle warning")
			return
		}
		state.room.IdleWarnedAt = nil
	}
}
