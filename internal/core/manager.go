package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cardroom/cardroom-server/internal/game"
	"github.com/cardroom/cardroom-server/internal/store"
	"github.com/cardroom/cardroom-server/internal/utils"
)

const (
	roomCodeLength   = 6
	codeGenAttempts  = 10
	defaultRounds    = 9
	defaultMode      = "online"
	maxRoomCapacity  = 8
	minRoomCapacity  = 2
	minPlayersToGo   = 2 // auto-start needs at least this many ready participants
)

// Hub owns every live room: the in-memory membership mirror, the per-room
// serialization and the join/leave/create/delete transitions. No other
// component mutates the mirror.
type Hub struct {
	store  store.Store
	reg    *Registry
	router *Router
	engine game.Engine
	log    *zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	rooms map[string]*roomState
}

// roomState is the in-memory mirror of one room. All mutating operations on
// the room take its mutex, so interleavings from different connections'
// goroutines cannot corrupt it; operations on different rooms run in
// parallel.
type roomState struct {
	mu           sync.Mutex
	deleted      bool
	room         *store.Room
	participants map[int64]*store.Participant
	nextOrder    int
}

// NewHub builds a hub over the given collaborators.
func NewHub(st store.Store, reg *Registry, router *Router, engine game.Engine, logger *zerolog.Logger) *Hub {
	return &Hub{
		store:  st,
		reg:    reg,
		router: router,
		engine: engine,
		log:    logger,
		now:    time.Now,
		rooms:  make(map[string]*roomState),
	}
}

// Registry exposes the connection registry for the transport layer.
func (h *Hub) Registry() *Registry {
	return h.reg
}

// CreateRoom allocates a unique code, persists the room with the caller as
// crown holder, and joins the caller as the first participant.
func (h *Hub) CreateRoom(ctx context.Context, c *Client, stake int64, maxPlayers int, settings store.Settings, private bool) (*RoomSnapshot, error) {
	if stake < 0 {
		return nil, coreError(ErrCodeBadRequest, "stake must not be negative")
	}
	if maxPlayers < minRoomCapacity || maxPlayers > maxRoomCapacity {
		return nil, coreError(ErrCodeBadRequest, fmt.Sprintf("max players must be between %d and %d", minRoomCapacity, maxRoomCapacity))
	}
	if settings.Rounds <= 0 {
		settings.Rounds = defaultRounds
	}
	if settings.Mode == "" {
		settings.Mode = defaultMode
	}

	code, err := h.generateCode(ctx)
	if err != nil {
		return nil, err
	}

	now := h.now()
	room := &store.Room{
		Code:           code,
		CrownHolderID:  c.UserID,
		Stake:          stake,
		MaxPlayers:     maxPlayers,
		Settings:       settings,
		Status:         store.RoomStatusWaiting,
		Private:        private,
		LastActivityAt: now,
	}
	if err := h.store.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	host := &store.Participant{
		RoomID:    room.ID,
		UserID:    c.UserID,
		Username:  c.Username,
		JoinOrder: 0,
		StakePaid: stake,
		JoinedAt:  now,
	}
	if err := h.store.AddParticipant(ctx, host); err != nil {
		return nil, fmt.Errorf("add host participant: %w", err)
	}

	state := &roomState{
		room:         room,
		participants: map[int64]*store.Participant{c.UserID: host},
		nextOrder:    1,
	}

	h.mu.Lock()
	h.rooms[code] = state
	h.mu.Unlock()

	h.reg.Bind(c, code)

	snapshot := state.snapshot()
	h.router.ToClient(c, &Event{Kind: EventRoomJoined, Room: code, Snapshot: snapshot})
	h.log.Info().Str("room", code).Int64("crown", c.UserID).Int64("stake", stake).Msg("room created")
	return snapshot, nil
}

// Join adds the caller to the room, or rebinds the socket when the caller
// already holds a live participant row (reconnection).
func (h *Hub) Join(ctx context.Context, c *Client, code string) (*RoomSnapshot, error) {
	state, err := h.state(code)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.deleted {
		return nil, coreError(ErrCodeRoomNotFound, "room not found")
	}

	// Reconnection: a live participant rebinds and gets the current snapshot
	// instead of a duplicate row.
	if _, ok := state.participants[c.UserID]; ok {
		c.Spectator = false
		h.reg.Bind(c, state.room.Code)
		snapshot := state.snapshot()
		h.router.ToClient(c, &Event{Kind: EventRoomJoined, Room: state.room.Code, Snapshot: snapshot})
		h.log.Debug().Str("room", state.room.Code).Int64("user_id", c.UserID).Msg("participant reconnected")
		return snapshot, nil
	}

	if state.room.Status != store.RoomStatusWaiting {
		return nil, coreError(ErrCodeRoomActive, "match already started")
	}
	if len(state.participants) >= state.room.MaxPlayers {
		return nil, coreError(ErrCodeRoomFull, "room is full")
	}
	// An unpublished private room is invite-only; only its existing
	// participants may (re)enter.
	if state.room.Private && !state.room.Published {
		return nil, coreError(ErrCodeRoomPrivate, "room is private")
	}

	now := h.now()
	p := &store.Participant{
		RoomID:    state.room.ID,
		UserID:    c.UserID,
		Username:  c.Username,
		JoinOrder: state.nextOrder,
		StakePaid: state.room.Stake,
		JoinedAt:  now,
	}
	if err := h.store.AddParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("add participant: %w", err)
	}
	state.participants[c.UserID] = p
	state.nextOrder++

	c.Spectator = false
	h.reg.Bind(c, state.room.Code)

	snapshot := state.snapshot()
	h.router.ToClient(c, &Event{Kind: EventRoomJoined, Room: state.room.Code, Snapshot: snapshot})
	h.router.ToRoomExcept(state.room.Code, &Event{
		Kind: EventPlayerJoined,
		Room: state.room.Code,
		Participant: &ParticipantInfo{
			UserID:    p.UserID,
			Username:  p.Username,
			JoinOrder: p.JoinOrder,
		},
	}, c)
	if state.listed() {
		h.router.ToAll(&Event{Kind: EventLobbyUpdated, Room: state.room.Code, Action: LobbyActionUpdated})
	}

	h.log.Info().Str("room", state.room.Code).Int64("user_id", c.UserID).Int("players", len(state.participants)).Msg("participant joined")
	return snapshot, nil
}

// Spectate binds the socket to the room's broadcast stream without creating
// a participant row. Spectators see every room-scoped event but hold no seat,
// no ready flag and no crown eligibility.
func (h *Hub) Spectate(ctx context.Context, c *Client, code string) (*RoomSnapshot, error) {
	state, err := h.state(code)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.deleted {
		return nil, coreError(ErrCodeRoomNotFound, "room not found")
	}
	if _, ok := state.participants[c.UserID]; ok {
		return nil, coreError(ErrCodeBadRequest, "already a participant of this room")
	}
	if state.room.Private && !state.room.Published {
		return nil, coreError(ErrCodeRoomPrivate, "room is private")
	}

	c.Spectator = true
	h.reg.Bind(c, state.room.Code)

	snapshot := state.snapshot()
	h.router.ToClient(c, &Event{Kind: EventRoomJoined, Room: state.room.Code, Snapshot: snapshot})
	h.log.Debug().Str("room", state.room.Code).Int64("user_id", c.UserID).Msg("spectator attached")
	return snapshot, nil
}

// Leave removes the caller from the room. The last participant out deletes
// the room synchronously; a departing crown holder hands the crown to the
// longest-standing remaining participant.
func (h *Hub) Leave(ctx context.Context, userID int64, code string) error {
	state, err := h.state(code)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.deleted {
		return coreError(ErrCodeRoomNotFound, "room not found")
	}

	return h.leaveLocked(ctx, state, userID)
}

// Disconnect performs socket-close cleanup: the same leave logic keyed off
// the registry's last known room binding, then forgets the socket. Crash
// and explicit leave are observably equivalent.
func (h *Hub) Disconnect(ctx context.Context, c *Client) {
	code := h.reg.RoomBinding(c)
	h.reg.Forget(c)
	if code == "" || !c.Authenticated() {
		return
	}

	state, err := h.state(code)
	if err != nil {
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.deleted {
		return
	}
	if err := h.leaveLocked(ctx, state, c.UserID); err != nil {
		var ce *Error
		if errors.As(err, &ce) && ce.Code == ErrCodeParticipantNotFound {
			return // stale binding, user already left via another socket
		}
		h.log.Error().Err(err).Str("room", code).Int64("user_id", c.UserID).Msg("disconnect cleanup failed")
	}
}

// leaveLocked is the single leave path shared by the leave command and
// socket-close cleanup. Caller holds state.mu.
func (h *Hub) leaveLocked(ctx context.Context, state *roomState, userID int64) error {
	p, ok := state.participants[userID]
	if !ok {
		return coreError(ErrCodeParticipantNotFound, "not a participant of this room")
	}

	now := h.now()
	if err := h.store.MarkParticipantLeft(ctx, state.room.ID, userID, now); err != nil {
		return fmt.Errorf("mark participant left: %w", err)
	}
	delete(state.participants, userID)
	h.reg.UnbindUser(state.room.Code, userID)

	code := state.room.Code
	if len(state.participants) == 0 {
		if err := h.deleteRoomLocked(ctx, state); err != nil {
			return err
		}
		h.log.Info().Str("room", code).Int64("user_id", userID).Msg("last participant left, room deleted")
		return nil
	}

	// The crown must always rest on a current participant.
	if state.room.CrownHolderID == userID {
		next := state.byJoinOrder()[0]
		if err := h.store.TransferCrown(ctx, state.room.ID, next.UserID); err != nil {
			return fmt.Errorf("transfer crown: %w", err)
		}
		state.room.CrownHolderID = next.UserID
		h.router.ToRoom(code, &Event{
			Kind:        EventCrownTransferred,
			Room:        code,
			PrevCrownID: userID,
			NextCrownID: next.UserID,
			Reason:      "left",
		})
	}

	h.router.ToRoom(code, &Event{Kind: EventPlayerLeft, Room: code, UserID: userID})
	if state.listed() {
		h.router.ToAll(&Event{Kind: EventLobbyUpdated, Room: code, Action: LobbyActionUpdated})
	}

	h.log.Info().Str("room", code).Int64("user_id", userID).Int("players", len(state.participants)).Int("join_order", p.JoinOrder).Msg("participant left")
	return nil
}

// deleteRoomLocked tears the room down: durable record first, then the
// mirror, then the global fan-out. Caller holds state.mu.
func (h *Hub) deleteRoomLocked(ctx context.Context, state *roomState) error {
	if err := h.store.DeleteRoom(ctx, state.room.ID); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	state.deleted = true

	h.mu.Lock()
	delete(h.rooms, state.room.Code)
	h.mu.Unlock()

	h.router.ToAll(&Event{Kind: EventLobbyUpdated, Room: state.room.Code, Action: LobbyActionDeleted})
	return nil
}

func (h *Hub) state(code string) (*roomState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.rooms[normalizeCode(code)]
	if !ok {
		return nil, coreError(ErrCodeRoomNotFound, "room not found")
	}
	return state, nil
}

func (h *Hub) generateCode(ctx context.Context) (string, error) {
	for i := 0; i < codeGenAttempts; i++ {
		code := utils.NewRoomCode(roomCodeLength)

		h.mu.Lock()
		_, taken := h.rooms[code]
		h.mu.Unlock()
		if taken {
			continue
		}

		if _, err := h.store.GetRoomByCode(ctx, code); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return code, nil
			}
			return "", fmt.Errorf("check room code: %w", err)
		}
	}
	return "", fmt.Errorf("could not allocate a unique room code")
}

// snapshot builds the public view of the room. Caller holds state.mu.
func (s *roomState) snapshot() *RoomSnapshot {
	snap := &RoomSnapshot{
		Code:          s.room.Code,
		CrownHolderID: s.room.CrownHolderID,
		Stake:         s.room.Stake,
		MaxPlayers:    s.room.MaxPlayers,
		Settings:      s.room.Settings,
		Status:        s.room.Status,
		Published:     s.room.Published,
		Private:       s.room.Private,
	}
	for _, p := range s.byJoinOrder() {
		snap.Participants = append(snap.Participants, ParticipantInfo{
			UserID:    p.UserID,
			Username:  p.Username,
			JoinOrder: p.JoinOrder,
			Ready:     p.Ready,
		})
	}
	return snap
}

// byJoinOrder returns active participants sorted by join order, the room's
// failover priority. Caller holds state.mu.
func (s *roomState) byJoinOrder() []*store.Participant {
	out := make([]*store.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinOrder < out[j].JoinOrder })
	return out
}

// listed reports whether the room appears in the public lobby list.
// Caller holds state.mu.
func (s *roomState) listed() bool {
	return s.room.Published && !s.room.Private && s.room.Status == store.RoomStatusWaiting
}

func normalizeCode(code string) string {
	out := []byte(code)
	for i, b := range out {
		if 'a' <= b && b <= 'z' {
			out[i] = b - 'a' + 'A'
		}
	}
	return string(out)
}
