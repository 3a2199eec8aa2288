package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInsufficientFunds is returned when a debit would take a balance negative.
var ErrInsufficientFunds = errors.New("insufficient funds")

// User represents a player account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsGuest      bool
	SessionID    string // For guest user session tracking
	Balance      int64  // Soft currency used for stakes
	CreatedAt    time.Time
}

// RoomStatus describes where a room is in its lifecycle.
type RoomStatus string

const (
	RoomStatusWaiting RoomStatus = "waiting"
	RoomStatusActive  RoomStatus = "active"
	RoomStatusClosed  RoomStatus = "closed"
)

// Settings is the crown-holder-configurable part of a room.
type Settings struct {
	Rounds int
	Mode   string
}

// Room is the durable room record.
type Room struct {
	ID             int64
	Code           string // short shareable token, unique, case-insensitive
	CrownHolderID  int64
	Stake          int64
	MaxPlayers     int
	Settings       Settings
	Status         RoomStatus
	Published      bool
	Private        bool
	SettingsLocked bool
	LastActivityAt time.Time
	IdleWarnedAt   *time.Time // nil while no idle warning is pending
	CreatedAt      time.Time
}

// Participant links a user to a room.
type Participant struct {
	ID        int64
	RoomID    int64
	UserID    int64
	Username  string // denormalized public profile field for snapshots
	JoinOrder int    // monotonic per room, doubles as failover priority
	Ready     bool
	StakePaid int64
	JoinedAt  time.Time
	LeftAt    *time.Time // nil means currently active
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// CreateGuestUser creates a temporary guest user with session ID.
	CreateGuestUser(ctx context.Context, sessionID string) (*User, error)

	// GetUserByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// DebitBalance subtracts amount from the user's balance.
	// Fails with ErrInsufficientFunds when the balance would go negative.
	DebitBalance(ctx context.Context, userID, amount int64) error
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom persists a new room and fills in its ID and CreatedAt.
	CreateRoom(ctx context.Context, room *Room) error

	// GetRoomByCode retrieves a room by its shareable code (case-insensitive).
	GetRoomByCode(ctx context.Context, code string) (*Room, error)

	// ListLobbyRooms lists published, non-private rooms still waiting for players.
	ListLobbyRooms(ctx context.Context) ([]*Room, error)

	// ListRoomsWithCrown lists every existing room that has a crown holder
	// and is not closed. Used by the idle sweep.
	ListRoomsWithCrown(ctx context.Context) ([]*Room, error)

	// DeleteRoom removes a room record entirely.
	DeleteRoom(ctx context.Context, roomID int64) error

	// UpdateRoomSettings overwrites the configurable settings.
	UpdateRoomSettings(ctx context.Context, roomID int64, settings Settings) error

	// PublishRoom marks the room published, permanently locks its settings
	// and records its final private flag.
	PublishRoom(ctx context.Context, roomID int64, private bool) error

	// TransferCrown sets a new crown holder for the room.
	TransferCrown(ctx context.Context, roomID, userID int64) error

	// UpdateRoomStatus flips status from one value to another. Returns false
	// without error when the room was not in the expected status; this backs
	// the auto-start idempotency guard.
	UpdateRoomStatus(ctx context.Context, roomID int64, from, to RoomStatus) (bool, error)

	// TouchActivity refreshes the room's last-activity timestamp.
	TouchActivity(ctx context.Context, roomID int64, at time.Time) error

	// SetIdleWarning records the idle-warning timestamp.
	SetIdleWarning(ctx context.Context, roomID int64, at time.Time) error

	// ClearIdleWarning removes a pending idle warning.
	ClearIdleWarning(ctx context.Context, roomID int64) error
}

// ParticipantStore handles room membership persistence.
type ParticipantStore interface {
	// AddParticipant persists a new participant row and fills in its ID.
	AddParticipant(ctx context.Context, p *Participant) error

	// MarkParticipantLeft stamps left-at on the user's active row in the room.
	MarkParticipantLeft(ctx context.Context, roomID, userID int64, at time.Time) error

	// ListActiveParticipants lists non-left participants ordered by join order.
	ListActiveParticipants(ctx context.Context, roomID int64) ([]*Participant, error)

	// UpdateParticipantReady sets the ready flag on the user's active row.
	UpdateParticipantReady(ctx context.Context, roomID, userID int64, ready bool) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	ParticipantStore

	// Close closes the underlying database connection.
	Close() error
}
