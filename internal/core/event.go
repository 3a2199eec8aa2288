package core

import "github.com/cardroom/cardroom-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRoomJoined delivers the full room snapshot to a joiner.
	EventRoomJoined EventKind = iota
	// EventPlayerJoined notifies a room that a participant joined.
	EventPlayerJoined
	// EventPlayerLeft notifies a room that a participant left.
	EventPlayerLeft
	// EventSettingsUpdated notifies a room about a settings change.
	EventSettingsUpdated
	// EventRoomPublished notifies a room it became joinable.
	EventRoomPublished
	// EventCrownTransferred notifies a room about a change of authority.
	EventCrownTransferred
	// EventReadyChanged notifies a room about a ready-flag change.
	EventReadyChanged
	// EventRoomStarted notifies a room the match began.
	EventRoomStarted
	// EventIdleWarning warns a room its crown holder has been silent.
	EventIdleWarning
	// EventRoomClosed notifies a room it was shut down.
	EventRoomClosed
	// EventLobbyUpdated is the global lobby-list fan-out.
	EventLobbyUpdated
	// EventError notifies a single client about a command failure.
	EventError
)

// Lobby-list actions carried by EventLobbyUpdated.
const (
	LobbyActionCreated = "created"
	LobbyActionUpdated = "updated"
	LobbyActionDeleted = "deleted"
	LobbyActionStarted = "started"
)

// ParticipantInfo is the public view of a participant.
type ParticipantInfo struct {
	UserID    int64
	Username  string
	JoinOrder int
	Ready     bool
}

// RoomSnapshot is the full room state sent to a (re)joining client.
type RoomSnapshot struct {
	Code          string
	CrownHolderID int64
	Stake         int64
	MaxPlayers    int
	Settings      store.Settings
	Status        store.RoomStatus
	Published     bool
	Private       bool
	Participants  []ParticipantInfo
}

// Event is sent to clients to describe what happened in the system.
// Fields beyond Kind and Room are populated per kind.
type Event struct {
	Kind EventKind
	Room string // room code

	Snapshot    *RoomSnapshot    // EventRoomJoined
	Participant *ParticipantInfo // EventPlayerJoined
	UserID      int64            // EventPlayerLeft, EventReadyChanged
	Ready       bool             // EventReadyChanged
	AllReady    bool             // EventReadyChanged
	Settings    *store.Settings  // EventSettingsUpdated, EventRoomStarted
	Players     int              // EventRoomStarted
	IsPrivate   bool             // EventRoomPublished
	PrevCrownID int64            // EventCrownTransferred
	NextCrownID int64            // EventCrownTransferred
	Reason      string           // EventCrownTransferred, EventRoomClosed
	CrownID     int64            // EventIdleWarning
	GraceMS     int64            // EventIdleWarning
	Action      string           // EventLobbyUpdated
	Error       *Error           // EventError
}
