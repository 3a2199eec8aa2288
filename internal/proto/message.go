package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client: a type
// discriminator plus type-specific fields.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound command types.
const (
	InboundTypeAuthenticate   = "authenticate"
	InboundTypeRoomCreate     = "room:create"
	InboundTypeRoomJoin       = "room:join"
	InboundTypeRoomLeave      = "room:leave"
	InboundTypeReadySet       = "room:ready:set"
	InboundTypeSettingsUpdate = "room:settings:update"
	InboundTypePublish        = "room:publish"
	InboundTypeCrownTransfer  = "room:crown:transfer"
	InboundTypeActivity       = "room:activity"
	InboundTypeSpectate       = "room:spectate"
)

// Outbound event types.
const (
	OutboundTypeAuthenticated    = "authenticated"
	OutboundTypeAuthError        = "auth_error"
	OutboundTypeRoomJoined       = "room:joined"
	OutboundTypePlayerJoined     = "room:player:joined"
	OutboundTypePlayerLeft       = "room:player:left"
	OutboundTypeSettingsUpdated  = "room:settings:updated"
	OutboundTypePublished        = "room:published"
	OutboundTypeCrownTransferred = "room:crown:transferred"
	OutboundTypeReadyChanged     = "room:ready:changed"
	OutboundTypeStarted          = "room:started"
	OutboundTypeIdleWarning      = "room:idle:warning"
	OutboundTypeRoomClosed       = "room:closed"
	OutboundTypeLobbyUpdated     = "lobby:updated"
	OutboundTypeError            = "error"
)

// AuthenticateData introduces the client: either a raw user id or a JWT
// issued by the REST auth endpoints.
type AuthenticateData struct {
	UserID int64  `json:"userId,omitempty"`
	Token  string `json:"token,omitempty"`
}

// SettingsData is the configurable part of a room.
type SettingsData struct {
	Rounds int    `json:"rounds"`
	Mode   string `json:"mode"`
}

// RoomCreateData requests a new room.
type RoomCreateData struct {
	Stake      int64  `json:"stake"`
	MaxPlayers int    `json:"maxPlayers"`
	Rounds     int    `json:"rounds"`
	Mode       string `json:"mode"`
	IsPrivate  bool   `json:"isPrivate"`
}

// RoomCodeData identifies a room for join/leave/activity commands.
type RoomCodeData struct {
	Code string `json:"code"`
}

// ReadySetData toggles the caller's ready flag.
type ReadySetData struct {
	Code  string `json:"code"`
	Ready bool   `json:"ready"`
}

// SettingsUpdateData changes unlocked room settings.
type SettingsUpdateData struct {
	Code     string       `json:"code"`
	Settings SettingsData `json:"settings"`
}

// PublishData makes the room joinable.
type PublishData struct {
	Code      string `json:"code"`
	IsPrivate bool   `json:"isPrivate"`
}

// CrownTransferData hands authority to a named participant.
type CrownTransferData struct {
	Code         string `json:"code"`
	TargetUserID int64  `json:"targetUserId"`
}

// Outbound is the envelope for messages sent to the client. Type carries
// the event name; Data the type-specific fields.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// UserData is the public profile in the authenticated handshake.
type UserData struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
}

// AuthenticatedData confirms the handshake.
type AuthenticatedData struct {
	ConnectionID string   `json:"connectionId"`
	User         UserData `json:"user"`
}

// ParticipantData is the public view of one participant.
type ParticipantData struct {
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
	JoinOrder int    `json:"joinOrder"`
	Ready     bool   `json:"ready"`
}

// RoomSnapshotData is the full room state sent to a (re)joining client.
type RoomSnapshotData struct {
	Code          string            `json:"code"`
	CrownHolderID int64             `json:"crownHolderId"`
	Stake         int64             `json:"stake"`
	MaxPlayers    int               `json:"maxPlayers"`
	Settings      SettingsData      `json:"settings"`
	Status        string            `json:"status"`
	Published     bool              `json:"published"`
	Private       bool              `json:"private"`
	Participants  []ParticipantData `json:"participants"`
}

// RoomJoinedData delivers the snapshot to the joiner.
type RoomJoinedData struct {
	Snapshot RoomSnapshotData `json:"snapshot"`
}

// PlayerJoinedData announces a new participant to the room.
type PlayerJoinedData struct {
	Participant ParticipantData `json:"participant"`
}

// PlayerLeftData announces a departure to the room.
type PlayerLeftData struct {
	UserID int64 `json:"userId"`
}

// SettingsUpdatedData announces a settings change to the room.
type SettingsUpdatedData struct {
	Settings SettingsData `json:"settings"`
}

// PublishedData announces publication to the room.
type PublishedData struct {
	IsPrivate bool `json:"isPrivate"`
}

// CrownTransferredData announces a change of authority.
type CrownTransferredData struct {
	Previous int64  `json:"previous"`
	Next     int64  `json:"next"`
	Reason   string `json:"reason"`
}

// ReadyChangedData announces a ready-flag change.
type ReadyChangedData struct {
	UserID   int64 `json:"userId"`
	Ready    bool  `json:"ready"`
	AllReady bool  `json:"allReady"`
}

// StartedData announces the match start with the final configuration.
type StartedData struct {
	Settings SettingsData `json:"settings"`
	Players  int          `json:"players"`
}

// IdleWarningData warns the room about a silent crown holder.
type IdleWarningData struct {
	CrownHolderID int64 `json:"crownHolderId"`
	GraceMS       int64 `json:"graceMs"`
}

// RoomClosedData announces a room shutdown.
type RoomClosedData struct {
	Reason string `json:"reason"`
}

// LobbyUpdatedData is the global lobby-list fan-out.
type LobbyUpdatedData struct {
	Action   string `json:"action"`
	RoomCode string `json:"roomCode"`
}

// Error describes a command failure reported to the originating socket.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
