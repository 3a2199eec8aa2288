package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cardroom/cardroom-server/internal/core"
	"github.com/cardroom/cardroom-server/internal/store"
)

// RoomHandlers provides the REST surface for the room core: the public
// lobby list plus the request/response alternates for clients without an
// open socket. The alternates invoke the same command handlers as the
// socket transport.
type RoomHandlers struct {
	hub   *core.Hub
	store store.Store
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *core.Hub, st store.Store, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub:   hub,
		store: st,
		log:   logger,
	}
}

// LobbyRoomResponse represents one room in the public lobby list.
type LobbyRoomResponse struct {
	Code       string `json:"code"`
	Stake      int64  `json:"stake"`
	MaxPlayers int    `json:"maxPlayers"`
	Players    int    `json:"players"`
	Rounds     int    `json:"rounds"`
	Mode       string `json:"mode"`
}

// UpdateSettingsRequest represents the settings-update request body.
type UpdateSettingsRequest struct {
	Rounds int    `json:"rounds" binding:"required,min=1"`
	Mode   string `json:"mode" binding:"required"`
}

// SettingsResponse echoes the applied settings.
type SettingsResponse struct {
	Rounds int    `json:"rounds"`
	Mode   string `json:"mode"`
}

// SetReadyRequest represents the ready-set request body.
type SetReadyRequest struct {
	Ready *bool `json:"ready" binding:"required"`
}

// ReadyResponse reports the outcome of a ready change.
type ReadyResponse struct {
	Ready    bool `json:"ready"`
	AllReady bool `json:"allReady"`
	Started  bool `json:"started"`
}

// ListRooms lists published rooms waiting for players.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.store.ListLobbyRooms(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list lobby rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]LobbyRoomResponse, 0, len(rooms))
	for _, room := range rooms {
		participants, err := h.store.ListActiveParticipants(c.Request.Context(), room.ID)
		if err != nil {
			h.log.Error().Err(err).Str("room", room.Code).Msg("failed to count participants")
			continue
		}
		response = append(response, LobbyRoomResponse{
			Code:       room.Code,
			Stake:      room.Stake,
			MaxPlayers: room.MaxPlayers,
			Players:    len(participants),
			Rounds:     room.Settings.Rounds,
			Mode:       room.Settings.Mode,
		})
	}

	c.JSON(http.StatusOK, response)
}

// UpdateSettings is the request/response alternate of room:settings:update.
// PUT /api/rooms/:code/settings
func (h *RoomHandlers) UpdateSettings(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid settings request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	settings, err := h.hub.UpdateSettings(c.Request.Context(), uid, c.Param("code"), store.Settings{
		Rounds: req.Rounds,
		Mode:   req.Mode,
	})
	if err != nil {
		h.respondCoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, SettingsResponse{Rounds: settings.Rounds, Mode: settings.Mode})
}

// SetReady is the request/response alternate of room:ready:set. It reaches
// the same auto-start trigger as the socket path.
// PUT /api/rooms/:code/ready
func (h *RoomHandlers) SetReady(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SetReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Ready == nil {
		h.log.Debug().Err(err).Msg("invalid ready request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.hub.SetReady(c.Request.Context(), uid, c.Param("code"), *req.Ready)
	if err != nil {
		h.respondCoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, ReadyResponse{
		Ready:    result.Ready,
		AllReady: result.AllReady,
		Started:  result.Started,
	})
}

// respondCoreError maps a core error onto an HTTP status.
func (h *RoomHandlers) respondCoreError(c *gin.Context, err error) {
	ce := core.AsError(err)
	if ce.Code == core.ErrCodeInternal {
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("room command failed")
	}
	c.JSON(statusForCode(ce.Code), ErrorResponse{Error: ce.Message})
}

func statusForCode(code string) int {
	switch code {
	case core.ErrCodeAuthRequired:
		return http.StatusUnauthorized
	case core.ErrCodeNotCrown:
		return http.StatusForbidden
	case core.ErrCodeRoomNotFound, core.ErrCodeParticipantNotFound:
		return http.StatusNotFound
	case core.ErrCodeRoomFull, core.ErrCodeRoomPrivate,
		core.ErrCodeSettingsLocked, core.ErrCodeAlreadyPublished,
		core.ErrCodeRoomActive, core.ErrCodeStartRaced:
		return http.StatusConflict
	case core.ErrCodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
