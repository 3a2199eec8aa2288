package core

import (
	"context"

	"github.com/cardroom/cardroom-server/internal/store"
)

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandCreateRoom creates a room with the caller as crown holder.
	CommandCreateRoom CommandKind = iota
	// CommandJoinRoom joins (or reconnects to) a room by code.
	CommandJoinRoom
	// CommandLeaveRoom leaves a room.
	CommandLeaveRoom
	// CommandSetReady toggles the caller's ready flag.
	CommandSetReady
	// CommandUpdateSettings changes unlocked room settings.
	CommandUpdateSettings
	// CommandPublishRoom makes the room joinable and locks settings.
	CommandPublishRoom
	// CommandTransferCrown hands authority to another participant.
	CommandTransferCrown
	// CommandActivity is the crown holder's explicit keep-alive signal.
	CommandActivity
	// CommandSpectate attaches the socket to a room's broadcasts without a seat.
	CommandSpectate
)

// Command represents a room action requested by an authenticated client.
// Both transports (socket and REST) produce commands and route them through
// Dispatch, so validation and side effects can never diverge.
type Command struct {
	Kind         CommandKind
	Code         string
	Stake        int64
	MaxPlayers   int
	Settings     store.Settings
	Private      bool
	Ready        bool
	TargetUserID int64
}

// Dispatch executes a command on behalf of the client. Result events reach
// the caller and other observers through the router; the returned error is
// reported to the originating socket only.
func (h *Hub) Dispatch(ctx context.Context, c *Client, cmd *Command) error {
	switch cmd.Kind {
	case CommandCreateRoom:
		_, err := h.CreateRoom(ctx, c, cmd.Stake, cmd.MaxPlayers, cmd.Settings, cmd.Private)
		return err
	case CommandJoinRoom:
		_, err := h.Join(ctx, c, cmd.Code)
		return err
	case CommandLeaveRoom:
		return h.Leave(ctx, c.UserID, cmd.Code)
	case CommandSetReady:
		_, err := h.SetReady(ctx, c.UserID, cmd.Code, cmd.Ready)
		return err
	case CommandUpdateSettings:
		_, err := h.UpdateSettings(ctx, c.UserID, cmd.Code, cmd.Settings)
		return err
	case CommandPublishRoom:
		return h.Publish(ctx, c.UserID, cmd.Code, cmd.Private)
	case CommandTransferCrown:
		return h.TransferCrown(ctx, c.UserID, cmd.Code, cmd.TargetUserID)
	case CommandActivity:
		return h.Activity(ctx, c.UserID, cmd.Code)
	case CommandSpectate:
		_, err := h.Spectate(ctx, c, cmd.Code)
		return err
	default:
		return coreError(ErrCodeBadRequest, "unknown command")
	}
}
