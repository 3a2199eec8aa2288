package http

import (
	"encoding/json"

	"github.com/cardroom/cardroom-server/internal/core"
	"github.com/cardroom/cardroom-server/internal/proto"
	"github.com/cardroom/cardroom-server/internal/store"
)

// inboundToCommand maps a wire message onto a core command. A non-nil
// proto.Error means the message was understood but invalid; a non-nil error
// means the payload was malformed beyond recovery.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeRoomCreate:
		var data proto.RoomCreateData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		return &core.Command{
			Kind:       core.CommandCreateRoom,
			Stake:      data.Stake,
			MaxPlayers: data.MaxPlayers,
			Settings:   store.Settings{Rounds: data.Rounds, Mode: data.Mode},
			Private:    data.IsPrivate,
		}, nil, nil

	case proto.InboundTypeRoomJoin, proto.InboundTypeRoomLeave, proto.InboundTypeActivity, proto.InboundTypeSpectate:
		var data proto.RoomCodeData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Code == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Message: "code is required"}, nil
		}
		kind := core.CommandJoinRoom
		switch inbound.Type {
		case proto.InboundTypeRoomLeave:
			kind = core.CommandLeaveRoom
		case proto.InboundTypeActivity:
			kind = core.CommandActivity
		case proto.InboundTypeSpectate:
			kind = core.CommandSpectate
		}
		return &core.Command{Kind: kind, Code: data.Code}, nil, nil

	case proto.InboundTypeReadySet:
		var data proto.ReadySetData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Code == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Message: "code is required"}, nil
		}
		return &core.Command{Kind: core.CommandSetReady, Code: data.Code, Ready: data.Ready}, nil, nil

	case proto.InboundTypeSettingsUpdate:
		var data proto.SettingsUpdateData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Code == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Message: "code is required"}, nil
		}
		return &core.Command{
			Kind:     core.CommandUpdateSettings,
			Code:     data.Code,
			Settings: store.Settings{Rounds: data.Settings.Rounds, Mode: data.Settings.Mode},
		}, nil, nil

	case proto.InboundTypePublish:
		var data proto.PublishData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Code == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Message: "code is required"}, nil
		}
		return &core.Command{Kind: core.CommandPublishRoom, Code: data.Code, Private: data.IsPrivate}, nil, nil

	case proto.InboundTypeCrownTransfer:
		var data proto.CrownTransferData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Code == "" || data.TargetUserID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Message: "code and targetUserId are required"}, nil
		}
		return &core.Command{Kind: core.CommandTransferCrown, Code: data.Code, TargetUserID: data.TargetUserID}, nil, nil

	default:
		return nil, &proto.Error{Code: "invalid_message", Message: "unknown message type"}, nil
	}
}

func settingsData(s *store.Settings) proto.SettingsData {
	if s == nil {
		return proto.SettingsData{}
	}
	return proto.SettingsData{Rounds: s.Rounds, Mode: s.Mode}
}

func participantData(p *core.ParticipantInfo) proto.ParticipantData {
	if p == nil {
		return proto.ParticipantData{}
	}
	return proto.ParticipantData{
		UserID:    p.UserID,
		Username:  p.Username,
		JoinOrder: p.JoinOrder,
		Ready:     p.Ready,
	}
}

func snapshotData(s *core.RoomSnapshot) proto.RoomSnapshotData {
	if s == nil {
		return proto.RoomSnapshotData{}
	}
	out := proto.RoomSnapshotData{
		Code:          s.Code,
		CrownHolderID: s.CrownHolderID,
		Stake:         s.Stake,
		MaxPlayers:    s.MaxPlayers,
		Settings:      proto.SettingsData{Rounds: s.Settings.Rounds, Mode: s.Settings.Mode},
		Status:        string(s.Status),
		Published:     s.Published,
		Private:       s.Private,
		Participants:  make([]proto.ParticipantData, 0, len(s.Participants)),
	}
	for i := range s.Participants {
		out.Participants = append(out.Participants, participantData(&s.Participants[i]))
	}
	return out
}

// outboundFromEvent maps a core event onto the wire envelope.
func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomJoined:
		return proto.Outbound{
			Type: proto.OutboundTypeRoomJoined,
			Data: proto.RoomJoinedData{Snapshot: snapshotData(event.Snapshot)},
		}
	case core.EventPlayerJoined:
		return proto.Outbound{
			Type: proto.OutboundTypePlayerJoined,
			Data: proto.PlayerJoinedData{Participant: participantData(event.Participant)},
		}
	case core.EventPlayerLeft:
		return proto.Outbound{
			Type: proto.OutboundTypePlayerLeft,
			Data: proto.PlayerLeftData{UserID: event.UserID},
		}
	case core.EventSettingsUpdated:
		return proto.Outbound{
			Type: proto.OutboundTypeSettingsUpdated,
			Data: proto.SettingsUpdatedData{Settings: settingsData(event.Settings)},
		}
	case core.EventRoomPublished:
		return proto.Outbound{
			Type: proto.OutboundTypePublished,
			Data: proto.PublishedData{IsPrivate: event.IsPrivate},
		}
	case core.EventCrownTransferred:
		return proto.Outbound{
			Type: proto.OutboundTypeCrownTransferred,
			Data: proto.CrownTransferredData{
				Previous: event.PrevCrownID,
				Next:     event.NextCrownID,
				Reason:   event.Reason,
			},
		}
	case core.EventReadyChanged:
		return proto.Outbound{
			Type: proto.OutboundTypeReadyChanged,
			Data: proto.ReadyChangedData{
				UserID:   event.UserID,
				Ready:    event.Ready,
				AllReady: event.AllReady,
			},
		}
	case core.EventRoomStarted:
		return proto.Outbound{
			Type: proto.OutboundTypeStarted,
			Data: proto.StartedData{Settings: settingsData(event.Settings), Players: event.Players},
		}
	case core.EventIdleWarning:
		return proto.Outbound{
			Type: proto.OutboundTypeIdleWarning,
			Data: proto.IdleWarningData{CrownHolderID: event.CrownID, GraceMS: event.GraceMS},
		}
	case core.EventRoomClosed:
		return proto.Outbound{
			Type: proto.OutboundTypeRoomClosed,
			Data: proto.RoomClosedData{Reason: event.Reason},
		}
	case core.EventLobbyUpdated:
		return proto.Outbound{
			Type: proto.OutboundTypeLobbyUpdated,
			Data: proto.LobbyUpdatedData{Action: event.Action, RoomCode: event.Room},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Message: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Message: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Message: "unknown event"}}
	}
}
