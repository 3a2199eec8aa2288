package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/cardroom/cardroom-server/internal/auth"
	"github.com/cardroom/cardroom-server/internal/config"
	"github.com/cardroom/cardroom-server/internal/core"
	"github.com/cardroom/cardroom-server/internal/proto"
	"github.com/cardroom/cardroom-server/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub         *core.Hub
	authService *auth.Service
	cfg         *config.Config
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, authService: authService, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(utils.NewConnID())
	// Membership cleanup and registry forget happen exactly once, no matter
	// how the socket dies.
	defer h.hub.Disconnect(context.Background(), client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.cfg.CommandsPerMinute)
	stop := make(chan struct{})
	defer close(stop)
	limiter.startReset(stop)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !limiter.allow() {
			if err := h.writeError(ctx, conn, "rate_limited", "too many commands"); err != nil {
				return err
			}
			continue
		}

		if inbound.Type == proto.InboundTypeAuthenticate {
			if err := h.handleAuthenticate(ctx, conn, client, inbound); err != nil {
				return err
			}
			continue
		}

		// Room commands from an unauthenticated socket are rejected.
		if !client.Authenticated() {
			if err := h.writeError(ctx, conn, core.ErrCodeAuthRequired, "authenticate first"); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("conn_id", client.ConnID).Msg("failed to map inbound")
			return err
		}
		if protoErr != nil {
			if err := wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: protoErr}); err != nil {
				return err
			}
			continue
		}

		if err := h.hub.Dispatch(ctx, client, cmd); err != nil {
			ce := core.AsError(err)
			if ce.Code == core.ErrCodeInternal {
				h.log.Error().Err(err).Str("conn_id", client.ConnID).Str("type", inbound.Type).Msg("command failed")
			}
			if err := h.writeError(ctx, conn, ce.Code, ce.Message); err != nil {
				return err
			}
		}
	}
}

func (h *WSHandler) handleAuthenticate(ctx context.Context, conn *websocket.Conn, client *core.Client, inbound proto.Inbound) error {
	writeAuthError := func(msg string) error {
		return wsjson.Write(ctx, conn, proto.Outbound{
			Type:  proto.OutboundTypeAuthError,
			Error: &proto.Error{Code: core.ErrCodeAuthRequired, Message: msg},
		})
	}

	if client.Authenticated() {
		return writeAuthError("already authenticated")
	}

	var data proto.AuthenticateData
	if len(inbound.Data) > 0 {
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return writeAuthError("malformed authenticate payload")
		}
	}

	userID := data.UserID
	if data.Token != "" {
		claims, err := h.authService.ValidateToken(data.Token)
		if err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ConnID).Msg("ws token rejected")
			return writeAuthError("invalid token")
		}
		userID = claims.UserID
	}
	if userID == 0 {
		return writeAuthError("userId or token required")
	}

	user, err := h.hub.Registry().Authenticate(ctx, client, userID)
	if err != nil {
		h.log.Debug().Err(err).Int64("user_id", userID).Msg("ws authentication failed")
		return writeAuthError("unknown user")
	}

	return wsjson.Write(ctx, conn, proto.Outbound{
		Type: proto.OutboundTypeAuthenticated,
		Data: proto.AuthenticatedData{
			ConnectionID: client.ConnID,
			User: proto.UserData{
				ID:       user.ID,
				Username: user.Username,
				Balance:  user.Balance,
			},
		},
	})
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ConnID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, code, msg string) error {
	return wsjson.Write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: code, Message: msg},
	})
}
