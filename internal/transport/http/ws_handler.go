package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/nocturnal-server/internal/config"
	"github.com/vovakirdan/nocturnal-server/internal/core"
	"github.com/vovakirdan/nocturnal-server/internal/proto"
	"github.com/vovakirdan/nocturnal-server/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub      *core.Hub
	identity *identityResolver
	cfg      *config.Config
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, identity *identityResolver, cfg *config.Config, logger *zerolog.Logger) http.Handler {
	return &WSHandler{hub: hub, identity: identity, cfg: cfg, log: logger}
}

// upgradeIdentity returns the identity proven by the upgrade request: a bearer
// header, the gateway header, or a token query parameter for browsers.
func (h *WSHandler) upgradeIdentity(r *http.Request) (int64, error) {
	userID, ok, err := h.identity.fromRequest(r)
	if err != nil || ok {
		return userID, err
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return h.identity.fromToken(token)
	}
	return 0, nil
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pinned, err := h.upgradeIdentity(r)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws upgrade rejected")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

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

	client := core.NewClient(utils.NewID(), h.cfg.ClientBuffer)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	sess := &session{client: client, identity: h.identity, pinned: pinned}
	if pinned != 0 {
		client.Commands <- &core.Command{Kind: core.CommandJoin, UserID: pinned}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess)
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
		if s := websocket.CloseStatus(err); s != -1 {
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
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *session) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			h.log.Debug().Err(err).Str("client_id", sess.client.ID).Msg("read ws inbound")
			return err
		}

		if !limiter.allow() {
			perr := &proto.Error{Code: errCodeRateLimited, Msg: "too many messages"}
			if err := wsjson.Write(ctx, conn, errorOutbound(errorEventFor(inbound.Type), perr)); err != nil {
				return err
			}
			continue
		}

		cmd, perr := sess.inboundToCommand(inbound)
		if perr != nil {
			if err := wsjson.Write(ctx, conn, errorOutbound(errorEventFor(inbound.Type), perr)); err != nil {
				return err
			}
			continue
		}

		select {
		case sess.client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
