package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/gabrielmiguelok/golivekit-wizard/pkg/limits"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/logging"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/metrics"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/wizard"
)

// Server message types.
const (
	MessageState  = "state"
	MessagePatch  = "patch"
	MessageNotify = "notify"
	MessageError  = "error"
)

const (
	maxMessageSize = 16 << 10
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// ClientMessage is an event sent by the browser.
type ClientMessage struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ServerMessage is pushed to the browser. State carries the full snapshot
// on join; later changes arrive as RFC 7386 merge patches against the
// previous state.
type ServerMessage struct {
	Type    string                  `json:"type"`
	State   *wizard.Snapshot        `json:"state,omitempty"`
	Patch   json.RawMessage         `json:"patch,omitempty"`
	Kind    wizard.NotificationKind `json:"kind,omitempty"`
	Message string                  `json:"message,omitempty"`
	Event   string                  `json:"event,omitempty"`
}

// liveConn serves one websocket. Only run writes to the socket.
type liveConn struct {
	conn    *websocket.Conn
	session *Session
	limiter limits.RateLimiter
	metrics *metrics.Metrics
	log     logging.Logger

	last    []byte
	rejects chan ServerMessage
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	log := logging.L(r.Context())

	id, ok := sessionID(r)
	if !ok {
		http.Error(w, "missing session", http.StatusBadRequest)
		return
	}
	sess, err := s.registry.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     s.cfg.AllowedOrigins,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify,
	})
	if err != nil {
		log.Warn("accept websocket", logging.Err(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageSize)

	lc := &liveConn{
		conn:    conn,
		session: sess,
		limiter: s.limiter,
		metrics: s.metrics,
		log:     log.With(logging.String("session", id)),
		rejects: make(chan ServerMessage, 4),
	}

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	err = lc.run(ctx)
	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure, status == websocket.StatusGoingAway:
		conn.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	default:
		lc.log.Debug("live connection ended", logging.Err(err))
	}
}

func (lc *liveConn) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, unsubscribe := lc.session.Subscribe()
	defer unsubscribe()

	if err := lc.sendState(ctx); err != nil {
		return err
	}

	readErr := make(chan error, 1)
	go func() {
		readErr <- lc.readLoop(ctx)
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return err

		case <-sub.Wake:
			if err := lc.sendPatch(ctx); err != nil {
				return err
			}

		case n := <-sub.Notifications:
			if err := lc.write(ctx, ServerMessage{Type: MessageNotify, Kind: n.Kind, Message: n.Message}); err != nil {
				return err
			}

		case msg := <-lc.rejects:
			if err := lc.write(ctx, msg); err != nil {
				return err
			}

		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := lc.conn.Ping(pctx)
			pcancel()
			if err != nil {
				return err
			}
		}
	}
}

func (lc *liveConn) readLoop(ctx context.Context) error {
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, lc.conn, &msg); err != nil {
			return err
		}
		lc.session.touch(time.Now())

		if err := lc.dispatch(ctx, msg); err != nil {
			lc.log.Debug("event rejected", logging.String("event", msg.Event), logging.Err(err))
			select {
			case lc.rejects <- ServerMessage{Type: MessageError, Event: msg.Event, Message: err.Error()}:
			default:
			}
		}
	}
}

func (lc *liveConn) dispatch(ctx context.Context, msg ClientMessage) error {
	start := time.Now()
	var err error
	if lc.limiter != nil && !lc.limiter.Allow(lc.session.ID) {
		err = limits.ErrRateLimitExceeded
	} else {
		err = lc.session.Controller.HandleEvent(ctx, msg.Event, msg.Payload)
	}
	lc.metrics.ObserveEvent(msg.Event, rejectReason(err), time.Since(start))
	return err
}

func (lc *liveConn) sendState(ctx context.Context) error {
	snap := lc.session.Controller.Snapshot()
	raw, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	lc.last = raw
	return lc.write(ctx, ServerMessage{Type: MessageState, State: &snap})
}

// sendPatch diffs the latest snapshot against what the client last saw.
// Coalesced wakes may skip intermediate states; the patch still converges.
func (lc *liveConn) sendPatch(ctx context.Context) error {
	raw, err := sonic.Marshal(lc.session.Controller.Snapshot())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	patch, err := jsonpatch.CreateMergePatch(lc.last, raw)
	if err != nil {
		return fmt.Errorf("diff snapshot: %w", err)
	}
	lc.last = raw
	if string(patch) == "{}" {
		return nil
	}
	lc.metrics.PatchSize.Observe(float64(len(patch)))
	return lc.write(ctx, ServerMessage{Type: MessagePatch, Patch: patch})
}

func (lc *liveConn) write(ctx context.Context, msg ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, lc.conn, msg); err != nil {
		return err
	}
	lc.metrics.MessagesSent.Inc(msg.Type)
	return nil
}
