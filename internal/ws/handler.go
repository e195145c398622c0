// Package ws serves the duplex websocket endpoint. Each connection gets a
// reader loop (this handler's goroutine) and a writer goroutine fed by the
// outbound pump; client events are routed through a dispatch table keyed by
// event tag.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/hub"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/identity"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/notify"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/outbound"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/ratelimit"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/registry"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/room"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
	itypes "github.com/DoyleJ11/fantasy-draft-backend/internal/types"
	"github.com/DoyleJ11/fantasy-draft-backend/pkg/types"
)

type Config struct {
	OriginPatterns []string
	WriteBuffer    int           // frames buffered per socket before it counts as slow
	WriteTimeout   time.Duration // per frame
	MaxViolations  int           // consecutive rate-limited events before disconnect; <= 0 never disconnects
	PingInterval   time.Duration // <= 0 disables keepalive pings
}

type Deps struct {
	Verifier  identity.Verifier
	Broker    *room.Broker
	Registry  *registry.Registry
	Hub       *hub.Hub
	Limiter   *ratelimit.Limiter
	Notify    *notify.Manager
	Scheduler *scheduler.Scheduler
	Logger    *zap.Logger
	Metrics   *metrics.Collector
}

type Server struct {
	cfg      Config
	deps     Deps
	logger   *zap.Logger
	handlers map[string]handlerFunc
}

func NewServer(cfg Config, deps Deps) *Server {
	if cfg.WriteBuffer <= 0 {
		cfg.WriteBuffer = 128
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, deps: deps, logger: deps.Logger.Named("ws")}
	s.handlers = s.dispatchTable()
	return s
}

// chanSink hands frames to the writer goroutine without blocking the pump.
type chanSink chan []byte

func (c chanSink) Send(frame []byte) error {
	select {
	case c <- frame:
		return nil
	default:
		return outbound.ErrSlowConsumer
	}
}

// session is one authenticated socket.
type session struct {
	conn   *registry.Connection
	userID string
}

func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.deps.Verifier.Verify(r.Context(), identity.TokenFromRequest(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: s.cfg.OriginPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chanSink, s.cfg.WriteBuffer)
		c, err := s.deps.Broker.Connect(userID, out, cancel)
		if err != nil {
			s.logger.Error("register connection", zap.Error(err))
			conn.Close(websocket.StatusInternalError, "register failed")
			return
		}
		defer func() {
			s.deps.Broker.Disconnect(c.ID)
			s.deps.Limiter.Forget(c.ID)
		}()
		sess := &session{conn: c, userID: userID}

		// Writer goroutine
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case frame := <-out:
					wctx, wcancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
					err := conn.Write(wctx, websocket.MessageText, frame)
					wcancel()
					if err != nil {
						cancel()
						return
					}
				}
			}
		}()

		keepalive := s.keepalive(ctx, conn, c.ID, cancel)
		defer keepalive.Cancel()

		// Reader loop
		violations := 0
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if ctx.Err() == nil {
						s.logger.Debug("read failed", zap.String("conn_id", c.ID), zap.Error(err))
					}
				}
				return
			}
			s.deps.Registry.Touch(c.ID)

			if !s.deps.Limiter.Allow(c.ID) {
				violations++
				if s.cfg.MaxViolations > 0 && violations > s.cfg.MaxViolations {
					s.logger.Warn("rate limit exceeded, closing",
						zap.String("conn_id", c.ID),
						zap.String("user_id", userID),
						zap.Int("violations", violations))
					conn.Close(websocket.StatusPolicyViolation, "rate limit exceeded")
					return
				}
				continue
			}
			violations = 0

			s.dispatch(ctx, sess, data)
		}
	}
}

// keepalive pings the client on the scheduler. A pong counts as activity for
// the idle sweep; a missed one ends the session.
func (s *Server) keepalive(ctx context.Context, conn *websocket.Conn, connID string, cancel context.CancelFunc) *scheduler.Task {
	if s.cfg.PingInterval <= 0 {
		return nil
	}
	var inflight atomic.Bool
	return s.deps.Scheduler.Every(s.cfg.PingInterval, func() {
		if !inflight.CompareAndSwap(false, true) {
			return
		}
		go func() {
			defer inflight.Store(false)
			pctx, pcancel := context.WithTimeout(ctx, s.cfg.PingInterval)
			defer pcancel()
			if err := conn.Ping(pctx); err != nil {
				if ctx.Err() == nil {
					s.logger.Debug("ping failed", zap.String("conn_id", connID), zap.Error(err))
					cancel()
				}
				return
			}
			s.deps.Registry.Touch(connID)
		}()
	})
}

func (s *Server) dispatch(ctx context.Context, sess *session, data []byte) {
	var cm types.ClientMessage
	if err := json.Unmarshal(data, &cm); err != nil {
		s.replyError(sess, "", itypes.ErrBadRequest)
		return
	}
	h, ok := s.handlers[cm.Type]
	if !ok {
		s.replyError(sess, cm.Type, itypes.ErrUnknownEvent)
		return
	}
	if err := h(ctx, sess, cm.Payload); err != nil {
		if !itypes.IsValidation(err) {
			s.logger.Error("handle event", zap.String("event", cm.Type), zap.String("conn_id", sess.conn.ID), zap.Error(err))
		}
		s.replyError(sess, cm.Type, err)
	}
}

// reply enqueues a message for this socket only.
func (s *Server) reply(sess *session, typ string, payload any, p outbound.Priority) {
	msg, err := outbound.New(typ, payload, p, s.deps.Scheduler.Now())
	if err != nil {
		s.logger.Error("encode reply", zap.String("type", typ), zap.Error(err))
		return
	}
	s.deps.Broker.SendToConn(sess.conn.ID, msg)
}

func (s *Server) replyError(sess *session, event string, err error) {
	typ := types.Error
	if strings.HasPrefix(event, "draft:") {
		typ = types.DraftError
	}
	s.reply(sess, typ, itypes.ErrorPayload(event, err), outbound.High)
}
