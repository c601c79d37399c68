package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/chat-service/internal/auth"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/pkg/logger"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token, claimedName string) domain.Identity
}

type Membership interface {
	JoinRoom(ctx context.Context, s *service.Session, roomID string) error
	LeaveRoom(ctx context.Context, s *service.Session, roomID string)
	Disconnect(ctx context.Context, s *service.Session)
}

type Chat interface {
	SendMessage(ctx context.Context, s *service.Session, req domain.SendMessageRequest) error
}

type Config struct {
	PingEvery      time.Duration
	ReadLimit      int64
	SendBuffer     int
	OpTimeout      time.Duration
	AllowedOrigins []string
}

func (c *Config) withDefaults() {
	if c.PingEvery <= 0 {
		c.PingEvery = 15 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 << 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 10 * time.Second
	}
}

// Server is the connection gateway: it binds an identity at the handshake
// and routes inbound events to the membership and message services.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader

	auth     Authenticator
	registry *service.Registry
	members  Membership
	chat     Chat
}

func NewServer(cfg Config, authenticator Authenticator, registry *service.Registry, members Membership, chat Chat) *Server {
	cfg.withDefaults()
	s := &Server{
		cfg:      cfg,
		auth:     authenticator,
		registry: registry,
		members:  members,
		chat:     chat,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// HandleWS serves GET /ws?token=...&name=...
// The token may also come as an Authorization bearer header. A missing or
// invalid token yields a guest session rather than a refused upgrade.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := strings.TrimSpace(q.Get("token"))
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	name := q.Get("name")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	identity := s.auth.Authenticate(r.Context(), token, name)

	c := newWsConn(uuid.NewString(), conn, s.cfg.SendBuffer)
	ctx := logger.WithAttrs(r.Context(), slog.String("conn", c.id), slog.String("identity", identity.Key()))
	sess := s.registry.Register(c.id, identity, c)
	log := logger.Ctx(ctx)
	log.Info("ws connected", "guest", identity.IsGuest())

	sess.Send(authenticatedEvent(c.id, identity))

	go c.writePump(s.cfg.PingEvery)
	s.readLoop(ctx, c, sess)

	// r.Context may already be cancelled here.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.OpTimeout)
	s.members.Disconnect(dctx, sess)
	cancel()
	s.registry.Unregister(c.id)

	if err := c.Close(); err != nil {
		log.Debug("ws close failed", "err", err)
	}
	log.Info("ws disconnected")
}

func (s *Server) readLoop(ctx context.Context, c *wsConn, sess *service.Session) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(s.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Ctx(ctx).Debug("ws read failed", "err", err)
			}
			return
		}
		// any inbound frame proves liveness
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingEvery))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.Send(errorEvent("", reasonBadRequest))
			continue
		}
		s.dispatch(ctx, sess, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, sess *service.Session, msg inbound) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	switch msg.Type {
	case domain.EventAuthenticate:
		// identity is fixed at the handshake; re-authentication only repeats the ack
		sess.Send(authenticatedEvent(sess.ID, sess.Identity))

	case domain.EventJoinRoom:
		var req domain.RoomRequest
		if err := decode(msg.Payload, &req); err != nil {
			sess.Send(errorEvent(msg.Type, reasonBadRequest))
			return
		}
		if err := s.members.JoinRoom(ctx, sess, req.RoomID); err != nil {
			logger.Ctx(ctx).Debug("ws join failed", "room", req.RoomID, "err", err)
		}

	case domain.EventLeaveRoom:
		var req domain.RoomRequest
		if err := decode(msg.Payload, &req); err != nil {
			sess.Send(errorEvent(msg.Type, reasonBadRequest))
			return
		}
		s.members.LeaveRoom(ctx, sess, req.RoomID)

	case domain.EventSendMessage:
		var req domain.SendMessageRequest
		if err := decode(msg.Payload, &req); err != nil {
			sess.Send(errorEvent(msg.Type, reasonBadRequest))
			return
		}
		if err := s.chat.SendMessage(ctx, sess, req); err != nil {
			logger.Ctx(ctx).Debug("ws send failed", "room", req.RoomID, "err", err)
		}

	case domain.EventPing:
		sess.Send(domain.Event{Type: domain.EventPong})

	default:
		sess.Send(errorEvent(msg.Type, reasonUnknownEvent))
	}
}
