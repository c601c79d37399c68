package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// RateLimiter throttles sends per identity.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MessageTrigger is told about every message that reached its room.
type MessageTrigger interface {
	MessagePosted(msg domain.Message)
}

type ChatConfig struct {
	MaxMessageLength int
}

type ChatService struct {
	registry    *Registry
	coordinator *Coordinator
	messages    MessageStore
	users       UserStore

	limiter RateLimiter
	trigger MessageTrigger

	maxLen int
}

func NewChatService(registry *Registry, coordinator *Coordinator, messages MessageStore, users UserStore, cfg ChatConfig) *ChatService {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 4000
	}
	return &ChatService{
		registry:    registry,
		coordinator: coordinator,
		messages:    messages,
		users:       users,
		maxLen:      cfg.MaxMessageLength,
	}
}

func (s *ChatService) SetRateLimiter(l RateLimiter) { s.limiter = l }
func (s *ChatService) SetTrigger(t MessageTrigger)  { s.trigger = t }

// SendMessage validates, persists and then broadcasts one message. Every
// failure is reported to the sending connection only, echoing the draft.
func (s *ChatService) SendMessage(ctx context.Context, sess *Session, req domain.SendMessageRequest) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	fail := func(reason string, err error) error {
		sess.Send(domain.Event{
			Type: domain.EventSendError,
			Payload: domain.SendErrorPayload{
				RoomID:          req.RoomID,
				Reason:          reason,
				OriginalContent: req.Content,
				ClientMsgID:     req.ClientMsgID,
			},
		})
		return err
	}

	content := strings.TrimSpace(req.Content)
	switch {
	case content == "":
		return fail("empty_message", domain.ErrEmptyMessage)
	case req.RoomID == "":
		return fail("missing_room", domain.ErrMissingRoom)
	case utf8.RuneCountInString(content) > s.maxLen:
		return fail("message_too_long", domain.ErrMessageTooLong)
	}

	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, sess.Identity.Key())
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing", "conn", sess.ID, "err", err)
		} else if !ok {
			return fail("rate_limited", domain.ErrRateLimited)
		}
	}

	// self-heal: a send for another room first moves the connection there
	if s.registry.CurrentRoom(sess.ID) != req.RoomID {
		if err := s.coordinator.join(ctx, sess, req.RoomID); err != nil {
			return fail("join_failed", fmt.Errorf("auto-join: %w", err))
		}
	}

	sender, err := s.resolveSender(ctx, sess.Identity)
	if err != nil {
		slog.Warn("send: sender unresolved", "conn", sess.ID, "identity", sess.Identity.Key(), "err", err)
		return fail("sender_unresolved", err)
	}

	msg := domain.Message{
		RoomID:     req.RoomID,
		SenderID:   sender.ID,
		SenderName: sender.Username,
		Content:    content,
	}

	unlock := s.coordinator.lockRoom(req.RoomID)
	if err := s.messages.SaveMessage(ctx, &msg); err != nil {
		unlock()
		slog.Error("send: persist failed", "room", req.RoomID, "sender", sender.ID, "err", err)
		return fail("persist_failed", fmt.Errorf("save message: %w", err))
	}
	// members observe messages of one room in persistence order
	broadcast(s.registry.Members(req.RoomID), domain.Event{
		Type:    domain.EventNewMessage,
		Payload: toPayload(msg),
	})
	unlock()

	sess.Send(domain.Event{
		Type:    domain.EventMessageSent,
		Payload: domain.MessageSentPayload{ID: msg.ID, ClientMsgID: req.ClientMsgID},
	})

	if s.trigger != nil {
		s.trigger.MessagePosted(msg)
	}
	return nil
}

// resolveSender prefers the connection's user id and falls back to a lookup
// by display name for guests and stale ids. The fallback trusts the claimed
// name, so a guest naming an existing user sends as that user.
func (s *ChatService) resolveSender(ctx context.Context, id domain.Identity) (*domain.User, error) {
	switch v := id.(type) {
	case domain.Authenticated:
		u, err := s.users.GetUser(ctx, v.UserID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
	case domain.Guest:
	}

	name := strings.TrimSpace(id.DisplayName())
	if name == "" {
		return nil, domain.ErrSenderUnresolved
	}
	u, err := s.users.GetUserByUsername(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrSenderUnresolved
		}
		return nil, err
	}
	return u, nil
}

func (s *ChatService) History(ctx context.Context, roomID, cursor string, limit int) ([]domain.Message, string, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	return s.messages.History(ctx, roomID, cursor, limit)
}
