package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type MembershipConfig struct {
	HistoryLimit     int
	CountSyncTimeout time.Duration
}

// Coordinator runs the join/leave protocol on top of the Registry and keeps
// the persisted participant count roughly in sync with it.
type Coordinator struct {
	registry *Registry
	rooms    RoomStore
	messages MessageStore

	historyLimit int
	syncTimeout  time.Duration

	// per-room order of membership changes and message fan-out
	roomLocks *keyLock

	// background count writes
	wg sync.WaitGroup
}

func NewCoordinator(registry *Registry, rooms RoomStore, messages MessageStore, cfg MembershipConfig) *Coordinator {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.CountSyncTimeout <= 0 {
		cfg.CountSyncTimeout = 5 * time.Second
	}
	return &Coordinator{
		registry:     registry,
		rooms:        rooms,
		messages:     messages,
		historyLimit: cfg.HistoryLimit,
		syncTimeout:  cfg.CountSyncTimeout,
		roomLocks:    newKeyLock(),
	}
}

func (c *Coordinator) JoinRoom(ctx context.Context, s *Session, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.join(ctx, s, roomID)
}

func (c *Coordinator) LeaveRoom(ctx context.Context, s *Session, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.leave(ctx, s, roomID)
}

// Disconnect is an implicit leave of whatever room is current.
func (c *Coordinator) Disconnect(ctx context.Context, s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if roomID := c.registry.CurrentRoom(s.ID); roomID != "" {
		c.leave(ctx, s, roomID)
	}
}

// join expects s.mu held.
func (c *Coordinator) join(ctx context.Context, s *Session, roomID string) error {
	if roomID == "" {
		s.Send(errorEvent(domain.EventJoinRoom, "", "missing_room"))
		return domain.ErrMissingRoom
	}
	current := c.registry.CurrentRoom(s.ID)
	if current == roomID {
		return nil
	}

	if _, err := c.rooms.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			s.Send(errorEvent(domain.EventJoinRoom, roomID, "room_not_found"))
			return err
		}
		slog.Warn("join: room lookup failed, joining anyway", "room", roomID, "err", err)
	}

	if current != "" {
		c.leave(ctx, s, current)
	}

	// Held until the count broadcast: a send in this room lands either in
	// the history or after the ack, never both.
	unlock := c.lockRoom(roomID)
	defer unlock()

	count, others := c.registry.Enter(s, roomID)
	c.syncCount(roomID, count)

	history := c.loadHistory(ctx, roomID)

	s.Send(domain.Event{
		Type: domain.EventJoinedRoom,
		Payload: domain.JoinedRoomPayload{
			RoomID:           roomID,
			Messages:         history,
			ParticipantCount: count,
		},
	})
	broadcast(others, countEvent(roomID, count))

	slog.Debug("joined room", "conn", s.ID, "room", roomID, "count", count)
	return nil
}

// leave expects s.mu held.
func (c *Coordinator) leave(_ context.Context, s *Session, roomID string) {
	unlock := c.lockRoom(roomID)
	defer unlock()

	removed, count, remaining := c.registry.Exit(s, roomID)
	if !removed {
		return
	}
	c.syncCount(roomID, count)
	broadcast(remaining, countEvent(roomID, count))

	slog.Debug("left room", "conn", s.ID, "room", roomID, "count", count)
}

// lockRoom serialises membership changes and message fan-out of one room.
// Lock order is Session.mu, then the room.
func (c *Coordinator) lockRoom(roomID string) func() {
	return c.roomLocks.Lock(roomID)
}

// loadHistory degrades to an empty list: a store hiccup never fails a join.
func (c *Coordinator) loadHistory(ctx context.Context, roomID string) []domain.MessagePayload {
	msgs, err := c.messages.RecentMessages(ctx, roomID, c.historyLimit)
	if err != nil {
		slog.Warn("join: history load failed", "room", roomID, "err", err)
		return []domain.MessagePayload{}
	}
	out := make([]domain.MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toPayload(m))
	}
	return out
}

// syncCount persists the count in the background, last write wins.
func (c *Coordinator) syncCount(roomID string, count int) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.syncTimeout)
		defer cancel()
		if err := c.rooms.UpdateParticipantCount(ctx, roomID, count); err != nil {
			slog.Warn("participant count sync failed", "room", roomID, "count", count, "err", err)
		}
	}()
}

// Wait blocks until pending background count writes finish.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// --- helpers ---

func broadcast(members []*Session, ev domain.Event) {
	for _, m := range members {
		m.Send(ev)
	}
}

func countEvent(roomID string, count int) domain.Event {
	return domain.Event{
		Type:    domain.EventParticipantCountChanged,
		Payload: domain.ParticipantCountPayload{RoomID: roomID, Count: count},
	}
}

func errorEvent(op, roomID, reason string) domain.Event {
	return domain.Event{
		Type:    domain.EventError,
		Payload: domain.ErrorPayload{Op: op, RoomID: roomID, Reason: reason},
	}
}

func toPayload(m domain.Message) domain.MessagePayload {
	return domain.MessagePayload{
		ID:         m.ID,
		RoomID:     m.RoomID,
		SenderID:   strconv.FormatInt(m.SenderID, 10),
		SenderName: m.SenderName,
		Content:    m.Content,
		Timestamp:  m.CreatedAt.UnixMilli(),
	}
}
