package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type DispatcherConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// Dispatcher turns posted messages into push notifications for users who
// favorited the room but have no live connection in it. Work runs on a
// fixed pool; when the queue is full the message is dropped.
type Dispatcher struct {
	cfg      DispatcherConfig
	registry *Registry
	rooms    RoomStore
	users    UserStore
	notifier *NotificationService

	jobs    chan domain.Message
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

func NewDispatcher(cfg DispatcherConfig, registry *Registry, rooms RoomStore, users UserStore, notifier *NotificationService) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	return &Dispatcher{
		cfg:      cfg,
		registry: registry,
		rooms:    rooms,
		users:    users,
		notifier: notifier,
		jobs:     make(chan domain.Message, cfg.QueueSize),
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true

	workerCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.run(workerCtx)
		}()
	}
	slog.Info("notification dispatcher started", "workers", d.cfg.Workers)
	return nil
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("notification dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MessagePosted implements MessageTrigger. It never blocks the send path.
func (d *Dispatcher) MessagePosted(msg domain.Message) {
	select {
	case d.jobs <- msg:
	default:
		slog.Warn("notification queue full, dropping", "room", msg.RoomID, "msg", msg.ID)
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.jobs:
			jobCtx, cancel := context.WithTimeout(ctx, d.cfg.JobTimeout)
			d.process(jobCtx, msg)
			cancel()
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, msg domain.Message) {
	userIDs, err := d.users.FavoritedBy(ctx, msg.RoomID)
	if err != nil {
		slog.Warn("dispatch: favorites lookup failed", "room", msg.RoomID, "err", err)
		return
	}
	if len(userIDs) == 0 {
		return
	}

	roomName := msg.RoomID
	if room, err := d.rooms.GetRoom(ctx, msg.RoomID); err == nil {
		roomName = room.Name
	} else {
		slog.Debug("dispatch: room lookup failed, using id", "room", msg.RoomID, "err", err)
	}

	for _, uid := range d.recipients(msg, userIDs) {
		res, err := d.notifier.SendNotification(ctx, uid, msg.RoomID, roomName)
		if err != nil {
			slog.Warn("dispatch: send notification failed", "user", uid, "room", msg.RoomID, "err", err)
			continue
		}
		if !res.Success {
			slog.Debug("dispatch: notification skipped", "user", uid, "room", msg.RoomID, "reason", res.Reason)
		}
	}
}

// recipients drops the sender and everyone currently watching the room.
func (d *Dispatcher) recipients(msg domain.Message, userIDs []int64) []int64 {
	out := make([]int64, 0, len(userIDs))
	for _, uid := range userIDs {
		if uid == msg.SenderID {
			continue
		}
		if d.registry.HasUserInRoom(msg.RoomID, uid) {
			continue
		}
		out = append(out, uid)
	}
	return out
}
