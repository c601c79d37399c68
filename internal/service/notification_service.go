package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/push"

	"golang.org/x/sync/errgroup"
)

// Reasons a notification is not sent.
const (
	ReasonNoEndpoints    = "no_endpoints"
	ReasonNotFavorite    = "not_favorite"
	ReasonCooldown       = "cooldown"
	ReasonDeliveryFailed = "delivery_failed"
)

type NotificationConfig struct {
	Cooldown    time.Duration
	TTL         time.Duration
	Urgency     push.Urgency
	Title       string
	URLTemplate string // %s is replaced by the room id
	Parallelism int
}

type Decision struct {
	Allowed bool
	Reason  string
}

type EndpointResult struct {
	Endpoint string `json:"endpoint"`
	Success  bool   `json:"success"`
	Pruned   bool   `json:"pruned,omitempty"`
	Error    string `json:"error,omitempty"`
}

type SendResult struct {
	Success bool             `json:"success"`
	Reason  string           `json:"reason,omitempty"`
	Results []EndpointResult `json:"results,omitempty"`
}

// notificationPayload is what the service worker receives.
type notificationPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	URL      string `json:"url,omitempty"`
	TS       int64  `json:"ts"`
}

// NotificationService decides whether a (user, room) pair may receive a push
// and delivers it. The decision lives in domain.NotificationRecord; this type
// only loads, persists and orders the transitions.
type NotificationService struct {
	users   UserStore
	records NotificationStore
	sender  push.Sender
	cfg     NotificationConfig

	keys *keyLock
	now  func() time.Time
}

func NewNotificationService(users UserStore, records NotificationStore, sender push.Sender, cfg NotificationConfig, now func() time.Time) *NotificationService {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = domain.DefaultCooldown
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Urgency == "" {
		cfg.Urgency = push.UrgencyNormal
	}
	if cfg.Title == "" {
		cfg.Title = "New messages"
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		users:   users,
		records: records,
		sender:  sender,
		cfg:     cfg,
		keys:    newKeyLock(),
		now:     now,
	}
}

func recordKey(userID int64, roomID string) string {
	return strconv.FormatInt(userID, 10) + "/" + roomID
}

func (s *NotificationService) ShouldSendNotification(ctx context.Context, userID int64, roomID string) (Decision, error) {
	unlock := s.keys.Lock(recordKey(userID, roomID))
	defer unlock()

	d, _, _, err := s.check(ctx, userID, roomID)
	return d, err
}

// check expects the record key lock held.
func (s *NotificationService) check(ctx context.Context, userID int64, roomID string) (Decision, []domain.PushEndpoint, *domain.NotificationRecord, error) {
	endpoints, err := s.users.ListEndpoints(ctx, userID)
	if err != nil {
		return Decision{}, nil, nil, fmt.Errorf("list endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return Decision{Reason: ReasonNoEndpoints}, nil, nil, nil
	}

	fav, err := s.users.IsFavorite(ctx, userID, roomID)
	if err != nil {
		return Decision{}, nil, nil, fmt.Errorf("favorite check: %w", err)
	}
	if !fav {
		return Decision{Reason: ReasonNotFavorite}, nil, nil, nil
	}

	now := s.now()
	rec, err := s.records.GetOrCreateRecord(ctx, userID, roomID, now)
	if err != nil {
		return Decision{}, nil, nil, fmt.Errorf("load record: %w", err)
	}
	if !rec.Eligible(now, s.cfg.Cooldown) {
		return Decision{Reason: ReasonCooldown}, endpoints, rec, nil
	}
	if rec.UnlockByTime(now, s.cfg.Cooldown) {
		if err := s.records.SaveRecord(ctx, rec); err != nil {
			return Decision{}, nil, nil, fmt.Errorf("save record: %w", err)
		}
	}
	return Decision{Allowed: true}, endpoints, rec, nil
}

func (s *NotificationService) SendNotification(ctx context.Context, userID int64, roomID, roomName string) (*SendResult, error) {
	unlock := s.keys.Lock(recordKey(userID, roomID))
	defer unlock()

	d, endpoints, rec, err := s.check(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return &SendResult{Success: false, Reason: d.Reason}, nil
	}

	payload, err := s.buildPayload(roomID, roomName)
	if err != nil {
		return nil, err
	}

	results := s.deliver(ctx, userID, endpoints, payload)

	delivered := 0
	for _, r := range results {
		if r.Success {
			delivered++
		}
	}
	if delivered == 0 {
		return &SendResult{Success: false, Reason: ReasonDeliveryFailed, Results: results}, nil
	}

	rec.MarkSent(s.now())
	if err := s.records.SaveRecord(ctx, rec); err != nil {
		return &SendResult{Success: true, Results: results}, fmt.Errorf("save record after send: %w", err)
	}

	slog.Info("notification sent",
		"user", userID, "room", roomID, "delivered", delivered, "endpoints", len(endpoints))
	return &SendResult{Success: true, Results: results}, nil
}

// deliver pushes to every endpoint independently. Gone endpoints are pruned
// here and never reported as errors upstream.
func (s *NotificationService) deliver(ctx context.Context, userID int64, endpoints []domain.PushEndpoint, payload []byte) []EndpointResult {
	results := make([]EndpointResult, len(endpoints))
	opts := push.Options{TTL: s.cfg.TTL, Urgency: s.cfg.Urgency}

	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for i, ep := range endpoints {
		g.Go(func() error {
			res := EndpointResult{Endpoint: ep.Endpoint}
			err := s.sender.Send(ctx, ep, payload, opts)
			switch {
			case err == nil:
				res.Success = true
			case push.IsGone(err):
				res.Pruned = true
				if rmErr := s.users.RemoveEndpoint(ctx, userID, ep.Endpoint); rmErr != nil {
					slog.Warn("prune push endpoint failed", "user", userID, "err", rmErr)
				} else {
					slog.Debug("pruned push endpoint", "user", userID)
				}
			default:
				res.Error = err.Error()
				slog.Warn("push delivery failed", "user", userID, "err", err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *NotificationService) buildPayload(roomID, roomName string) ([]byte, error) {
	p := notificationPayload{
		Title:    s.cfg.Title,
		Body:     fmt.Sprintf("New messages in %s", roomName),
		RoomID:   roomID,
		RoomName: roomName,
		TS:       s.now().UnixMilli(),
	}
	if s.cfg.URLTemplate != "" {
		p.URL = fmt.Sprintf(s.cfg.URLTemplate, roomID)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return b, nil
}

// VisitRoom re-opens notifications for the pair regardless of the cooldown.
func (s *NotificationService) VisitRoom(ctx context.Context, userID int64, roomID string) error {
	unlock := s.keys.Lock(recordKey(userID, roomID))
	defer unlock()

	now := s.now()
	rec, err := s.records.GetOrCreateRecord(ctx, userID, roomID, now)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	rec.UnlockByVisit(now)
	if err := s.records.SaveRecord(ctx, rec); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// Sweep removes records that have been idle for longer than retention.
func (s *NotificationService) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	return s.records.SweepRecords(ctx, s.now().Add(-retention))
}

// RegisterEndpoint stores a browser subscription for userID. Registering an
// endpoint that already exists moves it to this user with the new keys.
func (s *NotificationService) RegisterEndpoint(ctx context.Context, userID int64, ep domain.PushEndpoint) error {
	if ep.Endpoint == "" || ep.Keys.P256dh == "" || ep.Keys.Auth == "" {
		return fmt.Errorf("%w: endpoint and keys are required", domain.ErrInvalidInput)
	}
	ep.UserID = userID
	ep.CreatedAt = s.now()
	return s.users.AddEndpoint(ctx, ep)
}

func (s *NotificationService) UnregisterEndpoint(ctx context.Context, userID int64, endpoint string) error {
	return s.users.RemoveEndpoint(ctx, userID, endpoint)
}
