package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/push"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type notifyFixture struct {
	store  *memStore
	sender *fakeSender
	clock  *testClock
	svc    *NotificationService
}

func newNotifyFixture() *notifyFixture {
	st := newMemStore()
	snd := newFakeSender()
	clk := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewNotificationService(st, st, snd, NotificationConfig{
		URLTemplate: "https://chat.example/rooms/%s",
	}, clk.Now)
	return &notifyFixture{store: st, sender: snd, clock: clk, svc: svc}
}

// subscriber adds a user who favorited roomID with the given endpoints.
func (f *notifyFixture) subscriber(t *testing.T, userID int64, roomID string, endpoints ...string) {
	t.Helper()
	ctx := context.Background()
	f.store.addUser(userID, "user")
	if err := f.store.AddFavorite(ctx, userID, roomID); err != nil {
		t.Fatal(err)
	}
	for _, ep := range endpoints {
		err := f.svc.RegisterEndpoint(ctx, userID, domain.PushEndpoint{
			Endpoint: ep,
			Keys:     domain.PushKeys{P256dh: "p", Auth: "a"},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestShouldSend_Reasons(t *testing.T) {
	f := newNotifyFixture()
	ctx := context.Background()

	f.store.addUser(1, "no-endpoints")
	_ = f.store.AddFavorite(ctx, 1, "r1")
	d, err := f.svc.ShouldSendNotification(ctx, 1, "r1")
	if err != nil || d.Allowed || d.Reason != ReasonNoEndpoints {
		t.Fatalf("no endpoints: %+v %v", d, err)
	}

	f.subscriber(t, 2, "other", "https://push/2")
	d, err = f.svc.ShouldSendNotification(ctx, 2, "r1")
	if err != nil || d.Allowed || d.Reason != ReasonNotFavorite {
		t.Fatalf("not favorite: %+v %v", d, err)
	}

	f.subscriber(t, 3, "r1", "https://push/3")
	d, err = f.svc.ShouldSendNotification(ctx, 3, "r1")
	if err != nil || !d.Allowed {
		t.Fatalf("fresh subscriber: %+v %v", d, err)
	}
	if f.store.record(3, "r1") == nil {
		t.Fatal("record not created on first check")
	}
}

// Scenario: a user gets one push, stays quiet for the cooldown, and is
// re-opened either by visiting or by time.
func TestSendNotification_CooldownAndUnlocks(t *testing.T) {
	f := newNotifyFixture()
	ctx := context.Background()
	f.subscriber(t, 1, "r1", "https://push/a")

	res, err := f.svc.SendNotification(ctx, 1, "r1", "Lobby")
	if err != nil || !res.Success {
		t.Fatalf("first send: %+v %v", res, err)
	}
	rec := f.store.record(1, "r1")
	if rec.CanSendNotification || rec.SentCount != 1 || rec.LastNotificationSent == nil {
		t.Fatalf("record after send = %+v", rec)
	}

	f.clock.Advance(time.Hour)
	res, err = f.svc.SendNotification(ctx, 1, "r1", "Lobby")
	if err != nil || res.Success || res.Reason != ReasonCooldown {
		t.Fatalf("within cooldown: %+v %v", res, err)
	}
	if f.sender.callCount() != 1 {
		t.Fatalf("sender calls = %d", f.sender.callCount())
	}

	// visit re-opens immediately
	if err := f.svc.VisitRoom(ctx, 1, "r1"); err != nil {
		t.Fatal(err)
	}
	if d, _ := f.svc.ShouldSendNotification(ctx, 1, "r1"); !d.Allowed {
		t.Fatalf("after visit: %+v", d)
	}
	if res, _ = f.svc.SendNotification(ctx, 1, "r1", "Lobby"); !res.Success {
		t.Fatalf("send after visit: %+v", res)
	}

	// time unlock at the boundary, persisted by the check
	f.clock.Advance(domain.DefaultCooldown - time.Second)
	if d, _ := f.svc.ShouldSendNotification(ctx, 1, "r1"); d.Allowed {
		t.Fatal("allowed before the cooldown elapsed")
	}
	f.clock.Advance(time.Second)
	if d, _ := f.svc.ShouldSendNotification(ctx, 1, "r1"); !d.Allowed {
		t.Fatal("not allowed at the cooldown boundary")
	}
	if !f.store.record(1, "r1").CanSendNotification {
		t.Fatal("time unlock not persisted")
	}
}

func TestSendNotification_PayloadAndFanOut(t *testing.T) {
	f := newNotifyFixture()
	ctx := context.Background()
	f.subscriber(t, 1, "r1", "https://push/a", "https://push/b", "https://push/c")

	res, err := f.svc.SendNotification(ctx, 1, "r1", "Lobby")
	if err != nil || !res.Success || len(res.Results) != 3 {
		t.Fatalf("send: %+v %v", res, err)
	}
	if f.sender.callCount() != 3 {
		t.Fatalf("calls = %d", f.sender.callCount())
	}

	var p map[string]any
	if err := json.Unmarshal(f.sender.last, &p); err != nil {
		t.Fatal(err)
	}
	if p["roomId"] != "r1" || p["roomName"] != "Lobby" || p["url"] != "https://chat.example/rooms/r1" {
		t.Fatalf("payload = %v", p)
	}
	if p["body"] != "New messages in Lobby" {
		t.Fatalf("body = %v", p["body"])
	}
}

func TestSendNotification_PrunesGoneEndpoints(t *testing.T) {
	f := newNotifyFixture()
	ctx := context.Background()
	f.subscriber(t, 1, "r1", "https://push/gone", "https://push/ok")
	f.sender.errs["https://push/gone"] = domain.ErrEndpointGone

	res, err := f.svc.SendNotification(ctx, 1, "r1", "Lobby")
	if err != nil || !res.Success {
		t.Fatalf("send: %+v %v", res, err)
	}
	var pruned bool
	for _, r := range res.Results {
		if r.Endpoint == "https://push/gone" {
			pruned = r.Pruned && r.Error == ""
		}
	}
	if !pruned {
		t.Fatalf("results = %+v", res.Results)
	}
	eps, _ := f.store.ListEndpoints(ctx, 1)
	if len(eps) != 1 || eps[0].Endpoint != "https://push/ok" {
		t.Fatalf("endpoints = %+v", eps)
	}
}

func TestSendNotification_AllFailedKeepsRecordOpen(t *testing.T) {
	f := newNotifyFixture()
	ctx := context.Background()
	f.subscriber(t, 1, "r1", "https://push/a", "https://push/b")
	f.sender.errs["https://push/a"] = &push.StatusError{Code: 500}
	f.sender.errs["https://push/b"] = errors.New("timeout")

	res, err := f.svc.SendNotification(ctx, 1, "r1", "Lobby")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Reason != ReasonDeliveryFailed {
		t.Fatalf("res = %+v", res)
	}
	rec := f.store.record(1, "r1")
	if !rec.CanSendNotification || rec.SentCount != 0 {
		t.Fatalf("record closed without a delivery: %+v", rec)
	}
	eps, _ := f.store.ListEndpoints(ctx, 1)
	if len(eps) != 2 {
		t.Fatal("failing endpoints must not be pruned")
	}
}

func TestSendNotification_OnlyLastGoneEndpoint(t *testing.T) {
	f := newNotifyFixture()
	ctx := context.Background()
	f.subscriber(t, 1, "r1", "https://push/gone")
	f.sender.errs["https://push/gone"] = domain.ErrEndpointGone

	res, err := f.svc.SendNotification(ctx, 1, "r1", "Lobby")
	if err != nil || res.Success {
		t.Fatalf("res = %+v err = %v", res, err)
	}
	d, _ := f.svc.ShouldSendNotification(ctx, 1, "r1")
	if d.Reason != ReasonNoEndpoints {
		t.Fatalf("after prune: %+v", d)
	}
}

func TestRegisterEndpoint(t *testing.T) {
	f := newNotifyFixture()
	ctx := context.Background()
	f.store.addUser(1, "ann")
	f.store.addUser(2, "bob")

	if err := f.svc.RegisterEndpoint(ctx, 1, domain.PushEndpoint{Endpoint: "https://push/x"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("missing keys: %v", err)
	}

	ep := domain.PushEndpoint{Endpoint: "https://push/x", Keys: domain.PushKeys{P256dh: "p", Auth: "a"}}
	_ = f.svc.RegisterEndpoint(ctx, 1, ep)
	_ = f.svc.RegisterEndpoint(ctx, 2, ep)

	if eps, _ := f.store.ListEndpoints(ctx, 1); len(eps) != 0 {
		t.Fatal("endpoint must move to the last registrant")
	}
	if eps, _ := f.store.ListEndpoints(ctx, 2); len(eps) != 1 {
		t.Fatal("endpoint missing for user 2")
	}

	if err := f.svc.UnregisterEndpoint(ctx, 2, "https://push/x"); err != nil {
		t.Fatal(err)
	}
	if eps, _ := f.store.ListEndpoints(ctx, 2); len(eps) != 0 {
		t.Fatal("endpoint not removed")
	}
}

func TestSweep(t *testing.T) {
	f := newNotifyFixture()
	ctx := context.Background()
	f.subscriber(t, 1, "r1", "https://push/a")
	f.subscriber(t, 2, "r1", "https://push/b")

	_, _ = f.svc.SendNotification(ctx, 1, "r1", "Lobby")
	f.clock.Advance(20 * 24 * time.Hour)
	_ = f.svc.VisitRoom(ctx, 2, "r1")
	f.clock.Advance(15 * 24 * time.Hour)

	n, err := f.svc.Sweep(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("swept %d", n)
	}
	if f.store.record(1, "r1") != nil || f.store.record(2, "r1") == nil {
		t.Fatal("wrong record swept")
	}
}
