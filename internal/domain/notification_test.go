package domain

import (
	"testing"
	"time"
)

func TestNotificationRecord_Transitions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewNotificationRecord(1, "room", now)

	if !r.Eligible(now, DefaultCooldown) {
		t.Fatal("fresh record must be eligible")
	}

	r.MarkSent(now)
	if r.CanSendNotification || r.SentCount != 1 {
		t.Fatalf("after send: can=%v count=%d", r.CanSendNotification, r.SentCount)
	}
	if r.Eligible(now.Add(time.Second), DefaultCooldown) {
		t.Fatal("must be closed one second after a send")
	}
	if r.UnlockByTime(now.Add(23*time.Hour), DefaultCooldown) {
		t.Fatal("time unlock before cooldown")
	}

	if !r.UnlockByTime(now.Add(24*time.Hour), DefaultCooldown) {
		t.Fatal("time unlock at cooldown boundary expected")
	}
	if !r.CanSendNotification {
		t.Fatal("flag not set by time unlock")
	}
}

func TestNotificationRecord_VisitUnlock(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewNotificationRecord(1, "room", now)
	r.MarkSent(now)

	visit := now.Add(time.Second)
	r.UnlockByVisit(visit)
	if !r.Eligible(visit, DefaultCooldown) {
		t.Fatal("visit must re-open the record")
	}
	if r.LastRoomVisit == nil || !r.LastRoomVisit.Equal(visit) {
		t.Fatalf("last visit = %v", r.LastRoomVisit)
	}
	if r.LastNotificationSent == nil || !r.LastNotificationSent.Equal(now) {
		t.Fatal("visit must not touch last send time")
	}
}

func TestIdentity_Variants(t *testing.T) {
	ids := []Identity{
		Authenticated{UserID: 7, Username: "ann"},
		Guest{EphemeralID: "abc", Name: "visitor"},
	}
	for _, id := range ids {
		switch v := id.(type) {
		case Authenticated:
			if v.Key() != "user:7" || v.DisplayName() != "ann" {
				t.Fatalf("authenticated: %q %q", v.Key(), v.DisplayName())
			}
			if uid, ok := UserIDOf(v); !ok || uid != 7 {
				t.Fatalf("UserIDOf = %d %v", uid, ok)
			}
		case Guest:
			if v.Key() != "guest:abc" {
				t.Fatalf("guest key %q", v.Key())
			}
			if _, ok := UserIDOf(v); ok {
				t.Fatal("guest has no user id")
			}
		}
	}
}
