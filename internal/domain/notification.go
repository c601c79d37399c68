package domain

import "time"

// DefaultCooldown is how long a sent notification blocks the next one for the
// same (user, room) unless the user visits the room first.
const DefaultCooldown = 24 * time.Hour

// NotificationRecord is the per (user, room) eligibility state. Two
// transitions can re-open it: UnlockByTime after the cooldown and
// UnlockByVisit at any time. MarkSent closes it.
type NotificationRecord struct {
	UserID               int64
	RoomID               string
	LastNotificationSent *time.Time
	CanSendNotification  bool
	LastRoomVisit        *time.Time
	SentCount            int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewNotificationRecord returns the initial state: nothing sent, open.
func NewNotificationRecord(userID int64, roomID string, now time.Time) *NotificationRecord {
	return &NotificationRecord{
		UserID:              userID,
		RoomID:              roomID,
		CanSendNotification: true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func (r *NotificationRecord) cooldownElapsed(now time.Time, cooldown time.Duration) bool {
	if r.LastNotificationSent == nil {
		return true
	}
	return now.Sub(*r.LastNotificationSent) >= cooldown
}

// UnlockByTime opens the record once the cooldown has elapsed since the last
// send. It reports whether the record changed.
func (r *NotificationRecord) UnlockByTime(now time.Time, cooldown time.Duration) bool {
	if r.CanSendNotification || !r.cooldownElapsed(now, cooldown) {
		return false
	}
	r.CanSendNotification = true
	r.UpdatedAt = now
	return true
}

// UnlockByVisit opens the record regardless of the cooldown.
func (r *NotificationRecord) UnlockByVisit(now time.Time) {
	t := now
	r.LastRoomVisit = &t
	r.CanSendNotification = true
	r.UpdatedAt = now
}

// Eligible reports whether a notification may be sent now, without mutating.
func (r *NotificationRecord) Eligible(now time.Time, cooldown time.Duration) bool {
	return r.CanSendNotification || r.cooldownElapsed(now, cooldown)
}

// MarkSent closes the record after at least one endpoint accepted a push.
func (r *NotificationRecord) MarkSent(now time.Time) {
	t := now
	r.LastNotificationSent = &t
	r.CanSendNotification = false
	r.SentCount++
	r.UpdatedAt = now
}
