package sqlite

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// Seq columns give rows a total insertion order; ids stay opaque uuids.

type roomModel struct {
	Seq              uint64    `gorm:"primaryKey;autoIncrement"`
	ID               string    `gorm:"size:36;uniqueIndex;not null"`
	Name             string    `gorm:"size:200;not null"`
	Type             string    `gorm:"size:32;not null"`
	Lat              float64   `gorm:"not null"`
	Lon              float64   `gorm:"not null"`
	LocationLabel    string    `gorm:"size:200"`
	ParticipantCount int       `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (roomModel) TableName() string { return "chat_rooms" }

func (m *roomModel) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

func (m *roomModel) toDomain() domain.Room {
	return domain.Room{
		ID:   m.ID,
		Name: m.Name,
		Type: m.Type,
		Location: domain.Location{
			Lat:   m.Lat,
			Lon:   m.Lon,
			Label: m.LocationLabel,
		},
		ParticipantCount: m.ParticipantCount,
		CreatedAt:        m.CreatedAt,
	}
}

type messageModel struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement"`
	ID         string    `gorm:"size:36;uniqueIndex;not null"`
	RoomID     string    `gorm:"size:36;index;not null"`
	SenderID   int64     `gorm:"not null"`
	SenderName string    `gorm:"size:100;not null"`
	Content    string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (messageModel) TableName() string { return "room_messages" }

func (m *messageModel) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

func (m *messageModel) toDomain() domain.Message {
	return domain.Message{
		ID:         m.ID,
		RoomID:     m.RoomID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
	}
}

type userModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"`
	Username  string    `gorm:"size:100;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (userModel) TableName() string { return "users" }

type favoriteModel struct {
	UserID    int64     `gorm:"primaryKey;autoIncrement:false"`
	RoomID    string    `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (favoriteModel) TableName() string { return "user_favorite_rooms" }

type endpointModel struct {
	Endpoint  string    `gorm:"primaryKey"`
	UserID    int64     `gorm:"index;not null"`
	P256dh    string    `gorm:"not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false;not null"`
}

func (endpointModel) TableName() string { return "push_endpoints" }

func (m *endpointModel) toDomain() domain.PushEndpoint {
	return domain.PushEndpoint{
		UserID:    m.UserID,
		Endpoint:  m.Endpoint,
		Keys:      domain.PushKeys{P256dh: m.P256dh, Auth: m.Auth},
		CreatedAt: m.CreatedAt,
	}
}

// recordModel timestamps come from the service clock, never from gorm.
type recordModel struct {
	UserID               int64  `gorm:"primaryKey;autoIncrement:false"`
	RoomID               string `gorm:"primaryKey;size:36"`
	LastNotificationSent *time.Time
	CanSendNotification  bool `gorm:"not null"`
	LastRoomVisit        *time.Time
	SentCount            int       `gorm:"not null"`
	CreatedAt            time.Time `gorm:"autoCreateTime:false;not null"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime:false;index;not null"`
}

func (recordModel) TableName() string { return "notification_records" }

func recordFromDomain(r *domain.NotificationRecord) recordModel {
	return recordModel{
		UserID:               r.UserID,
		RoomID:               r.RoomID,
		LastNotificationSent: utcPtr(r.LastNotificationSent),
		CanSendNotification:  r.CanSendNotification,
		LastRoomVisit:        utcPtr(r.LastRoomVisit),
		SentCount:            r.SentCount,
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
}

func (m *recordModel) toDomain() *domain.NotificationRecord {
	return &domain.NotificationRecord{
		UserID:               m.UserID,
		RoomID:               m.RoomID,
		LastNotificationSent: m.LastNotificationSent,
		CanSendNotification:  m.CanSendNotification,
		LastRoomVisit:        m.LastRoomVisit,
		SentCount:            m.SentCount,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

// sqlite compares timestamps as text, so everything is stored in UTC.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func allModels() []any {
	return []any{
		&roomModel{},
		&messageModel{},
		&userModel{},
		&favoriteModel{},
		&endpointModel{},
		&recordModel{},
	}
}
