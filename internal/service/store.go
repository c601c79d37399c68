package service

import (
	"context"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type RoomStore interface {
	GetRoom(ctx context.Context, id string) (*domain.Room, error)
	ListRooms(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error)
	CreateRoom(ctx context.Context, room *domain.Room) error
	UpdateParticipantCount(ctx context.Context, roomID string, count int) error
}

type MessageStore interface {
	// SaveMessage assigns ID and CreatedAt.
	SaveMessage(ctx context.Context, m *domain.Message) error
	// RecentMessages returns up to limit latest messages, oldest first.
	RecentMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error)
	// History pages backwards from the cursor, newest first.
	History(ctx context.Context, roomID, cursor string, limit int) ([]domain.Message, string, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	// EnsureUser creates the user or refreshes its username.
	EnsureUser(ctx context.Context, id int64, username string) error

	IsFavorite(ctx context.Context, userID int64, roomID string) (bool, error)
	AddFavorite(ctx context.Context, userID int64, roomID string) error
	RemoveFavorite(ctx context.Context, userID int64, roomID string) error
	FavoritedBy(ctx context.Context, roomID string) ([]int64, error)

	ListEndpoints(ctx context.Context, userID int64) ([]domain.PushEndpoint, error)
	AddEndpoint(ctx context.Context, ep domain.PushEndpoint) error
	RemoveEndpoint(ctx context.Context, userID int64, endpoint string) error
}

type NotificationStore interface {
	GetOrCreateRecord(ctx context.Context, userID int64, roomID string, now time.Time) (*domain.NotificationRecord, error)
	SaveRecord(ctx context.Context, rec *domain.NotificationRecord) error
	// SweepRecords deletes records with no send, visit or update after cutoff.
	SweepRecords(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store bundles every persistence concern; both the postgres and the sqlite
// packages provide one.
type Store interface {
	RoomStore
	MessageStore
	UserStore
	NotificationStore
}
