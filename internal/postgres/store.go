package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the pgx-backed implementation of every persistence interface the
// service layer needs.
type Store struct {
	*RoomRepository
	*ChatRepository
	*UserRepository
	*NotificationRepository
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		RoomRepository:         NewRoomRepository(pool),
		ChatRepository:         NewChatRepository(pool),
		UserRepository:         NewUserRepository(pool),
		NotificationRepository: NewNotificationRepository(pool),
	}
}
