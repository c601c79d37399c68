package domain

import "time"

type User struct {
	ID            int64
	Username      string
	FavoriteRooms []string
	PushEndpoints []PushEndpoint
}

func (u *User) HasFavorite(roomID string) bool {
	for _, id := range u.FavoriteRooms {
		if id == roomID {
			return true
		}
	}
	return false
}

type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushEndpoint is identified by Endpoint alone: re-registering the same
// endpoint replaces its keys and owner.
type PushEndpoint struct {
	UserID    int64     `json:"-"`
	Endpoint  string    `json:"endpoint"`
	Keys      PushKeys  `json:"keys"`
	CreatedAt time.Time `json:"created_at"`
}
