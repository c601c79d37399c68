package domain

import "time"

type Location struct {
	Lat   float64 `db:"lat"`
	Lon   float64 `db:"lon"`
	Label string  `db:"label"`
}

// Room.ParticipantCount is a presence hint mirrored from the in-memory
// membership set; it may lag behind across instances.
type Room struct {
	ID               string    `db:"id"`
	Name             string    `db:"name"`
	Type             string    `db:"type"`
	Location         Location  `db:"-"`
	ParticipantCount int       `db:"participant_count"`
	CreatedAt        time.Time `db:"created_at"`
}
