package domain

import "time"

// Message is the canonical chat message. SenderID and SenderName are resolved
// once when the message enters the system and never re-derived downstream.
type Message struct {
	ID         string    `db:"id"`
	RoomID     string    `db:"room_id"`
	SenderID   int64     `db:"sender_id"`
	SenderName string    `db:"sender_name"`
	Content    string    `db:"content"`
	CreatedAt  time.Time `db:"created_at"`
}
