package http

import (
	"strconv"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type LocationItem struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Label string  `json:"label,omitempty"`
}

type CreateRoomRequest struct {
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	Location LocationItem `json:"location"`
}

type RoomItem struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Type             string       `json:"type"`
	Location         LocationItem `json:"location"`
	ParticipantCount int          `json:"participantCount"`
	IsFavorite       bool         `json:"isFavorite"`
	CreatedAt        time.Time    `json:"createdAt"`
}

type RoomsListResponse struct {
	Items      []RoomItem `json:"items"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

type MessageItem struct {
	ID         string `json:"id"`
	RoomID     string `json:"roomId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
}

type MessagesResponse struct {
	Items      []MessageItem `json:"items"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

type EligibilityResponse struct {
	RoomID  string `json:"roomId"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type RegisterEndpointRequest struct {
	Endpoint string          `json:"endpoint"`
	Keys     domain.PushKeys `json:"keys"`
}

type UnregisterEndpointRequest struct {
	Endpoint string `json:"endpoint"`
}

func toRoomItem(r *domain.Room, favorite bool) RoomItem {
	return RoomItem{
		ID:               r.ID,
		Name:             r.Name,
		Type:             r.Type,
		Location:         LocationItem{Lat: r.Location.Lat, Lon: r.Location.Lon, Label: r.Location.Label},
		ParticipantCount: r.ParticipantCount,
		IsFavorite:       favorite,
		CreatedAt:        r.CreatedAt,
	}
}

func toMessageItem(m domain.Message) MessageItem {
	return MessageItem{
		ID:         m.ID,
		RoomID:     m.RoomID,
		SenderID:   strconv.FormatInt(m.SenderID, 10),
		SenderName: m.SenderName,
		Content:    m.Content,
		Timestamp:  m.CreatedAt.UnixMilli(),
	}
}
