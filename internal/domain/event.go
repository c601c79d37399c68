package domain

// Real-time event types, client -> server.
const (
	EventAuthenticate = "authenticate"
	EventJoinRoom     = "joinRoom"
	EventLeaveRoom    = "leaveRoom"
	EventSendMessage  = "sendMessage"
	EventPing         = "ping"
)

// Real-time event types, server -> client.
const (
	EventAuthenticated           = "authenticated"
	EventJoinedRoom              = "joinedRoom"
	EventNewMessage              = "newMessage"
	EventMessageSent             = "messageSent" // ack to the sender only
	EventParticipantCountChanged = "participantCountChanged"
	EventSendError               = "sendError"
	EventError                   = "error"
	EventPong                    = "pong"
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type AuthenticatedPayload struct {
	ConnectionID string `json:"connectionId"`
	Guest        bool   `json:"guest"`
	UserID       string `json:"userId,omitempty"`
	GuestID      string `json:"guestId,omitempty"`
	Name         string `json:"name"`
}

type JoinedRoomPayload struct {
	RoomID           string           `json:"roomId"`
	Messages         []MessagePayload `json:"messages"`
	ParticipantCount int              `json:"participantCount"`
}

// MessagePayload is denormalized so receivers never look up the sender.
type MessagePayload struct {
	ID         string `json:"id"`
	RoomID     string `json:"roomId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"` // unix millis
}

type MessageSentPayload struct {
	ID          string `json:"id"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

type ParticipantCountPayload struct {
	RoomID string `json:"roomId"`
	Count  int    `json:"count"`
}

type SendErrorPayload struct {
	RoomID          string `json:"roomId,omitempty"`
	Reason          string `json:"reason"`
	OriginalContent string `json:"originalContent"`
	ClientMsgID     string `json:"clientMsgId,omitempty"`
}

type ErrorPayload struct {
	Op     string `json:"op,omitempty"`
	RoomID string `json:"roomId,omitempty"`
	Reason string `json:"reason"`
}

// Inbound payloads.

type RoomRequest struct {
	RoomID string `json:"roomId"`
}

type SendMessageRequest struct {
	RoomID      string `json:"roomId"`
	Content     string `json:"content"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}
