package ws

import (
	"encoding/json"
	"strconv"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// inbound is the client -> server envelope. Payload is decoded per type.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Error reasons sent on the wire.
const (
	reasonBadRequest   = "bad_request"
	reasonUnknownEvent = "unknown_event"
)

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func authenticatedEvent(connID string, id domain.Identity) domain.Event {
	p := domain.AuthenticatedPayload{
		ConnectionID: connID,
		Guest:        id.IsGuest(),
		Name:         id.DisplayName(),
	}
	switch v := id.(type) {
	case domain.Authenticated:
		p.UserID = strconv.FormatInt(v.UserID, 10)
	case domain.Guest:
		p.GuestID = v.EphemeralID
	}
	return domain.Event{Type: domain.EventAuthenticated, Payload: p}
}

func errorEvent(op, reason string) domain.Event {
	return domain.Event{
		Type:    domain.EventError,
		Payload: domain.ErrorPayload{Op: op, Reason: reason},
	}
}
