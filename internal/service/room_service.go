package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type RoomService struct {
	rooms    RoomStore
	users    UserStore
	registry *Registry
}

func NewRoomService(rooms RoomStore, users UserStore, registry *Registry) *RoomService {
	return &RoomService{rooms: rooms, users: users, registry: registry}
}

// CreateRoom stores a new room. Type defaults to "public".
func (s *RoomService) CreateRoom(ctx context.Context, name, typ string, loc domain.Location) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: room name is required", domain.ErrInvalidInput)
	}
	if typ == "" {
		typ = "public"
	}

	room := &domain.Room{
		Name:     name,
		Type:     typ,
		Location: loc,
	}
	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("rooms.CreateRoom: %w", err)
	}
	return room, nil
}

// GetRoom overlays the live count of this instance on the persisted hint.
func (s *RoomService) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	room, err := s.rooms.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if n := s.registry.Count(id); n > 0 {
		room.ParticipantCount = n
	}
	return room, nil
}

func (s *RoomService) ListRooms(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	return s.rooms.ListRooms(ctx, limit, cursor)
}

func (s *RoomService) AddFavorite(ctx context.Context, userID int64, roomID string) error {
	if _, err := s.rooms.GetRoom(ctx, roomID); err != nil {
		return err
	}
	return s.users.AddFavorite(ctx, userID, roomID)
}

func (s *RoomService) RemoveFavorite(ctx context.Context, userID int64, roomID string) error {
	return s.users.RemoveFavorite(ctx, userID, roomID)
}

// Favorites returns the room ids the user marked, empty for unknown users.
func (s *RoomService) Favorites(ctx context.Context, userID int64) (map[string]bool, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return map[string]bool{}, nil
		}
		return nil, err
	}
	out := make(map[string]bool, len(u.FavoriteRooms))
	for _, id := range u.FavoriteRooms {
		out[id] = true
	}
	return out, nil
}
