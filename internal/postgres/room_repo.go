package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

type RoomRepository struct {
	q querier
}

func NewRoomRepository(q querier) *RoomRepository {
	return &RoomRepository{q: q}
}

func (r *RoomRepository) CreateRoom(ctx context.Context, room *domain.Room) error {
	err := r.q.QueryRow(ctx, queryCreateRoom,
		room.Name, room.Type, room.Location.Lat, room.Location.Lon, room.Location.Label,
	).Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *RoomRepository) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	rm, err := scanRoom(r.q.QueryRow(ctx, queryGetRoom, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, mapPgError(err)
	}
	return rm, nil
}

// ListRooms pages newest first.
func (r *RoomRepository) ListRooms(ctx context.Context, limit int, cursorStr string) ([]domain.Room, string, error) {
	cur, err := DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}

	var createdAt any
	var id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.q.Query(ctx, queryListRooms, createdAt, id, limit)
	if err != nil {
		return nil, "", mapPgError(err)
	}
	defer rows.Close()

	rooms := make([]domain.Room, 0, limit)
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, "", err
		}
		rooms = append(rooms, *rm)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(rooms) == limit {
		last := rooms[len(rooms)-1]
		nextCursor, _ = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rooms, nextCursor, nil
}

func (r *RoomRepository) UpdateParticipantCount(ctx context.Context, roomID string, count int) error {
	tag, err := r.q.Exec(ctx, queryUpdateParticipantCount, roomID, count)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var rm domain.Room
	err := row.Scan(
		&rm.ID,
		&rm.Name,
		&rm.Type,
		&rm.Location.Lat,
		&rm.Location.Lon,
		&rm.Location.Label,
		&rm.ParticipantCount,
		&rm.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rm, nil
}
