package postgres

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

type ChatRepository struct {
	q querier
}

func NewChatRepository(q querier) *ChatRepository {
	return &ChatRepository{q: q}
}

// SaveMessage lets the database assign id and timestamp.
func (r *ChatRepository) SaveMessage(ctx context.Context, m *domain.Message) error {
	err := r.q.QueryRow(ctx, querySaveMessage, m.RoomID, m.SenderID, m.SenderName, m.Content).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

// RecentMessages returns the latest limit messages, oldest first.
func (r *ChatRepository) RecentMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	rows, err := r.q.Query(ctx, queryRecentMessages, roomID, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	out, err := collectMessages(rows, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// History pages by (created_at, id) DESC.
func (r *ChatRepository) History(ctx context.Context, roomID, after string, limit int) ([]domain.Message, string, error) {
	cur, err := DecodeCursor(after)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}

	var createdAt any
	var id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.q.Query(ctx, queryMessageHistory, roomID, createdAt, id, limit)
	if err != nil {
		return nil, "", mapPgError(err)
	}
	out, err := collectMessages(rows, limit)
	if err != nil {
		return nil, "", err
	}

	var next string
	if len(out) == limit {
		last := out[len(out)-1]
		if c, e := EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID}); e == nil {
			next = c
		}
	}
	return out, next, nil
}

func collectMessages(rows pgx.Rows, capacity int) ([]domain.Message, error) {
	defer rows.Close()

	out := make([]domain.Message, 0, capacity)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
