package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

type NotificationRepository struct {
	q querier
}

func NewNotificationRepository(q querier) *NotificationRepository {
	return &NotificationRepository{q: q}
}

// GetOrCreateRecord inserts the initial state if absent, then reads the row.
// Concurrent creators converge on the same row.
func (r *NotificationRepository) GetOrCreateRecord(ctx context.Context, userID int64, roomID string, now time.Time) (*domain.NotificationRecord, error) {
	if _, err := r.q.Exec(ctx, queryInsertRecord, userID, roomID, now); err != nil {
		return nil, mapPgError(err)
	}

	var rec domain.NotificationRecord
	err := r.q.QueryRow(ctx, queryGetRecord, userID, roomID).Scan(
		&rec.UserID,
		&rec.RoomID,
		&rec.LastNotificationSent,
		&rec.CanSendNotification,
		&rec.LastRoomVisit,
		&rec.SentCount,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, mapPgError(err)
	}
	return &rec, nil
}

func (r *NotificationRepository) SaveRecord(ctx context.Context, rec *domain.NotificationRecord) error {
	_, err := r.q.Exec(ctx, queryUpsertRecord,
		rec.UserID,
		rec.RoomID,
		rec.LastNotificationSent,
		rec.CanSendNotification,
		rec.LastRoomVisit,
		rec.SentCount,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *NotificationRepository) SweepRecords(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, querySweepRecords, cutoff)
	if err != nil {
		return 0, mapPgError(err)
	}
	return tag.RowsAffected(), nil
}
