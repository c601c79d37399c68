package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	q querier
}

func NewUserRepository(q querier) *UserRepository {
	return &UserRepository{q: q}
}

func (r *UserRepository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, queryGetUser, id)
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, queryGetUserByUsername, strings.TrimSpace(username))
}

func (r *UserRepository) getOne(ctx context.Context, sql string, arg any) (*domain.User, error) {
	var u domain.User
	if err := r.q.QueryRow(ctx, sql, arg).Scan(&u.ID, &u.Username); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, mapPgError(err)
	}

	rows, err := r.q.Query(ctx, queryUserFavorites, u.ID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var roomID string
		if err := rows.Scan(&roomID); err != nil {
			return nil, err
		}
		u.FavoriteRooms = append(u.FavoriteRooms, roomID)
	}
	return &u, rows.Err()
}

func (r *UserRepository) EnsureUser(ctx context.Context, id int64, username string) error {
	if _, err := r.q.Exec(ctx, queryEnsureUser, id, strings.TrimSpace(username)); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *UserRepository) IsFavorite(ctx context.Context, userID int64, roomID string) (bool, error) {
	var ok bool
	if err := r.q.QueryRow(ctx, queryIsFavorite, userID, roomID).Scan(&ok); err != nil {
		return false, mapPgError(err)
	}
	return ok, nil
}

func (r *UserRepository) AddFavorite(ctx context.Context, userID int64, roomID string) error {
	if _, err := r.q.Exec(ctx, queryAddFavorite, userID, roomID); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *UserRepository) RemoveFavorite(ctx context.Context, userID int64, roomID string) error {
	if _, err := r.q.Exec(ctx, queryRemoveFavorite, userID, roomID); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *UserRepository) FavoritedBy(ctx context.Context, roomID string) ([]int64, error) {
	rows, err := r.q.Query(ctx, queryFavoritedBy, roomID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UserRepository) ListEndpoints(ctx context.Context, userID int64) ([]domain.PushEndpoint, error) {
	rows, err := r.q.Query(ctx, queryListEndpoints, userID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []domain.PushEndpoint
	for rows.Next() {
		var ep domain.PushEndpoint
		if err := rows.Scan(&ep.Endpoint, &ep.UserID, &ep.Keys.P256dh, &ep.Keys.Auth, &ep.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// AddEndpoint upserts by endpoint URL.
func (r *UserRepository) AddEndpoint(ctx context.Context, ep domain.PushEndpoint) error {
	_, err := r.q.Exec(ctx, queryUpsertEndpoint,
		ep.Endpoint, ep.UserID, ep.Keys.P256dh, ep.Keys.Auth, ep.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *UserRepository) RemoveEndpoint(ctx context.Context, userID int64, endpoint string) error {
	if _, err := r.q.Exec(ctx, queryRemoveEndpoint, userID, endpoint); err != nil {
		return mapPgError(err)
	}
	return nil
}
