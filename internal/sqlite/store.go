// Package sqlite is the embedded store used for local runs and single-node
// deployments. It implements the same interfaces as the postgres store.
package sqlite

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type Config struct {
	Path  string
	Debug bool
}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects and migrates. A single connection serialises writers and
// keeps ":memory:" databases alive across calls.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(allModels()...); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

type seqCursor struct {
	Seq uint64 `json:"seq"`
}

func encodeCursor(seq uint64) string {
	data, _ := json.Marshal(seqCursor{Seq: seq})
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid cursor", domain.ErrInvalidInput)
	}
	var c seqCursor
	if err := json.Unmarshal(data, &c); err != nil || c.Seq == 0 {
		return 0, fmt.Errorf("%w: invalid cursor", domain.ErrInvalidInput)
	}
	return c.Seq, nil
}

// --- rooms ---

func (s *Store) CreateRoom(ctx context.Context, room *domain.Room) error {
	m := roomModel{
		Name:          room.Name,
		Type:          room.Type,
		Lat:           room.Location.Lat,
		Lon:           room.Location.Lon,
		LocationLabel: room.Location.Label,
		CreatedAt:     s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	room.ID = m.ID
	room.CreatedAt = m.CreatedAt
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	var m roomModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	room := m.toDomain()
	return &room, nil
}

// ListRooms pages newest first.
func (s *Store) ListRooms(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error) {
	before, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	q := s.db.WithContext(ctx).Order("seq DESC").Limit(limit)
	if before > 0 {
		q = q.Where("seq < ?", before)
	}
	var rows []roomModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, "", fmt.Errorf("failed to list rooms: %w", err)
	}

	out := make([]domain.Room, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	var next string
	if len(rows) == limit && limit > 0 {
		next = encodeCursor(rows[len(rows)-1].Seq)
	}
	return out, next, nil
}

func (s *Store) UpdateParticipantCount(ctx context.Context, roomID string, count int) error {
	res := s.db.WithContext(ctx).Model(&roomModel{}).Where("id = ?", roomID).Update("participant_count", count)
	if res.Error != nil {
		return fmt.Errorf("failed to update participant count: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

// --- messages ---

func (s *Store) SaveMessage(ctx context.Context, msg *domain.Message) error {
	m := messageModel{
		RoomID:     msg.RoomID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		CreatedAt:  s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	msg.ID = m.ID
	msg.CreatedAt = m.CreatedAt
	return nil
}

func (s *Store) RecentMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	var rows []messageModel
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("seq DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	out := make([]domain.Message, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) History(ctx context.Context, roomID, cursor string, limit int) ([]domain.Message, string, error) {
	before, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	q := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("seq DESC").Limit(limit)
	if before > 0 {
		q = q.Where("seq < ?", before)
	}
	var rows []messageModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, "", fmt.Errorf("failed to load history: %w", err)
	}

	out := make([]domain.Message, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	var next string
	if len(rows) == limit && limit > 0 {
		next = encodeCursor(rows[len(rows)-1].Seq)
	}
	return out, next, nil
}

// --- users ---

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, "username = ?", strings.TrimSpace(username))
}

func (s *Store) getUser(ctx context.Context, cond string, arg any) (*domain.User, error) {
	db := s.db.WithContext(ctx)

	var m userModel
	if err := db.First(&m, cond, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	var favs []favoriteModel
	if err := db.Where("user_id = ?", m.ID).Order("created_at").Find(&favs).Error; err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	u := &domain.User{ID: m.ID, Username: m.Username}
	for _, f := range favs {
		u.FavoriteRooms = append(u.FavoriteRooms, f.RoomID)
	}
	return u, nil
}

func (s *Store) EnsureUser(ctx context.Context, id int64, username string) error {
	m := userModel{ID: id, Username: strings.TrimSpace(username), CreatedAt: s.now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

func (s *Store) IsFavorite(ctx context.Context, userID int64, roomID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&favoriteModel{}).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check favorite: %w", err)
	}
	return n > 0, nil
}

func (s *Store) AddFavorite(ctx context.Context, userID int64, roomID string) error {
	m := favoriteModel{UserID: userID, RoomID: roomID, CreatedAt: s.now()}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	return nil
}

func (s *Store) RemoveFavorite(ctx context.Context, userID int64, roomID string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		Delete(&favoriteModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}

func (s *Store) FavoritedBy(ctx context.Context, roomID string) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&favoriteModel{}).
		Where("room_id = ?", roomID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list favoriters: %w", err)
	}
	return ids, nil
}

// --- push endpoints ---

func (s *Store) ListEndpoints(ctx context.Context, userID int64) ([]domain.PushEndpoint, error) {
	var rows []endpointModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}
	out := make([]domain.PushEndpoint, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (s *Store) AddEndpoint(ctx context.Context, ep domain.PushEndpoint) error {
	m := endpointModel{
		Endpoint:  ep.Endpoint,
		UserID:    ep.UserID,
		P256dh:    ep.Keys.P256dh,
		Auth:      ep.Keys.Auth,
		CreatedAt: ep.CreatedAt.UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth", "created_at"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("failed to add endpoint: %w", err)
	}
	return nil
}

func (s *Store) RemoveEndpoint(ctx context.Context, userID int64, endpoint string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&endpointModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove endpoint: %w", err)
	}
	return nil
}

// --- notification records ---

func (s *Store) GetOrCreateRecord(ctx context.Context, userID int64, roomID string, now time.Time) (*domain.NotificationRecord, error) {
	db := s.db.WithContext(ctx)

	initial := recordFromDomain(domain.NewNotificationRecord(userID, roomID, now))
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&initial).Error; err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	var m recordModel
	if err := db.First(&m, "user_id = ? AND room_id = ?", userID, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) SaveRecord(ctx context.Context, rec *domain.NotificationRecord) error {
	m := recordFromDomain(rec)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_notification_sent",
			"can_send_notification",
			"last_room_visit",
			"sent_count",
			"updated_at",
		}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (s *Store) SweepRecords(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoff = cutoff.UTC()
	res := s.db.WithContext(ctx).
		Where("updated_at < ?", cutoff).
		Where("last_notification_sent IS NULL OR last_notification_sent < ?", cutoff).
		Where("last_room_visit IS NULL OR last_room_visit < ?", cutoff).
		Delete(&recordModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to sweep records: %w", res.Error)
	}
	return res.RowsAffected, nil
}
