package postgres

const (
	queryCreateRoom = `
		INSERT INTO chat_rooms (name, type, lat, lon, location_label)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	queryGetRoom = `
		SELECT id, name, type, lat, lon, location_label, participant_count, created_at
		FROM chat_rooms
		WHERE id = $1`
	queryListRooms = `
		SELECT id, name, type, lat, lon, location_label, participant_count, created_at
		FROM chat_rooms
		WHERE ($1::timestamptz IS NULL OR created_at < $1
		       OR (created_at = $1 AND id < $2))
		ORDER BY created_at DESC, id DESC
		LIMIT $3`
	queryUpdateParticipantCount = `UPDATE chat_rooms SET participant_count = $2 WHERE id = $1`
)

const (
	querySaveMessage = `
		INSERT INTO room_messages (room_id, sender_id, sender_name, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	queryRecentMessages = `
		SELECT id, room_id, sender_id, sender_name, content, created_at
		FROM room_messages
		WHERE room_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	queryMessageHistory = `
		SELECT id, room_id, sender_id, sender_name, content, created_at
		FROM room_messages
		WHERE room_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at < $2
		    OR (created_at = $2 AND id < $3)
		  )
		ORDER BY created_at DESC, id DESC
		LIMIT $4`
)

const (
	queryGetUser           = `SELECT id, username FROM users WHERE id = $1`
	queryGetUserByUsername = `SELECT id, username FROM users WHERE username = $1`
	queryEnsureUser        = `
		INSERT INTO users (id, username)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username`
	queryUserFavorites = `SELECT room_id FROM user_favorite_rooms WHERE user_id = $1 ORDER BY created_at`
	queryIsFavorite    = `SELECT EXISTS(SELECT 1 FROM user_favorite_rooms WHERE user_id = $1 AND room_id = $2)`
	queryAddFavorite   = `
		INSERT INTO user_favorite_rooms (user_id, room_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	queryRemoveFavorite = `DELETE FROM user_favorite_rooms WHERE user_id = $1 AND room_id = $2`
	queryFavoritedBy    = `SELECT user_id FROM user_favorite_rooms WHERE room_id = $1 ORDER BY user_id`

	queryListEndpoints = `
		SELECT endpoint, user_id, p256dh, auth, created_at
		FROM push_endpoints
		WHERE user_id = $1
		ORDER BY created_at`
	queryUpsertEndpoint = `
		INSERT INTO push_endpoints (endpoint, user_id, p256dh, auth, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    p256dh = EXCLUDED.p256dh,
		    auth = EXCLUDED.auth,
		    created_at = EXCLUDED.created_at`
	queryRemoveEndpoint = `DELETE FROM push_endpoints WHERE user_id = $1 AND endpoint = $2`
)

const (
	queryInsertRecord = `
		INSERT INTO notification_records (user_id, room_id, can_send_notification, created_at, updated_at)
		VALUES ($1, $2, TRUE, $3, $3)
		ON CONFLICT (user_id, room_id) DO NOTHING`
	queryGetRecord = `
		SELECT user_id, room_id, last_notification_sent, can_send_notification,
		       last_room_visit, sent_count, created_at, updated_at
		FROM notification_records
		WHERE user_id = $1 AND room_id = $2`
	queryUpsertRecord = `
		INSERT INTO notification_records (user_id, room_id, last_notification_sent, can_send_notification,
		                                  last_room_visit, sent_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, room_id) DO UPDATE
		SET last_notification_sent = EXCLUDED.last_notification_sent,
		    can_send_notification = EXCLUDED.can_send_notification,
		    last_room_visit = EXCLUDED.last_room_visit,
		    sent_count = EXCLUDED.sent_count,
		    updated_at = EXCLUDED.updated_at`
	querySweepRecords = `
		DELETE FROM notification_records
		WHERE updated_at < $1
		  AND (last_notification_sent IS NULL OR last_notification_sent < $1)
		  AND (last_room_visit IS NULL OR last_room_visit < $1)`
)
