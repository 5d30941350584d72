package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FathanAS/fdvp-backend/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool and
// bootstraps the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		photo_url TEXT NOT NULL DEFAULT '',
		is_online BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen TIMESTAMPTZ,
		push_tokens TEXT[] NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		sender_photo TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		reply_to TEXT NOT NULL DEFAULT '',
		reply_to_text TEXT NOT NULL DEFAULT '',
		deleted_by TEXT[] NOT NULL DEFAULT '{}',
		is_edited BOOLEAN NOT NULL DEFAULT FALSE,
		edited_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS conversations (
		owner_id TEXT NOT NULL,
		partner_id TEXT NOT NULL,
		partner_name TEXT NOT NULL DEFAULT '',
		partner_photo TEXT NOT NULL DEFAULT '',
		last_message TEXT NOT NULL DEFAULT '',
		last_message_id TEXT NOT NULL DEFAULT '',
		ts TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (owner_id, partner_id)
	);

	CREATE TABLE IF NOT EXISTS activity_logs (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		actor_id TEXT NOT NULL DEFAULT '',
		actor_name TEXT NOT NULL DEFAULT '',
		target_id TEXT NOT NULL DEFAULT '',
		target_type TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_users_is_online ON users(is_online);
	CREATE INDEX IF NOT EXISTS idx_conversations_owner_ts ON conversations(owner_id, ts DESC);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetUser retrieves a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, display_name, photo_url, is_online, last_seen, push_tokens
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.DisplayName, &u.PhotoURL, &u.IsOnline, &u.LastSeen, &u.PushTokens)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// UpsertUser writes a user's profile fields.
func (s *PostgresStore) UpsertUser(ctx context.Context, u *models.User) error {
	tokens := u.PushTokens
	if tokens == nil {
		tokens = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, display_name, photo_url, is_online, last_seen, push_tokens)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			photo_url = EXCLUDED.photo_url,
			is_online = EXCLUDED.is_online,
			last_seen = EXCLUDED.last_seen,
			push_tokens = EXCLUDED.push_tokens
	`, u.ID, u.DisplayName, u.PhotoURL, u.IsOnline, u.LastSeen, tokens)
	return err
}

// SetPresence flips a user's online flag, merging into the existing record.
// A nil lastSeen leaves the stored value untouched.
func (s *PostgresStore) SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, is_online, last_seen)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			is_online = EXCLUDED.is_online,
			last_seen = COALESCE(EXCLUDED.last_seen, users.last_seen)
	`, id, online, lastSeen)
	return err
}

// ResetPresence marks every online user offline in one batch. Called at
// startup to clear flags left behind by an unclean shutdown.
func (s *PostgresStore) ResetPresence(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET is_online = FALSE, last_seen = NOW() WHERE is_online = TRUE
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// AddPushToken appends a push token to the user's set, creating the user row
// if needed. Adding a token twice is a no-op.
func (s *PostgresStore) AddPushToken(ctx context.Context, userID, token string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, push_tokens) VALUES ($1, ARRAY[$2])
		ON CONFLICT (id) DO UPDATE SET push_tokens =
			CASE WHEN $2 = ANY(users.push_tokens)
				THEN users.push_tokens
				ELSE array_append(users.push_tokens, $2)
			END
	`, userID, token)
	return err
}

// RemovePushTokens removes the given tokens from the user's set.
func (s *PostgresStore) RemovePushTokens(ctx context.Context, userID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET push_tokens = (
			SELECT COALESCE(array_agg(t), '{}')
			FROM unnest(push_tokens) AS t
			WHERE NOT (t = ANY($2))
		)
		WHERE id = $1
	`, userID, tokens)
	return err
}

// PutMessage writes the full message record keyed by its client-supplied ID.
// Re-sending an existing ID overwrites the record (last write wins).
func (s *PostgresStore) PutMessage(ctx context.Context, m *models.Message) error {
	deletedBy := m.DeletedBy
	if deletedBy == nil {
		deletedBy = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, room_id, sender_id, sender_name, sender_photo,
			body, is_read, created_at, reply_to, reply_to_text, deleted_by, is_edited, edited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			room_id = EXCLUDED.room_id,
			sender_id = EXCLUDED.sender_id,
			sender_name = EXCLUDED.sender_name,
			sender_photo = EXCLUDED.sender_photo,
			body = EXCLUDED.body,
			is_read = EXCLUDED.is_read,
			created_at = EXCLUDED.created_at,
			reply_to = EXCLUDED.reply_to,
			reply_to_text = EXCLUDED.reply_to_text,
			deleted_by = EXCLUDED.deleted_by,
			is_edited = EXCLUDED.is_edited,
			edited_at = EXCLUDED.edited_at
	`, m.ID, m.RoomID, m.SenderID, m.SenderName, m.SenderPhoto,
		m.Text, m.IsRead, m.CreatedAt, m.ReplyTo, m.ReplyToText, deletedBy, m.IsEdited, m.EditedAt)
	return err
}

const messageColumns = `id, room_id, sender_id, sender_name, sender_photo,
	body, is_read, created_at, reply_to, reply_to_text, deleted_by, is_edited, edited_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.SenderPhoto,
		&m.Text, &m.IsRead, &m.CreatedAt, &m.ReplyTo, &m.ReplyToText, &m.DeletedBy,
		&m.IsEdited, &m.EditedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage retrieves a message by ID.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// MessagesByRoom retrieves a room's messages ordered oldest first.
func (s *PostgresStore) MessagesByRoom(ctx context.Context, roomID string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE room_id = $1 ORDER BY created_at ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// MarkMessagesRead flips is_read for the given message IDs in one statement.
func (s *PostgresStore) MarkMessagesRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE WHERE id = ANY($1)
	`, ids)
	return err
}

// EditMessage replaces a message's body and stamps the edit.
func (s *PostgresStore) EditMessage(ctx context.Context, id, text string, editedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET body = $2, is_edited = TRUE, edited_at = $3 WHERE id = $1
	`, id, text, editedAt)
	return err
}

// SoftDeleteMessages hides the given messages from one viewer by appending
// to the deleted_by set. The set only ever grows and never duplicates.
func (s *PostgresStore) SoftDeleteMessages(ctx context.Context, ids []string, viewerID string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET deleted_by = array_append(deleted_by, $2)
		WHERE id = ANY($1) AND NOT ($2 = ANY(deleted_by))
	`, ids, viewerID)
	return err
}

// SoftDeleteRoom hides every message in a room from one viewer.
func (s *PostgresStore) SoftDeleteRoom(ctx context.Context, roomID, viewerID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET deleted_by = array_append(deleted_by, $2)
		WHERE room_id = $1 AND NOT ($2 = ANY(deleted_by))
	`, roomID, viewerID)
	return err
}

// UpsertConversations merge-writes inbox entries atomically: either every
// entry in the batch lands or none does.
func (s *PostgresStore) UpsertConversations(ctx context.Context, entries ...models.ConversationEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		_, err := tx.Exec(ctx, `
			INSERT INTO conversations (owner_id, partner_id, partner_name, partner_photo,
				last_message, last_message_id, ts, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (owner_id, partner_id) DO UPDATE SET
				partner_name = CASE WHEN EXCLUDED.partner_name = ''
					THEN conversations.partner_name ELSE EXCLUDED.partner_name END,
				partner_photo = CASE WHEN EXCLUDED.partner_photo = ''
					THEN conversations.partner_photo ELSE EXCLUDED.partner_photo END,
				last_message = EXCLUDED.last_message,
				last_message_id = EXCLUDED.last_message_id,
				ts = EXCLUDED.ts,
				updated_at = EXCLUDED.updated_at
		`, e.OwnerID, e.PartnerID, e.PartnerName, e.PartnerPhoto,
			e.LastMessage, e.LastMessageID, e.Timestamp, e.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ConversationsFor retrieves a user's inbox entries, most recent first.
func (s *PostgresStore) ConversationsFor(ctx context.Context, ownerID string) ([]models.ConversationEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT owner_id, partner_id, partner_name, partner_photo,
			last_message, last_message_id, ts, updated_at
		FROM conversations WHERE owner_id = $1 ORDER BY ts DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ConversationEntry
	for rows.Next() {
		var e models.ConversationEntry
		err := rows.Scan(&e.OwnerID, &e.PartnerID, &e.PartnerName, &e.PartnerPhoto,
			&e.LastMessage, &e.LastMessageID, &e.Timestamp, &e.UpdatedAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddActivity appends an audit-trail record.
func (s *PostgresStore) AddActivity(ctx context.Context, e *models.ActivityEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activity_logs (id, action, description, actor_id, actor_name,
			target_id, target_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.Action, e.Description, e.ActorID, e.ActorName, e.TargetID, e.TargetType, e.CreatedAt)
	return err
}

// CountUsers returns the number of known users.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// CountMessages returns the number of stored messages.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// LastMessageAt returns the timestamp of the most recent message, or nil when
// there are none.
func (s *PostgresStore) LastMessageAt(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(created_at) FROM messages`).Scan(&t)
	if err != nil {
		return nil, err
	}
	return t, nil
}
