package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/FathanAS/fdvp-backend/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development
// fallback when no DATABASE_URL is configured; set-valued columns are stored
// as JSON arrays.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/fdvp.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/fdvp.db"
	}

	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		photo_url TEXT NOT NULL DEFAULT '',
		is_online INTEGER NOT NULL DEFAULT 0,
		last_seen DATETIME,
		push_tokens TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		sender_photo TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		reply_to TEXT NOT NULL DEFAULT '',
		reply_to_text TEXT NOT NULL DEFAULT '',
		deleted_by TEXT NOT NULL DEFAULT '[]',
		is_edited INTEGER NOT NULL DEFAULT 0,
		edited_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS conversations (
		owner_id TEXT NOT NULL,
		partner_id TEXT NOT NULL,
		partner_name TEXT NOT NULL DEFAULT '',
		partner_photo TEXT NOT NULL DEFAULT '',
		last_message TEXT NOT NULL DEFAULT '',
		last_message_id TEXT NOT NULL DEFAULT '',
		ts DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
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
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_owner_ts ON conversations(owner_id, ts);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func encodeSet(set []string) string {
	if set == nil {
		set = []string{}
	}
	data, _ := json.Marshal(set)
	return string(data)
}

func decodeSet(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var set []string
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil
	}
	return set
}

func appendUnique(set []string, id string) ([]string, bool) {
	for _, s := range set {
		if s == id {
			return set, false
		}
	}
	return append(set, id), true
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u := &models.User{}
	var lastSeen sql.NullTime
	var tokens string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, photo_url, is_online, last_seen, push_tokens
		FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.DisplayName, &u.PhotoURL, &u.IsOnline, &lastSeen, &tokens)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		u.LastSeen = &t
	}
	u.PushTokens = decodeSet(tokens)
	return u, nil
}

// UpsertUser writes a user's profile fields.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, photo_url, is_online, last_seen, push_tokens)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			photo_url = excluded.photo_url,
			is_online = excluded.is_online,
			last_seen = excluded.last_seen,
			push_tokens = excluded.push_tokens
	`, u.ID, u.DisplayName, u.PhotoURL, u.IsOnline, u.LastSeen, encodeSet(u.PushTokens))
	return err
}

// SetPresence flips a user's online flag, merging into the existing record.
func (s *SQLiteStore) SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, is_online, last_seen) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			is_online = excluded.is_online,
			last_seen = COALESCE(excluded.last_seen, users.last_seen)
	`, id, online, lastSeen)
	return err
}

// ResetPresence marks every online user offline in one batch.
func (s *SQLiteStore) ResetPresence(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_online = 0, last_seen = ? WHERE is_online = 1
	`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AddPushToken appends a push token to the user's set, creating the user row
// if needed.
func (s *SQLiteStore) AddPushToken(ctx context.Context, userID, token string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT push_tokens FROM users WHERE id = ?`, userID).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `INSERT INTO users (id, push_tokens) VALUES (?, ?)`,
			userID, encodeSet([]string{token}))
		if err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		tokens, added := appendUnique(decodeSet(raw), token)
		if added {
			_, err = tx.ExecContext(ctx, `UPDATE users SET push_tokens = ? WHERE id = ?`,
				encodeSet(tokens), userID)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// RemovePushTokens removes the given tokens from the user's set.
func (s *SQLiteStore) RemovePushTokens(ctx context.Context, userID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT push_tokens FROM users WHERE id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	drop := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		drop[t] = true
	}
	var kept []string
	for _, t := range decodeSet(raw) {
		if !drop[t] {
			kept = append(kept, t)
		}
	}
	_, err = tx.ExecContext(ctx, `UPDATE users SET push_tokens = ? WHERE id = ?`,
		encodeSet(kept), userID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// PutMessage writes the full message record keyed by its client-supplied ID.
func (s *SQLiteStore) PutMessage(ctx context.Context, m *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, sender_id, sender_name, sender_photo,
			body, is_read, created_at, reply_to, reply_to_text, deleted_by, is_edited, edited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			room_id = excluded.room_id,
			sender_id = excluded.sender_id,
			sender_name = excluded.sender_name,
			sender_photo = excluded.sender_photo,
			body = excluded.body,
			is_read = excluded.is_read,
			created_at = excluded.created_at,
			reply_to = excluded.reply_to,
			reply_to_text = excluded.reply_to_text,
			deleted_by = excluded.deleted_by,
			is_edited = excluded.is_edited,
			edited_at = excluded.edited_at
	`, m.ID, m.RoomID, m.SenderID, m.SenderName, m.SenderPhoto,
		m.Text, m.IsRead, m.CreatedAt, m.ReplyTo, m.ReplyToText,
		encodeSet(m.DeletedBy), m.IsEdited, m.EditedAt)
	return err
}

func (s *SQLiteStore) scanMessage(row interface {
	Scan(dest ...any) error
}) (*models.Message, error) {
	m := &models.Message{}
	var deletedBy string
	var editedAt sql.NullTime
	err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.SenderPhoto,
		&m.Text, &m.IsRead, &m.CreatedAt, &m.ReplyTo, &m.ReplyToText,
		&deletedBy, &m.IsEdited, &editedAt)
	if err != nil {
		return nil, err
	}
	m.DeletedBy = decodeSet(deletedBy)
	if editedAt.Valid {
		t := editedAt.Time
		m.EditedAt = &t
	}
	return m, nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	m, err := s.scanMessage(s.db.QueryRowContext(ctx, `
		SELECT id, room_id, sender_id, sender_name, sender_photo,
			body, is_read, created_at, reply_to, reply_to_text, deleted_by, is_edited, edited_at
		FROM messages WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// MessagesByRoom retrieves a room's messages ordered oldest first.
func (s *SQLiteStore) MessagesByRoom(ctx context.Context, roomID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, sender_name, sender_photo,
			body, is_read, created_at, reply_to, reply_to_text, deleted_by, is_edited, edited_at
		FROM messages WHERE room_id = ? ORDER BY created_at ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		m, err := s.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// MarkMessagesRead flips is_read for each ID. Partial success across the
// batch is acceptable; a failed ID does not roll back the others.
func (s *SQLiteStore) MarkMessagesRead(ctx context.Context, ids []string) error {
	var firstErr error
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE messages SET is_read = 1 WHERE id = ?`, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EditMessage replaces a message's body and stamps the edit.
func (s *SQLiteStore) EditMessage(ctx context.Context, id, text string, editedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET body = ?, is_edited = 1, edited_at = ? WHERE id = ?
	`, text, editedAt, id)
	return err
}

// SoftDeleteMessages hides the given messages from one viewer.
func (s *SQLiteStore) SoftDeleteMessages(ctx context.Context, ids []string, viewerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range ids {
		if err := softDeleteOne(ctx, tx, id, viewerID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SoftDeleteRoom hides every message in a room from one viewer.
func (s *SQLiteStore) SoftDeleteRoom(ctx context.Context, roomID, viewerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM messages WHERE room_id = ?`, roomID)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := softDeleteOne(ctx, tx, id, viewerID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func softDeleteOne(ctx context.Context, tx *sql.Tx, id, viewerID string) error {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT deleted_by FROM messages WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	set, added := appendUnique(decodeSet(raw), viewerID)
	if !added {
		return nil
	}
	_, err = tx.ExecContext(ctx, `UPDATE messages SET deleted_by = ? WHERE id = ?`,
		encodeSet(set), id)
	return err
}

// UpsertConversations merge-writes inbox entries atomically.
func (s *SQLiteStore) UpsertConversations(ctx context.Context, entries ...models.ConversationEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (owner_id, partner_id, partner_name, partner_photo,
				last_message, last_message_id, ts, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (owner_id, partner_id) DO UPDATE SET
				partner_name = CASE WHEN excluded.partner_name = ''
					THEN conversations.partner_name ELSE excluded.partner_name END,
				partner_photo = CASE WHEN excluded.partner_photo = ''
					THEN conversations.partner_photo ELSE excluded.partner_photo END,
				last_message = excluded.last_message,
				last_message_id = excluded.last_message_id,
				ts = excluded.ts,
				updated_at = excluded.updated_at
		`, e.OwnerID, e.PartnerID, e.PartnerName, e.PartnerPhoto,
			e.LastMessage, e.LastMessageID, e.Timestamp, e.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ConversationsFor retrieves a user's inbox entries, most recent first.
func (s *SQLiteStore) ConversationsFor(ctx context.Context, ownerID string) ([]models.ConversationEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, partner_id, partner_name, partner_photo,
			last_message, last_message_id, ts, updated_at
		FROM conversations WHERE owner_id = ? ORDER BY ts DESC
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
func (s *SQLiteStore) AddActivity(ctx context.Context, e *models.ActivityEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, action, description, actor_id, actor_name,
			target_id, target_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Action, e.Description, e.ActorID, e.ActorName, e.TargetID, e.TargetType, e.CreatedAt)
	return err
}

// CountUsers returns the number of known users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// CountMessages returns the number of stored messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// LastMessageAt returns the timestamp of the most recent message.
func (s *SQLiteStore) LastMessageAt(ctx context.Context) (*time.Time, error) {
	var t sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM messages`).Scan(&t)
	if err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}
