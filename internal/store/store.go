package store

import (
	"context"
	"time"

	"github.com/FathanAS/fdvp-backend/internal/models"
)

// DataStore is the durable document store behind the gateway. Both
// PostgresStore and SQLiteStore implement this interface; lookups for a
// missing record return (nil, nil).
//
// Single-record writes are atomic, and UpsertConversations is atomic across
// its whole batch. Nothing spans persist+index+broadcast; that window is
// reconciled at the application layer.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations. Profile ownership lives in an external user-management
	// service; this store only reads display fields and mutates presence
	// flags and the push-token set.
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpsertUser(ctx context.Context, u *models.User) error
	SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error
	ResetPresence(ctx context.Context) (int64, error)
	AddPushToken(ctx context.Context, userID, token string) error
	RemovePushTokens(ctx context.Context, userID string, tokens []string) error

	// Message operations. PutMessage is an upsert keyed by the
	// client-supplied ID, so re-sending the same ID is a safe overwrite.
	PutMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	MessagesByRoom(ctx context.Context, roomID string) ([]models.Message, error)
	MarkMessagesRead(ctx context.Context, ids []string) error
	EditMessage(ctx context.Context, id, text string, editedAt time.Time) error
	SoftDeleteMessages(ctx context.Context, ids []string, viewerID string) error
	SoftDeleteRoom(ctx context.Context, roomID, viewerID string) error

	// Conversation index. The upsert merges: display fields already on a row
	// survive an update that carries empty ones.
	UpsertConversations(ctx context.Context, entries ...models.ConversationEntry) error
	ConversationsFor(ctx context.Context, ownerID string) ([]models.ConversationEntry, error)

	// Activity log and aggregates
	AddActivity(ctx context.Context, e *models.ActivityEntry) error
	CountUsers(ctx context.Context) (int64, error)
	CountMessages(ctx context.Context) (int64, error)
	LastMessageAt(ctx context.Context) (*time.Time, error)
}
