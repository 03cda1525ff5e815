// Package store persists chat messages and their reactions in SQLite.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// messageRecord is the row layout of a chat message. Reactions are kept as a
// JSON array since they are always read and written as a whole. Timestamps
// are Unix milliseconds; messages sharing one are ordered by SQLite's
// implicit rowid, which follows insertion.
type messageRecord struct {
	ID               string `gorm:"column:id;primaryKey;size:64;not null"`
	SenderID         string `gorm:"column:sender_id;size:190;not null;index:idx_messages_pair,priority:1"`
	ReceiverID       string `gorm:"column:receiver_id;size:190;not null;index:idx_messages_pair,priority:2"`
	Text             string `gorm:"column:text;type:text;not null;default:''"`
	Image            string `gorm:"column:image;type:text;not null;default:''"`
	Video            string `gorm:"column:video;type:text;not null;default:''"`
	ReactionsJSON    string `gorm:"column:reactions_json;type:text;not null;default:'[]'"`
	CreatedAtMillis  int64  `gorm:"column:created_at_ms;not null;index:idx_messages_pair,priority:3"`
	UpdatedAtMillis  int64  `gorm:"column:updated_at_ms;not null"`
}

func (messageRecord) TableName() string {
	return "messages"
}

// Store is a gorm-backed message store.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open establishes a SQLite connection at path and migrates the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&messageRecord{}); err != nil {
		return nil, err
	}

	logger = logger.With().Str("component", "store").Logger()
	logger.Info().Str("path", path).Msg("database initialized")
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateMessage inserts a new message with a fresh id, empty reactions and
// both timestamps set to now.
func (s *Store) CreateMessage(ctx context.Context, msg types.ChatMessage) (types.ChatMessage, error) {
	now := s.now().UTC()
	msg.ID = uuid.NewString()
	msg.Reactions = []types.Reaction{}
	msg.CreatedAt = now.Truncate(time.Millisecond)
	msg.UpdatedAt = msg.CreatedAt

	record, err := toRecord(msg)
	if err != nil {
		return types.ChatMessage{}, err
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return types.ChatMessage{}, fmt.Errorf("insert message: %w", err)
	}
	s.logger.Debug().Str("message_id", msg.ID).Msg("message created")
	return msg, nil
}

// FindMessage loads a message by id.
func (s *Store) FindMessage(ctx context.Context, id string) (types.ChatMessage, error) {
	var record messageRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ChatMessage{}, fmt.Errorf("message %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return types.ChatMessage{}, fmt.Errorf("load message %s: %w", id, err)
	}
	return fromRecord(record)
}

// SaveReactions replaces the reaction list of a message.
func (s *Store) SaveReactions(ctx context.Context, id string, reactions []types.Reaction) error {
	if reactions == nil {
		reactions = []types.Reaction{}
	}
	encoded, err := json.Marshal(reactions)
	if err != nil {
		return fmt.Errorf("encode reactions: %w", err)
	}

	result := s.db.WithContext(ctx).Model(&messageRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"reactions_json": string(encoded),
			"updated_at_ms":  s.now().UTC().UnixMilli(),
		})
	if result.Error != nil {
		return fmt.Errorf("save reactions %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("message %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// Conversation returns the messages exchanged between two users, oldest
// first, in insertion order when timestamps tie.
func (s *Store) Conversation(ctx context.Context, a, b string) ([]types.ChatMessage, error) {
	var records []messageRecord
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Order("created_at_ms ASC").
		Order("rowid ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	out := make([]types.ChatMessage, 0, len(records))
	for _, record := range records {
		msg, err := fromRecord(record)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func toRecord(msg types.ChatMessage) (messageRecord, error) {
	encoded, err := json.Marshal(msg.Reactions)
	if err != nil {
		return messageRecord{}, fmt.Errorf("encode reactions: %w", err)
	}
	return messageRecord{
		ID:               msg.ID,
		SenderID:         msg.SenderID,
		ReceiverID:       msg.ReceiverID,
		Text:             msg.Text,
		Image:            msg.Image,
		Video:            msg.Video,
		ReactionsJSON:    string(encoded),
		CreatedAtMillis:  msg.CreatedAt.UnixMilli(),
		UpdatedAtMillis:  msg.UpdatedAt.UnixMilli(),
	}, nil
}

func fromRecord(record messageRecord) (types.ChatMessage, error) {
	reactions := []types.Reaction{}
	if record.ReactionsJSON != "" {
		if err := json.Unmarshal([]byte(record.ReactionsJSON), &reactions); err != nil {
			return types.ChatMessage{}, fmt.Errorf("decode reactions of %s: %w", record.ID, err)
		}
	}
	return types.ChatMessage{
		ID:         record.ID,
		SenderID:   record.SenderID,
		ReceiverID: record.ReceiverID,
		Text:       record.Text,
		Image:      record.Image,
		Video:      record.Video,
		Reactions:  reactions,
		CreatedAt:  time.UnixMilli(record.CreatedAtMillis).UTC(),
		UpdatedAt:  time.UnixMilli(record.UpdatedAtMillis).UTC(),
	}, nil
}
