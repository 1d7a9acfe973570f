package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/kotae/internal/models"
)

// CreateConversation inserts a conversation, registering its owner first.
func (s *SQLiteStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if err := s.EnsureUser(ctx, conv.OwnerID); err != nil {
		return err
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, owner_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.OwnerID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return storageErr("create conversation", err)
	}
	return nil
}

// GetConversation returns a conversation by ID.
func (s *SQLiteStorage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, created_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("conversation", id)
	}
	if err != nil {
		return nil, storageErr("get conversation", err)
	}
	return &c, nil
}

// ListConversations returns the owner's conversations, most recently active first.
func (s *SQLiteStorage) ListConversations(ctx context.Context, ownerID string, offset, limit int) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, title, created_at, updated_at FROM conversations
		 WHERE owner_id = ? ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`,
		ownerID, limit, offset)
	if err != nil {
		return nil, storageErr("list conversations", err)
	}
	defer rows.Close()

	convs := []*models.Conversation{}
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, storageErr("scan conversation", err)
		}
		convs = append(convs, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list conversations", err)
	}
	return convs, nil
}

// AppendMessage appends msg to its conversation inside one transaction.
func (s *SQLiteStorage) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	var citations sql.NullString
	if len(msg.Citations) > 0 {
		b, err := json.Marshal(msg.Citations)
		if err != nil {
			return storageErr("marshal citations", err)
		}
		citations = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin append message", err)
	}
	defer tx.Rollback()

	var lastSeq int
	var lastAt sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT seq, created_at FROM messages WHERE conversation_id = ? ORDER BY seq DESC LIMIT 1`,
		msg.ConversationID,
	).Scan(&lastSeq, &lastAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return storageErr("read last message", err)
	}

	now := time.Now().UTC()
	if lastAt.Valid && !now.After(lastAt.Time) {
		now = lastAt.Time.Add(time.Microsecond)
	}
	msg.Seq = lastSeq + 1
	msg.CreatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, seq, role, content, citations, status, interruption, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Seq, msg.Role, msg.Content, citations,
		msg.Status, msg.Interruption, msg.CreatedAt)
	if err != nil {
		return storageErr("insert message", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, msg.CreatedAt, msg.ConversationID)
	if err != nil {
		return storageErr("touch conversation", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit append message", err)
	}
	return nil
}

// ListMessages returns the tail of a conversation in seq order.
func (s *SQLiteStorage) ListMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, seq, role, content, citations, status, interruption, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	defer rows.Close()

	msgs := []*models.Message{}
	for rows.Next() {
		var m models.Message
		var citations sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.Role, &m.Content, &citations,
			&m.Status, &m.Interruption, &m.CreatedAt); err != nil {
			return nil, storageErr("scan message", err)
		}
		if citations.Valid && citations.String != "" {
			if err := json.Unmarshal([]byte(citations.String), &m.Citations); err != nil {
				return nil, storageErr("unmarshal citations", err)
			}
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list messages", err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}
