package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"chatserver/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `
	id, is_group, name, group_name, group_image, admin_id, direct_key,
	created_at, updated_at,
	last_message_id, last_message_content, last_message_sender_id, last_message_type, last_message_at
`

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation, participantIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (is_group, name, group_name, group_image, admin_id, direct_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, c.IsGroup, c.Name, c.GroupName, c.GroupImage, c.AdminID, c.DirectKey)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id

	for _, uid := range participantIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO conversation_participants (user_id, conversation_id, joined_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
		`, uid, id); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	return r.scanConversation(r.db.QueryRowContext(ctx, query, id))
}

func (r *ConversationRepo) FindDirectByKey(ctx context.Context, key string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE direct_key = ?`
	return r.scanConversation(r.db.QueryRowContext(ctx, query, key))
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.Conversation, error) {
	query := `
		SELECT c.id, c.is_group, c.name, c.group_name, c.group_image, c.admin_id, c.direct_key,
			c.created_at, c.updated_at,
			c.last_message_id, c.last_message_content, c.last_message_sender_id, c.last_message_type, c.last_message_at
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = ?
		ORDER BY c.updated_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	for rows.Next() {
		c, err := r.scanConversation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *ConversationRepo) SetLastMessage(ctx context.Context, conversationID int64, lm domain.LastMessage) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = ?, last_message_content = ?, last_message_sender_id = ?,
			last_message_type = ?, last_message_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, lm.ID, lm.Content, lm.SenderID, string(lm.Type), lm.CreatedAt, conversationID)
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	return nil
}

func (r *ConversationRepo) SetAdmin(ctx context.Context, conversationID, adminID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET admin_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, adminID, conversationID)
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	return nil
}

func (r *ConversationRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ConversationRepo) scanConversation(row rowScanner) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	var (
		lmID       sql.NullInt64
		lmContent  sql.NullString
		lmSenderID sql.NullInt64
		lmType     sql.NullString
		lmAt       sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.IsGroup,
		&c.Name,
		&c.GroupName,
		&c.GroupImage,
		&c.AdminID,
		&c.DirectKey,
		&c.CreatedAt,
		&c.UpdatedAt,
		&lmID,
		&lmContent,
		&lmSenderID,
		&lmType,
		&lmAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if lmID.Valid {
		c.LastMessage = &domain.LastMessage{
			ID:             lmID.Int64,
			Content:        lmContent.String,
			SenderID:       lmSenderID.Int64,
			Type:           domain.MessageType(lmType.String),
			ConversationID: c.ID,
			CreatedAt:      lmAt.Time,
		}
	}
	return c, nil
}
