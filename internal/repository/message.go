package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"sunrisetour.staff/internal/model"
)

// MessageRepository 消息数据访问
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository 创建消息仓库
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append 写入消息并推进会话的最新消息指针
// 两个写操作在同一事务中执行，不会出现消息已落库但指针未更新的孤儿窗口
func (r *MessageRepository) Append(ctx context.Context, msg *model.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, msg_type, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.MsgType, msg.Content).Scan(&msg.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations SET last_message_id = $2, updated_at = NOW()
		WHERE id = $1
	`, msg.ConversationID, msg.ID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListByConversation 获取会话全部消息，按创建时间升序
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID int64) ([]*model.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, msg_type, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		msg := &model.Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.MsgType,
			&msg.Content,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// GetByIDs 批量获取消息，返回 ID -> 消息映射
func (r *MessageRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Message, error) {
	result := make(map[int64]*model.Message, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `
		SELECT id, conversation_id, sender_id, msg_type, content, created_at
		FROM messages WHERE id = ANY($1)
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		msg := &model.Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.MsgType,
			&msg.Content,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		result[msg.ID] = msg
	}
	return result, rows.Err()
}
