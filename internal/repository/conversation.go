package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sunrisetour.staff/internal/model"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrDirectConversationExists 单聊成员对唯一约束冲突
	// 并发创建同一对用户的会话时由数据库兜底，调用方应重新查询
	ErrDirectConversationExists = errors.New("direct conversation already exists")
)

// uniqueViolation PostgreSQL 唯一约束冲突错误码
const uniqueViolation = "23505"

// ConversationRepository 会话数据访问
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository 创建会话仓库
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create 创建会话及其成员记录（单个事务）
// direct_key 唯一约束冲突时返回 ErrDirectConversationExists
func (r *ConversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO conversations (id, name, is_group, direct_key, last_message_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		conv.ID,
		conv.Name,
		conv.IsGroup,
		conv.DirectKey,
		conv.LastMessageID,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDirectConversationExists
		}
		return err
	}

	for i := range conv.Members {
		m := &conv.Members[i]
		m.ConversationID = conv.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO conversation_members (conversation_id, member_id, last_seen_message_id)
			VALUES ($1, $2, $3)
			RETURNING joined_at
		`, m.ConversationID, m.MemberID, m.LastSeenMessageID).Scan(&m.JoinedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetDirectByKey 按成员对键查找单聊会话
func (r *ConversationRepository) GetDirectByKey(ctx context.Context, directKey string) (*model.Conversation, error) {
	query := `
		SELECT id, name, is_group, direct_key, last_message_id, created_at, updated_at
		FROM conversations
		WHERE is_group = FALSE AND direct_key = $1
	`
	conv := &model.Conversation{}
	err := r.db.QueryRow(ctx, query, directKey).Scan(
		&conv.ID,
		&conv.Name,
		&conv.IsGroup,
		&conv.DirectKey,
		&conv.LastMessageID,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

// GetWithMembers 获取会话及全部成员记录
func (r *ConversationRepository) GetWithMembers(ctx context.Context, id int64) (*model.Conversation, error) {
	query := `
		SELECT id, name, is_group, direct_key, last_message_id, created_at, updated_at
		FROM conversations WHERE id = $1
	`
	conv := &model.Conversation{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&conv.ID,
		&conv.Name,
		&conv.IsGroup,
		&conv.DirectKey,
		&conv.LastMessageID,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	members, err := r.loadMembers(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	conv.Members = members[id]
	return conv, nil
}

// ListByMember 获取用户参与的所有会话（含成员记录），按最近活跃排序
func (r *ConversationRepository) ListByMember(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	query := `
		SELECT c.id, c.name, c.is_group, c.direct_key, c.last_message_id, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.member_id = $1
		ORDER BY c.updated_at DESC, c.id DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*model.Conversation
	var ids []int64
	for rows.Next() {
		conv := &model.Conversation{}
		err := rows.Scan(
			&conv.ID,
			&conv.Name,
			&conv.IsGroup,
			&conv.DirectKey,
			&conv.LastMessageID,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
		ids = append(ids, conv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	members, err := r.loadMembers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, conv := range convs {
		conv.Members = members[conv.ID]
	}
	return convs, nil
}

// UpdateLastSeen 推进成员的已读指针
func (r *ConversationRepository) UpdateLastSeen(ctx context.Context, conversationID, memberID, lastSeenMessageID int64) error {
	query := `
		UPDATE conversation_members SET last_seen_message_id = $3
		WHERE conversation_id = $1 AND member_id = $2
	`
	result, err := r.db.Exec(ctx, query, conversationID, memberID, lastSeenMessageID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// loadMembers 批量加载成员记录，返回会话ID -> 成员列表映射
func (r *ConversationRepository) loadMembers(ctx context.Context, conversationIDs []int64) (map[int64][]model.Membership, error) {
	result := make(map[int64][]model.Membership, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT conversation_id, member_id, last_seen_message_id, joined_at
		FROM conversation_members
		WHERE conversation_id = ANY($1)
		ORDER BY joined_at
	`
	rows, err := r.db.Query(ctx, query, conversationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.ConversationID, &m.MemberID, &m.LastSeenMessageID, &m.JoinedAt); err != nil {
			return nil, err
		}
		result[m.ConversationID] = append(result[m.ConversationID], m)
	}
	return result, rows.Err()
}
