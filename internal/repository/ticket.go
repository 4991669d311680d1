package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sunrisetour.staff/internal/model"
)

var ErrTicketNotFound = errors.New("ticket not found")

// TicketRepository 工单数据访问
type TicketRepository struct {
	db *pgxpool.Pool
}

// NewTicketRepository 创建工单仓库
func NewTicketRepository(db *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{db: db}
}

// Create 创建工单
func (r *TicketRepository) Create(ctx context.Context, ticket *model.Ticket) error {
	query := `
		INSERT INTO tickets (id, title, description, category, status, priority, creator_id, assignee_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		ticket.ID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Status,
		ticket.Priority,
		ticket.CreatorID,
		ticket.AssigneeID,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
}

// GetByID 通过 ID 获取工单
func (r *TicketRepository) GetByID(ctx context.Context, id int64) (*model.Ticket, error) {
	query := `
		SELECT id, title, description, category, status, priority, creator_id, assignee_id, created_at, updated_at
		FROM tickets WHERE id = $1
	`
	ticket := &model.Ticket{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Status,
		&ticket.Priority,
		&ticket.CreatorID,
		&ticket.AssigneeID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return ticket, nil
}

// ListAll 获取全部工单，最新在前
func (r *TicketRepository) ListAll(ctx context.Context) ([]*model.Ticket, error) {
	query := `
		SELECT id, title, description, category, status, priority, creator_id, assignee_id, created_at, updated_at
		FROM tickets ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// ListByUser 获取用户相关（创建或被指派）的工单
func (r *TicketRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Ticket, error) {
	query := `
		SELECT id, title, description, category, status, priority, creator_id, assignee_id, created_at, updated_at
		FROM tickets
		WHERE creator_id = $1 OR assignee_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// UpdateStatus 更新工单状态
func (r *TicketRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE tickets SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// UpdateAssignee 更新工单指派人
func (r *TicketRepository) UpdateAssignee(ctx context.Context, id, assigneeID int64) error {
	query := `UPDATE tickets SET assignee_id = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id, assigneeID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// CountByStatus 按状态统计工单数量
func (r *TicketRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	query := `SELECT status, COUNT(*) FROM tickets GROUP BY status`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[status] = count
	}
	return result, rows.Err()
}

// scanTickets 扫描工单结果集
func scanTickets(rows pgx.Rows) ([]*model.Ticket, error) {
	var tickets []*model.Ticket
	for rows.Next() {
		ticket := &model.Ticket{}
		err := rows.Scan(
			&ticket.ID,
			&ticket.Title,
			&ticket.Description,
			&ticket.Category,
			&ticket.Status,
			&ticket.Priority,
			&ticket.CreatorID,
			&ticket.AssigneeID,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}
