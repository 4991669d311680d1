package service

import (
	"context"
	"errors"

	"sunrisetour.staff/internal/model"
	"sunrisetour.staff/internal/repository"
	apperrors "sunrisetour.staff/pkg/errors"
	"sunrisetour.staff/pkg/snowflake"
)

// CreateTicketRequest 创建工单请求
type CreateTicketRequest struct {
	Title       string `json:"title" binding:"required,min=1,max=200"`
	Description string `json:"description" binding:"required"`
	Category    string `json:"category" binding:"required,max=50"`
	Priority    string `json:"priority"`
}

// UpdateTicketStatusRequest 更新工单状态请求
type UpdateTicketStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// AssignTicketRequest 指派工单请求
type AssignTicketRequest struct {
	AssigneeID int64 `json:"assignee_id" binding:"required"`
}

// TicketService 工单服务
type TicketService struct {
	ticketRepo *repository.TicketRepository
	userRepo   *repository.UserRepository
	snowflake  *snowflake.Node
}

// NewTicketService 创建工单服务
func NewTicketService(ticketRepo *repository.TicketRepository, userRepo *repository.UserRepository, sf *snowflake.Node) *TicketService {
	return &TicketService{
		ticketRepo: ticketRepo,
		userRepo:   userRepo,
		snowflake:  sf,
	}
}

// Create 创建工单，初始状态为待审批
func (s *TicketService) Create(ctx context.Context, creatorID int64, req *CreateTicketRequest) (*model.Ticket, error) {
	if req.Priority == "" {
		req.Priority = model.TicketPriorityNormal
	}
	if !model.ValidPriority(req.Priority) {
		return nil, apperrors.ErrInvalidParams
	}

	ticket := &model.Ticket{
		ID:          s.snowflake.Generate().Int64(),
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Status:      model.TicketStatusPending,
		Priority:    req.Priority,
		CreatorID:   creatorID,
	}

	if err := s.ticketRepo.Create(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Get 获取工单，仅创建者、指派人和管理员可见
func (s *TicketService) Get(ctx context.Context, userID int64, role string, ticketID int64) (*model.Ticket, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, err
	}
	if !s.canView(userID, role, ticket) {
		return nil, apperrors.ErrPermissionDenied
	}
	return ticket, nil
}

// List 获取工单列表，管理员看全部，其他人看自己相关的
func (s *TicketService) List(ctx context.Context, userID int64, role string) ([]*model.Ticket, error) {
	if role == model.RoleAdmin {
		return s.ticketRepo.ListAll(ctx)
	}
	return s.ticketRepo.ListByUser(ctx, userID)
}

// UpdateStatus 更新工单状态
// 状态流转受转移表约束，审批动作（批准/驳回）仅管理员可执行
func (s *TicketService) UpdateStatus(ctx context.Context, userID int64, role string, ticketID int64, status string) (*model.Ticket, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, err
	}

	if !model.CanTransition(ticket.Status, status) {
		return nil, apperrors.ErrInvalidTransition
	}

	isApproval := status == model.TicketStatusApproved || status == model.TicketStatusRejected
	if isApproval && role != model.RoleAdmin {
		return nil, apperrors.ErrPermissionDenied
	}
	if !isApproval && !s.canView(userID, role, ticket) {
		return nil, apperrors.ErrPermissionDenied
	}

	if err := s.ticketRepo.UpdateStatus(ctx, ticketID, status); err != nil {
		return nil, err
	}
	ticket.Status = status
	return ticket, nil
}

// Assign 指派工单（管理员操作，角色由路由层校验）
func (s *TicketService) Assign(ctx context.Context, ticketID, assigneeID int64) error {
	if _, err := s.userRepo.GetByID(ctx, assigneeID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperrors.ErrUserNotFound
		}
		return err
	}

	err := s.ticketRepo.UpdateAssignee(ctx, ticketID, assigneeID)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return apperrors.ErrTicketNotFound
	}
	return err
}

// Report 按状态统计工单数量
func (s *TicketService) Report(ctx context.Context) (map[string]int64, error) {
	return s.ticketRepo.CountByStatus(ctx)
}

// canView 判断用户是否可见该工单
func (s *TicketService) canView(userID int64, role string, ticket *model.Ticket) bool {
	if role == model.RoleAdmin {
		return true
	}
	if ticket.CreatorID == userID {
		return true
	}
	return ticket.AssigneeID != nil && *ticket.AssigneeID == userID
}
