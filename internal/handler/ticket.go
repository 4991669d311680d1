package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"sunrisetour.staff/internal/middleware"
	"sunrisetour.staff/internal/service"
	apperrors "sunrisetour.staff/pkg/errors"
	"sunrisetour.staff/pkg/response"
)

// TicketHandler 工单处理器
type TicketHandler struct {
	ticketService *service.TicketService
}

// NewTicketHandler 创建工单处理器
func NewTicketHandler(ticketService *service.TicketService) *TicketHandler {
	return &TicketHandler{ticketService: ticketService}
}

// Create 创建工单
// POST /api/v1/tickets
func (h *TicketHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, apperrors.CodeInvalidParams, err.Error())
		return
	}

	ticket, err := h.ticketService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, ticket)
}

// Get 获取工单详情
// GET /api/v1/tickets/:id
func (h *TicketHandler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	role := middleware.GetRole(c)

	ticketID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, apperrors.ErrInvalidParams)
		return
	}

	ticket, err := h.ticketService.Get(c.Request.Context(), userID, role, ticketID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, ticket)
}

// List 获取工单列表
// GET /api/v1/tickets
func (h *TicketHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	role := middleware.GetRole(c)

	tickets, err := h.ticketService.List(c.Request.Context(), userID, role)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"tickets": tickets})
}

// UpdateStatus 更新工单状态
// PUT /api/v1/tickets/:id/status
func (h *TicketHandler) UpdateStatus(c *gin.Context) {
	userID := middleware.GetUserID(c)
	role := middleware.GetRole(c)

	ticketID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, apperrors.ErrInvalidParams)
		return
	}

	var req service.UpdateTicketStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, apperrors.CodeInvalidParams, err.Error())
		return
	}

	ticket, err := h.ticketService.UpdateStatus(c.Request.Context(), userID, role, ticketID, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, ticket)
}

// Assign 指派工单
// PUT /api/v1/tickets/:id/assign
func (h *TicketHandler) Assign(c *gin.Context) {
	ticketID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, apperrors.ErrInvalidParams)
		return
	}

	var req service.AssignTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, apperrors.CodeInvalidParams, err.Error())
		return
	}

	if err := h.ticketService.Assign(c.Request.Context(), ticketID, req.AssigneeID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// Report 工单状态统计
// GET /api/v1/reports/tickets
func (h *TicketHandler) Report(c *gin.Context) {
	counts, err := h.ticketService.Report(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"counts": counts})
}
