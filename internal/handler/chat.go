package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"sunrisetour.staff/internal/middleware"
	"sunrisetour.staff/internal/service"
	apperrors "sunrisetour.staff/pkg/errors"
	"sunrisetour.staff/pkg/response"
)

// ChatHandler 会话消息处理器
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler 创建会话消息处理器
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ListConversations 获取会话列表
// GET /api/v1/conversations
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID := middleware.GetUserID(c)

	views, err := h.chatService.ListConversations(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"conversations": views})
}

// CreateConversation 查找或创建单聊会话
// POST /api/v1/conversations
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req struct {
		PeerID int64 `json:"peer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, apperrors.CodeInvalidParams, err.Error())
		return
	}

	result, err := h.chatService.CreateDirectConversation(c.Request.Context(), userID, req.PeerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// GetMessages 获取会话消息
// GET /api/v1/conversations/:id/messages
func (h *ChatHandler) GetMessages(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, apperrors.ErrInvalidParams)
		return
	}

	msgs, err := h.chatService.GetMessages(c.Request.Context(), userID, conversationID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"messages": msgs})
}

// SendMessage 发送消息
// POST /api/v1/conversations/:id/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, apperrors.ErrInvalidParams)
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, apperrors.CodeInvalidParams, err.Error())
		return
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), userID, conversationID, req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"message": msg})
}

// SearchUsers 搜索用户（发起新会话用）
// GET /api/v1/user/search?q=
func (h *ChatHandler) SearchUsers(c *gin.Context) {
	userID := middleware.GetUserID(c)

	users, err := h.chatService.SearchUsers(c.Request.Context(), userID, c.Query("q"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"users": users})
}
