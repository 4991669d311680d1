package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"sunrisetour.staff/internal/model"
	"sunrisetour.staff/internal/repository"
	apperrors "sunrisetour.staff/pkg/errors"
	"sunrisetour.staff/pkg/snowflake"
)

// searchUserLimit 用户搜索结果上限（输入联想场景，不做分页）
const searchUserLimit = 10

// minSearchQueryLen 低于该长度的搜索直接返回空结果，不查库
const minSearchQueryLen = 2

// ConversationStore 会话存储接口
type ConversationStore interface {
	Create(ctx context.Context, conv *model.Conversation) error
	GetDirectByKey(ctx context.Context, directKey string) (*model.Conversation, error)
	GetWithMembers(ctx context.Context, id int64) (*model.Conversation, error)
	ListByMember(ctx context.Context, userID int64) ([]*model.Conversation, error)
	UpdateLastSeen(ctx context.Context, conversationID, memberID, lastSeenMessageID int64) error
}

// MessageStore 消息存储接口
type MessageStore interface {
	Append(ctx context.Context, msg *model.Message) error
	ListByConversation(ctx context.Context, conversationID int64) ([]*model.Message, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Message, error)
}

// ChatUserStore 聊天侧需要的用户查询接口
type ChatUserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error)
	Search(ctx context.Context, keyword string, excludeID int64, limit int) ([]*model.User, error)
}

// Notifier 消息事件通知接口，投递失败不影响主流程
type Notifier interface {
	MessageCreated(ctx context.Context, event *MessageCreatedEvent) error
}

// MessageCreatedEvent 消息创建事件
type MessageCreatedEvent struct {
	ConversationID int64   `json:"conversation_id"`
	MessageID      int64   `json:"message_id"`
	SenderID       int64   `json:"sender_id"`
	MemberIDs      []int64 `json:"member_ids"`
}

// UserBrief 用户展示信息
type UserBrief struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Role   string `json:"role"`
}

// MessageView 消息展示信息，冗余发送者身份
type MessageView struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversationId"`
	SenderID       int64      `json:"senderId"`
	Sender         *UserBrief `json:"sender,omitempty"`
	MsgType        string     `json:"msgType"`
	Content        []string   `json:"content"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ConversationView 会话列表项
type ConversationView struct {
	ID           int64        `json:"id"`
	Name         *string      `json:"name,omitempty"`
	IsGroup      bool         `json:"isGroup"`
	Participants []UserBrief  `json:"participants"` // 不含请求者本人
	LastMessage  *MessageView `json:"lastMessage,omitempty"`
	UnreadCount  int          `json:"unreadCount"` // 0/1 未读标记
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// CreateConversationResult 单聊查找/创建结果
type CreateConversationResult struct {
	ConversationID int64 `json:"conversationId"`
	IsNew          bool  `json:"isNew"`
}

// ChatService 会话消息服务
// 所有操作以显式传入的请求者ID为主体，由认证中间件解析，不接受调用方伪造
type ChatService struct {
	convStore ConversationStore
	msgStore  MessageStore
	userStore ChatUserStore
	notifier  Notifier
	snowflake *snowflake.Node
	logger    *slog.Logger
}

// NewChatService 创建会话消息服务，notifier 可为 nil
func NewChatService(convStore ConversationStore, msgStore MessageStore, userStore ChatUserStore, notifier Notifier, sf *snowflake.Node) *ChatService {
	return &ChatService{
		convStore: convStore,
		msgStore:  msgStore,
		userStore: userStore,
		notifier:  notifier,
		snowflake: sf,
		logger:    slog.Default(),
	}
}

// CreateDirectConversation 查找或创建两人单聊会话
// 同一无序用户对至多存在一个单聊会话，由存储层 direct_key 唯一约束兜底：
// 并发创建时插入冲突按"已存在"处理，重新查询返回已有会话
func (s *ChatService) CreateDirectConversation(ctx context.Context, userID, peerID int64) (*CreateConversationResult, error) {
	if userID == peerID {
		return nil, apperrors.ErrCannotChatSelf
	}

	// 对方必须是真实用户
	if _, err := s.userStore.GetByID(ctx, peerID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, s.storeFailure("check peer", err)
	}

	directKey := model.BuildDirectKey(userID, peerID)

	existing, err := s.convStore.GetDirectByKey(ctx, directKey)
	if err == nil {
		return &CreateConversationResult{ConversationID: existing.ID, IsNew: false}, nil
	}
	if !errors.Is(err, repository.ErrConversationNotFound) {
		return nil, s.storeFailure("lookup direct conversation", err)
	}

	conv := &model.Conversation{
		ID:        s.snowflake.Generate().Int64(),
		IsGroup:   false,
		DirectKey: &directKey,
		Members: []model.Membership{
			{MemberID: userID},
			{MemberID: peerID},
		},
	}

	err = s.convStore.Create(ctx, conv)
	if err == nil {
		return &CreateConversationResult{ConversationID: conv.ID, IsNew: true}, nil
	}
	if errors.Is(err, repository.ErrDirectConversationExists) {
		// 并发创建撞上唯一约束，改查已有会话
		existing, err := s.convStore.GetDirectByKey(ctx, directKey)
		if err != nil {
			return nil, s.storeFailure("refetch direct conversation", err)
		}
		return &CreateConversationResult{ConversationID: existing.ID, IsNew: false}, nil
	}
	return nil, s.storeFailure("create direct conversation", err)
}

// ListConversations 获取用户的会话列表
// 按最近活跃排序，附带其他参与者身份、最新消息和未读标记
func (s *ChatService) ListConversations(ctx context.Context, userID int64) ([]*ConversationView, error) {
	convs, err := s.convStore.ListByMember(ctx, userID)
	if err != nil {
		return nil, s.storeFailure("list conversations", err)
	}

	// 收集需要解析的用户和消息
	var otherIDs, lastMsgIDs []int64
	for _, conv := range convs {
		for _, m := range conv.Members {
			if m.MemberID != userID {
				otherIDs = append(otherIDs, m.MemberID)
			}
		}
		if conv.LastMessageID != nil {
			lastMsgIDs = append(lastMsgIDs, *conv.LastMessageID)
		}
	}

	users, err := s.userStore.GetByIDs(ctx, otherIDs)
	if err != nil {
		return nil, s.storeFailure("resolve participants", err)
	}
	lastMsgs, err := s.msgStore.GetByIDs(ctx, lastMsgIDs)
	if err != nil {
		return nil, s.storeFailure("resolve last messages", err)
	}

	views := make([]*ConversationView, 0, len(convs))
	for _, conv := range convs {
		view := &ConversationView{
			ID:           conv.ID,
			Name:         conv.Name,
			IsGroup:      conv.IsGroup,
			Participants: []UserBrief{},
			UpdatedAt:    conv.UpdatedAt,
		}

		for _, m := range conv.Members {
			if m.MemberID == userID {
				continue
			}
			if u, ok := users[m.MemberID]; ok {
				view.Participants = append(view.Participants, toUserBrief(u))
			}
		}

		if conv.LastMessageID != nil {
			if msg, ok := lastMsgs[*conv.LastMessageID]; ok {
				view.LastMessage = s.toMessageView(msg, users)
			}
		}

		// 未读标记：存在最新消息且请求者的已读指针落后于它。
		// 雪花ID按生成时间单调递增，ID 比较即时间先后比较
		me := conv.Member(userID)
		if conv.LastMessageID != nil && me != nil &&
			(me.LastSeenMessageID == nil || *me.LastSeenMessageID < *conv.LastMessageID) {
			view.UnreadCount = 1
		}

		views = append(views, view)
	}

	return views, nil
}

// GetMessages 获取会话全部消息并推进请求者的已读指针
// 会话不存在与请求者非成员返回同一个错误，不向非成员泄露会话存在性
func (s *ChatService) GetMessages(ctx context.Context, userID, conversationID int64) ([]*MessageView, error) {
	conv, err := s.convStore.GetWithMembers(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, s.storeFailure("load conversation", err)
	}

	me := conv.Member(userID)
	if me == nil {
		return nil, apperrors.ErrConversationNotFound
	}

	// 已读指针推进到成员校验时观察到的快照，
	// 读取期间并发到达的新消息留待下次拉取标记
	seenSnapshot := conv.LastMessageID

	msgs, err := s.msgStore.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, s.storeFailure("list messages", err)
	}

	senderIDs := make([]int64, 0, len(msgs))
	for _, msg := range msgs {
		senderIDs = append(senderIDs, msg.SenderID)
	}
	senders, err := s.userStore.GetByIDs(ctx, senderIDs)
	if err != nil {
		return nil, s.storeFailure("resolve senders", err)
	}

	views := make([]*MessageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, s.toMessageView(msg, senders))
	}

	if seenSnapshot != nil &&
		(me.LastSeenMessageID == nil || *me.LastSeenMessageID < *seenSnapshot) {
		// 标记已读是尽力而为的副作用，失败只记录日志
		if err := s.convStore.UpdateLastSeen(ctx, conversationID, userID, *seenSnapshot); err != nil {
			s.logger.Warn("failed to advance last seen pointer",
				"conversation_id", conversationID,
				"user_id", userID,
				"error", err,
			)
		}
	}

	return views, nil
}

// SendMessage 发送文本消息
// 消息写入与会话最新消息指针更新在存储层同一事务内完成
func (s *ChatService) SendMessage(ctx context.Context, userID, conversationID int64, content string) (*MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.ErrEmptyMessage
	}

	conv, err := s.convStore.GetWithMembers(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, s.storeFailure("load conversation", err)
	}
	if conv.Member(userID) == nil {
		return nil, apperrors.ErrConversationNotFound
	}

	msg := &model.Message{
		ID:             s.snowflake.Generate().Int64(),
		ConversationID: conversationID,
		SenderID:       userID,
		MsgType:        model.MessageTypeText,
		Content:        []string{content},
	}

	if err := s.msgStore.Append(ctx, msg); err != nil {
		return nil, s.storeFailure("append message", err)
	}

	s.publishMessageCreated(ctx, conv, msg)

	return &MessageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		MsgType:        msg.MsgType,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}, nil
}

// SearchUsers 按姓名或邮箱搜索用户（用于发起新会话）
// 少于两个字符直接返回空结果，避免对存储做全量扫描
func (s *ChatService) SearchUsers(ctx context.Context, userID int64, query string) ([]UserBrief, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minSearchQueryLen {
		return []UserBrief{}, nil
	}

	users, err := s.userStore.Search(ctx, query, userID, searchUserLimit)
	if err != nil {
		return nil, s.storeFailure("search users", err)
	}

	result := make([]UserBrief, 0, len(users))
	for _, u := range users {
		result = append(result, toUserBrief(u))
	}
	return result, nil
}

// publishMessageCreated 发布消息创建事件，失败不影响发送结果
func (s *ChatService) publishMessageCreated(ctx context.Context, conv *model.Conversation, msg *model.Message) {
	if s.notifier == nil {
		return
	}

	memberIDs := make([]int64, 0, len(conv.Members))
	for _, m := range conv.Members {
		memberIDs = append(memberIDs, m.MemberID)
	}

	event := &MessageCreatedEvent{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		MemberIDs:      memberIDs,
	}
	if err := s.notifier.MessageCreated(ctx, event); err != nil {
		s.logger.Warn("failed to publish message created event",
			"conversation_id", conv.ID,
			"message_id", msg.ID,
			"error", err,
		)
	}
}

// storeFailure 记录存储层错误并转换为统一的数据库错误
func (s *ChatService) storeFailure(op string, err error) error {
	s.logger.Error("chat store operation failed", "op", op, "error", err)
	return apperrors.ErrDBError.Wrap(err)
}

// toMessageView 构建消息展示信息
func (s *ChatService) toMessageView(msg *model.Message, users map[int64]*model.User) *MessageView {
	view := &MessageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		MsgType:        msg.MsgType,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
	if u, ok := users[msg.SenderID]; ok {
		brief := toUserBrief(u)
		view.Sender = &brief
	}
	return view
}

// toUserBrief 构建用户展示信息
func toUserBrief(u *model.User) UserBrief {
	return UserBrief{
		ID:     u.ID,
		Name:   u.Name,
		Avatar: u.Avatar,
		Role:   u.Role,
	}
}
