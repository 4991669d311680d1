package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sunrisetour.staff/internal/model"
	"sunrisetour.staff/internal/repository"
	"sunrisetour.staff/internal/service"
	apperrors "sunrisetour.staff/pkg/errors"
	"sunrisetour.staff/pkg/snowflake"
)

// APIResponse 用于解析响应体
type APIResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ============== 内存版存储实现 ==============

type fakeConvStore struct {
	convs map[int64]*model.Conversation
	byKey map[string]int64
}

func (s *fakeConvStore) Create(_ context.Context, conv *model.Conversation) error {
	if conv.DirectKey != nil {
		if _, ok := s.byKey[*conv.DirectKey]; ok {
			return repository.ErrDirectConversationExists
		}
		s.byKey[*conv.DirectKey] = conv.ID
	}
	conv.CreatedAt = time.Now()
	conv.UpdatedAt = conv.CreatedAt
	s.convs[conv.ID] = conv
	return nil
}

func (s *fakeConvStore) GetDirectByKey(_ context.Context, directKey string) (*model.Conversation, error) {
	id, ok := s.byKey[directKey]
	if !ok {
		return nil, repository.ErrConversationNotFound
	}
	return s.convs[id], nil
}

func (s *fakeConvStore) GetWithMembers(_ context.Context, id int64) (*model.Conversation, error) {
	conv, ok := s.convs[id]
	if !ok {
		return nil, repository.ErrConversationNotFound
	}
	return conv, nil
}

func (s *fakeConvStore) ListByMember(_ context.Context, userID int64) ([]*model.Conversation, error) {
	var result []*model.Conversation
	for _, conv := range s.convs {
		if conv.Member(userID) != nil {
			result = append(result, conv)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return result, nil
}

func (s *fakeConvStore) UpdateLastSeen(_ context.Context, conversationID, memberID, lastSeenMessageID int64) error {
	conv, ok := s.convs[conversationID]
	if !ok {
		return repository.ErrConversationNotFound
	}
	m := conv.Member(memberID)
	if m == nil {
		return repository.ErrConversationNotFound
	}
	seen := lastSeenMessageID
	m.LastSeenMessageID = &seen
	return nil
}

type fakeMsgStore struct {
	byConv map[int64][]*model.Message
	convs  *fakeConvStore
}

func (s *fakeMsgStore) Append(_ context.Context, msg *model.Message) error {
	conv, ok := s.convs.convs[msg.ConversationID]
	if !ok {
		return repository.ErrConversationNotFound
	}
	msg.CreatedAt = time.Now()
	s.byConv[msg.ConversationID] = append(s.byConv[msg.ConversationID], msg)
	id := msg.ID
	conv.LastMessageID = &id
	conv.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *fakeMsgStore) ListByConversation(_ context.Context, conversationID int64) ([]*model.Message, error) {
	return s.byConv[conversationID], nil
}

func (s *fakeMsgStore) GetByIDs(_ context.Context, ids []int64) (map[int64]*model.Message, error) {
	result := make(map[int64]*model.Message)
	for _, msgs := range s.byConv {
		for _, msg := range msgs {
			for _, id := range ids {
				if msg.ID == id {
					result[id] = msg
				}
			}
		}
	}
	return result, nil
}

type fakeUserStore struct {
	users map[int64]*model.User
}

func (s *fakeUserStore) GetByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (s *fakeUserStore) GetByIDs(_ context.Context, ids []int64) (map[int64]*model.User, error) {
	result := make(map[int64]*model.User)
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			result[id] = u
		}
	}
	return result, nil
}

func (s *fakeUserStore) Search(_ context.Context, keyword string, excludeID int64, limit int) ([]*model.User, error) {
	keyword = strings.ToLower(keyword)
	var result []*model.User
	for _, u := range s.users {
		if u.ID == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(u.Name), keyword) {
			result = append(result, u)
		}
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ============== 测试路由 ==============

// testAuth 测试用认证中间件，从请求头读取用户身份
func testAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

func setupChatRouter(t *testing.T, users ...*model.User) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sf, err := snowflake.NewNode(1)
	require.NoError(t, err)

	convStore := &fakeConvStore{
		convs: make(map[int64]*model.Conversation),
		byKey: make(map[string]int64),
	}
	msgStore := &fakeMsgStore{
		byConv: make(map[int64][]*model.Message),
		convs:  convStore,
	}
	userStore := &fakeUserStore{users: make(map[int64]*model.User)}
	for _, u := range users {
		userStore.users[u.ID] = u
	}

	chatService := service.NewChatService(convStore, msgStore, userStore, nil, sf)
	h := NewChatHandler(chatService)

	r := gin.New()
	r.Use(testAuth())
	r.GET("/conversations", h.ListConversations)
	r.POST("/conversations", h.CreateConversation)
	r.GET("/conversations/:id/messages", h.GetMessages)
	r.POST("/conversations/:id/messages", h.SendMessage)
	r.GET("/user/search", h.SearchUsers)
	return r
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, userID int64, body string) APIResponse {
	t.Helper()

	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}

	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func staffUser(id int64, name string) *model.User {
	return &model.User{
		ID:    id,
		Name:  name,
		Email: strings.ToLower(name) + "@example.com",
		Role:  model.RoleAgent,
	}
}

// ============== 测试用例 ==============

func TestChatHandler_CreateConversation(t *testing.T) {
	router := setupChatRouter(t, staffUser(1, "Alice"), staffUser(2, "Bob"))

	resp := doRequest(t, router, http.MethodPost, "/conversations", 1, `{"peer_id": 2}`)
	assert.Equal(t, apperrors.CodeSuccess, resp.Code)

	var result service.CreateConversationResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.True(t, result.IsNew)
	assert.NotZero(t, result.ConversationID)

	// 重复创建返回同一个会话
	resp = doRequest(t, router, http.MethodPost, "/conversations", 1, `{"peer_id": 2}`)
	assert.Equal(t, apperrors.CodeSuccess, resp.Code)

	var again service.CreateConversationResult
	require.NoError(t, json.Unmarshal(resp.Data, &again))
	assert.False(t, again.IsNew)
	assert.Equal(t, result.ConversationID, again.ConversationID)
}

func TestChatHandler_CreateConversation_InvalidParams(t *testing.T) {
	router := setupChatRouter(t, staffUser(1, "Alice"))

	testCases := []struct {
		name string
		body string
	}{
		{"缺少对方ID", `{}`},
		{"无效的JSON", `{invalid}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, router, http.MethodPost, "/conversations", 1, tc.body)
			assert.Equal(t, apperrors.CodeInvalidParams, resp.Code)
		})
	}
}

func TestChatHandler_CreateConversation_Errors(t *testing.T) {
	router := setupChatRouter(t, staffUser(1, "Alice"), staffUser(2, "Bob"))

	// 对方不存在
	resp := doRequest(t, router, http.MethodPost, "/conversations", 1, `{"peer_id": 999}`)
	assert.Equal(t, apperrors.CodeUserNotFound, resp.Code)

	// 不能与自己建会话
	resp = doRequest(t, router, http.MethodPost, "/conversations", 1, `{"peer_id": 1}`)
	assert.Equal(t, apperrors.CodeCannotChatSelf, resp.Code)
}

func TestChatHandler_SendAndGetMessages(t *testing.T) {
	router := setupChatRouter(t, staffUser(1, "Alice"), staffUser(2, "Bob"))

	resp := doRequest(t, router, http.MethodPost, "/conversations", 1, `{"peer_id": 2}`)
	var created service.CreateConversationResult
	require.NoError(t, json.Unmarshal(resp.Data, &created))

	convPath := fmt.Sprintf("/conversations/%d/messages", created.ConversationID)

	resp = doRequest(t, router, http.MethodPost, convPath, 1, `{"content": "hello"}`)
	assert.Equal(t, apperrors.CodeSuccess, resp.Code)

	var sendData struct {
		Message *service.MessageView `json:"message"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &sendData))
	require.NotNil(t, sendData.Message)
	assert.Equal(t, []string{"hello"}, sendData.Message.Content)
	assert.Equal(t, int64(1), sendData.Message.SenderID)

	// 对方拉取消息
	resp = doRequest(t, router, http.MethodGet, convPath, 2, "")
	assert.Equal(t, apperrors.CodeSuccess, resp.Code)

	var getData struct {
		Messages []*service.MessageView `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &getData))
	require.Len(t, getData.Messages, 1)
	assert.Equal(t, sendData.Message.ID, getData.Messages[0].ID)
	require.NotNil(t, getData.Messages[0].Sender)
	assert.Equal(t, "Alice", getData.Messages[0].Sender.Name)
}

func TestChatHandler_GetMessages_NotMember(t *testing.T) {
	router := setupChatRouter(t, staffUser(1, "Alice"), staffUser(2, "Bob"), staffUser(3, "Eve"))

	resp := doRequest(t, router, http.MethodPost, "/conversations", 1, `{"peer_id": 2}`)
	var created service.CreateConversationResult
	require.NoError(t, json.Unmarshal(resp.Data, &created))

	convPath := fmt.Sprintf("/conversations/%d/messages", created.ConversationID)

	// 非成员与会话不存在返回同一个错误码
	resp = doRequest(t, router, http.MethodGet, convPath, 3, "")
	assert.Equal(t, apperrors.CodeConversationNotFound, resp.Code)

	resp = doRequest(t, router, http.MethodGet, "/conversations/424242/messages", 1, "")
	assert.Equal(t, apperrors.CodeConversationNotFound, resp.Code)
}

func TestChatHandler_GetMessages_InvalidID(t *testing.T) {
	router := setupChatRouter(t, staffUser(1, "Alice"))

	resp := doRequest(t, router, http.MethodGet, "/conversations/abc/messages", 1, "")
	assert.Equal(t, apperrors.CodeInvalidParams, resp.Code)
}

func TestChatHandler_SendMessage_Empty(t *testing.T) {
	router := setupChatRouter(t, staffUser(1, "Alice"), staffUser(2, "Bob"))

	resp := doRequest(t, router, http.MethodPost, "/conversations", 1, `{"peer_id": 2}`)
	var created service.CreateConversationResult
	require.NoError(t, json.Unmarshal(resp.Data, &created))

	convPath := fmt.Sprintf("/conversations/%d/messages", created.ConversationID)

	// 缺少 content 字段由参数绑定拦截
	resp = doRequest(t, router, http.MethodPost, convPath, 1, `{}`)
	assert.Equal(t, apperrors.CodeInvalidParams, resp.Code)

	// 纯空白内容由业务校验拦截
	resp = doRequest(t, router, http.MethodPost, convPath, 1, `{"content": "   "}`)
	assert.Equal(t, apperrors.CodeEmptyMessage, resp.Code)
}

func TestChatHandler_ListConversations(t *testing.T) {
	router := setupChatRouter(t, staffUser(1, "Alice"), staffUser(2, "Bob"))

	resp := doRequest(t, router, http.MethodPost, "/conversations", 1, `{"peer_id": 2}`)
	var created service.CreateConversationResult
	require.NoError(t, json.Unmarshal(resp.Data, &created))

	convPath := fmt.Sprintf("/conversations/%d/messages", created.ConversationID)
	doRequest(t, router, http.MethodPost, convPath, 1, `{"content": "hello"}`)

	resp = doRequest(t, router, http.MethodGet, "/conversations", 2, "")
	assert.Equal(t, apperrors.CodeSuccess, resp.Code)

	var listData struct {
		Conversations []*service.ConversationView `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &listData))
	require.Len(t, listData.Conversations, 1)

	view := listData.Conversations[0]
	assert.Equal(t, created.ConversationID, view.ID)
	assert.Equal(t, 1, view.UnreadCount)
	require.Len(t, view.Participants, 1)
	assert.Equal(t, "Alice", view.Participants[0].Name)
	require.NotNil(t, view.LastMessage)
	assert.Equal(t, []string{"hello"}, view.LastMessage.Content)
}

func TestChatHandler_SearchUsers(t *testing.T) {
	router := setupChatRouter(t, staffUser(1, "Alice"), staffUser(2, "Albert"), staffUser(3, "Bob"))

	resp := doRequest(t, router, http.MethodGet, "/user/search?q=al", 1, "")
	assert.Equal(t, apperrors.CodeSuccess, resp.Code)

	var searchData struct {
		Users []service.UserBrief `json:"users"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &searchData))
	require.Len(t, searchData.Users, 1)
	assert.Equal(t, int64(2), searchData.Users[0].ID)

	// 单字符不触发搜索
	resp = doRequest(t, router, http.MethodGet, "/user/search?q=a", 1, "")
	assert.Equal(t, apperrors.CodeSuccess, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &searchData))
	assert.Empty(t, searchData.Users)
}
