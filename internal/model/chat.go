package model

import (
	"strconv"
	"time"
)

// MessageType 消息类型
// 目前系统只产生文本消息，字段为后续媒体类型预留
const (
	MessageTypeText = "text"
)

// Conversation 会话实体
type Conversation struct {
	ID            int64        `json:"id"`
	Name          *string      `json:"name,omitempty"`      // 群聊显示名，单聊为空
	IsGroup       bool         `json:"isGroup"`             // 单聊会话受成员对唯一约束
	DirectKey     *string      `json:"-"`                   // 单聊成员对归一化键（小ID:大ID）
	LastMessageID *int64       `json:"lastMessageId"`       // 最新消息指针，随每条新消息更新
	Members       []Membership `json:"members,omitempty"`   // 成员列表
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Member 查找指定成员的成员记录，不存在返回 nil
func (c *Conversation) Member(userID int64) *Membership {
	for i := range c.Members {
		if c.Members[i].MemberID == userID {
			return &c.Members[i]
		}
	}
	return nil
}

// Membership 会话成员记录
type Membership struct {
	ConversationID    int64     `json:"conversationId"`
	MemberID          int64     `json:"memberId"`
	LastSeenMessageID *int64    `json:"lastSeenMessageId"` // 该成员最近看到的消息，指向本会话内的消息
	JoinedAt          time.Time `json:"joinedAt"`
}

// Message 消息实体，创建后不可变
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	MsgType        string    `json:"msgType"`
	Content        []string  `json:"content"` // 消息体为字符串序列，当前为单元素
	CreatedAt      time.Time `json:"createdAt"`
}

// BuildDirectKey 构建单聊成员对归一化键
// 两个用户ID按大小排序后拼接，保证无序对唯一
func BuildDirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatInt(a, 10) + ":" + strconv.FormatInt(b, 10)
}
