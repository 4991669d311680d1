package model

import "time"

// 工单状态
const (
	TicketStatusPending    = "pending"     // 待审批
	TicketStatusApproved   = "approved"    // 已批准
	TicketStatusRejected   = "rejected"    // 已驳回
	TicketStatusInProgress = "in_progress" // 处理中
	TicketStatusCompleted  = "completed"   // 已完成
)

// 工单优先级
const (
	TicketPriorityLow    = "low"
	TicketPriorityNormal = "normal"
	TicketPriorityHigh   = "high"
)

// ticketTransitions 合法的状态流转
var ticketTransitions = map[string][]string{
	TicketStatusPending:    {TicketStatusApproved, TicketStatusRejected},
	TicketStatusApproved:   {TicketStatusInProgress},
	TicketStatusInProgress: {TicketStatusCompleted},
}

// CanTransition 判断工单状态流转是否合法
func CanTransition(from, to string) bool {
	for _, next := range ticketTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidPriority 校验优先级是否合法
func ValidPriority(p string) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityNormal, TicketPriorityHigh:
		return true
	}
	return false
}

// Ticket 工单实体
type Ticket struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	CreatorID   int64     `json:"creatorId"`
	AssigneeID  *int64    `json:"assigneeId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
