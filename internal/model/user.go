package model

import "time"

// 员工角色
const (
	RoleAdmin       = "admin"       // 管理员
	RoleSales       = "sales"       // 销售
	RoleReservation = "reservation" // 预订
	RoleAgent       = "agent"       // 旅行社代理
)

// 用户状态
const (
	UserStatusNormal   = 0 // 正常
	UserStatusDisabled = 1 // 禁用
)

// ValidRole 校验角色是否合法
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleSales, RoleReservation, RoleAgent:
		return true
	}
	return false
}

// User 用户实体
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Avatar       string    `json:"avatar"`
	Role         string    `json:"role"`
	Status       int       `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
