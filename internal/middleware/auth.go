package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sunrisetour.staff/internal/jwt"
	"sunrisetour.staff/internal/repository"
	apperrors "sunrisetour.staff/pkg/errors"
	"sunrisetour.staff/pkg/response"
)

// TokenAuth 登录态认证中间件
// 先验证 JWT 签名，再核对 Redis 中的登录态（登出即失效），
// 剩余有效期低于阈值时自动续期
func TokenAuth(jwtService *jwt.Service, tokenRepo *repository.TokenRepository, renewThreshold time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c.GetHeader("Authorization"))
		if token == "" {
			response.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateAccessToken(token)
		if err != nil {
			if err == jwt.ErrTokenExpired {
				response.Error(c, apperrors.ErrTokenExpired)
			} else {
				response.Unauthorized(c)
			}
			c.Abort()
			return
		}

		// Redis 中无登录态视为已登出
		userInfo, err := tokenRepo.GetUserInfoByToken(c.Request.Context(), token)
		if err != nil || userInfo == nil {
			response.Unauthorized(c)
			c.Abort()
			return
		}

		// 快过期时自动续期
		if renewThreshold > 0 {
			ttl, err := tokenRepo.GetTokenTTL(c.Request.Context(), token)
			if err == nil && ttl > 0 && ttl < renewThreshold {
				_ = tokenRepo.RefreshTokenExpire(c.Request.Context(), userInfo.UserID, token, jwtService.GetAccessExpire())
			}
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", userInfo.Role)
		c.Set("access_token", token)
		c.Next()
	}
}

// RequireRole 角色校验中间件，需在 TokenAuth 之后使用
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		response.Forbidden(c)
		c.Abort()
	}
}

// extractToken 从 Authorization header 提取 token
func extractToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}

// GetUserID 从 context 获取 user_id
func GetUserID(c *gin.Context) int64 {
	userID, exists := c.Get("user_id")
	if !exists {
		return 0
	}
	return userID.(int64)
}

// GetRole 从 context 获取角色
func GetRole(c *gin.Context) string {
	role, exists := c.Get("role")
	if !exists {
		return ""
	}
	return role.(string)
}

// GetAccessToken 从 context 获取当前请求的 access token
func GetAccessToken(c *gin.Context) string {
	token, exists := c.Get("access_token")
	if !exists {
		return ""
	}
	return token.(string)
}
