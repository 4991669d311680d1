package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "sunrisetour.staff/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    apperrors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
// 所有业务失败统一走 200 + 错误码，由前端根据 code 提示
func Error(c *gin.Context, err error) {
	c.JSON(http.StatusOK, Response{
		Code:    apperrors.GetCode(err),
		Message: apperrors.GetMessage(err),
		Data:    nil,
	})
}

// ErrorWithMsg 自定义错误消息
func ErrorWithMsg(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// Unauthorized 未认证
func Unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, Response{
		Code:    apperrors.CodeTokenInvalid,
		Message: apperrors.ErrTokenInvalid.Message,
		Data:    nil,
	})
}

// Forbidden 无权限
func Forbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, Response{
		Code:    apperrors.CodePermissionDenied,
		Message: apperrors.ErrPermissionDenied.Message,
		Data:    nil,
	})
}

// TooManyRequests 请求过多
func TooManyRequests(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, Response{
		Code:    apperrors.CodeTooManyReqest,
		Message: apperrors.ErrTooManyRequest.Message,
		Data:    nil,
	})
}
