package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"sunrisetour.staff/pkg/response"
)

// rateLimitPrefix 限流计数器 Key 前缀: staff:ratelimit:{client_ip}:{minute}
const rateLimitPrefix = "staff:ratelimit:"

// RateLimit 基于 Redis 计数器的简单限流，按客户端 IP 每分钟计数
// Redis 异常时放行，限流只是保护措施，不能成为故障点
func RateLimit(rdb *redis.Client, requestsPerMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s%s:%d", rateLimitPrefix, c.ClientIP(), time.Now().Unix()/60)

		count, err := rdb.Incr(c.Request.Context(), key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(c.Request.Context(), key, time.Minute)
		}

		if count > int64(requestsPerMinute) {
			response.TooManyRequests(c)
			c.Abort()
			return
		}

		c.Next()
	}
}
