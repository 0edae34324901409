package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// tokenBucketScript refills a bucket by elapsed time and takes ARGV[4] tokens
// from it. Returns {allowed, remaining, retry_after_seconds}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'updated_at')
local tokens = tonumber(bucket[1])
local updated_at = tonumber(bucket[2])

if tokens == nil or updated_at == nil then
    tokens = capacity
    updated_at = now
end

local elapsed = math.max(0, now - updated_at)
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
local retry_after = 0

if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
else
    retry_after = (requested - tokens) / rate
end

redis.call('HMSET', key, 'tokens', tokens, 'updated_at', now)
redis.call('EXPIRE', key, 86400)

return {allowed, math.floor(tokens), math.ceil(retry_after)}
`)

// RateLimit 令牌桶限流，容量为2*qps，按qps个/秒补充。
// Authenticated requests are limited per user, the rest per client IP.
func RateLimit(client *redis.Client, prefix string, qps int, logger *zap.Logger) gin.HandlerFunc {
	if qps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	capacity := 2 * qps
	rate := float64(qps)

	return func(c *gin.Context) {
		subject := UserID(c)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}
		key := prefix + "rate_limit:" + subject
		now := float64(time.Now().UnixNano()) / 1e9

		result, err := tokenBucketScript.Run(c.Request.Context(), client, []string{key},
			capacity, rate, now, 1).Result()
		if err != nil {
			// Fail-Open: Redis挂了不能影响业务
			logger.Warn("rate limiter unavailable, request allowed", zap.Error(err))
			c.Next()
			return
		}

		allowed := int64(0)
		remaining := capacity
		retryAfter := 0
		if arr, ok := result.([]interface{}); ok && len(arr) >= 3 {
			if v, ok := arr[0].(int64); ok {
				allowed = v
			}
			if v, ok := arr[1].(int64); ok {
				remaining = int(v)
			}
			if v, ok := arr[2].(int64); ok {
				retryAfter = int(v)
			}
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(capacity))
		if allowed == 0 {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"msg": "请求过于频繁，请稍后再试"})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}
