package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RequestIDHeader: заголовок для сквозного идентификатора запроса.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID проставляет идентификатор запроса: берёт входящий или генерирует uuid.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// AccessLog пишет одну запись на запрос; уровень зависит от кода ответа.
func AccessLog(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		entry := logger.WithFields(log.Fields{
			"request_id": requestIDFrom(c),
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
			"body_size":  c.Writer.Size(),
		})

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("http request")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("http request")
		default:
			entry.Info("http request")
		}
	}
}

// Recovery перехватывает panic в обработчике и отвечает 500 без деталей.
func Recovery(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.WithFields(log.Fields{
					"request_id": requestIDFrom(c),
					"path":       c.Request.URL.Path,
					"panic":      recovered,
				}).Error("panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
					Success:   false,
					Error:     codeInternal,
					Message:   "internal server error",
					Code:      http.StatusInternalServerError,
					RequestID: requestIDFrom(c),
				})
			}
		}()

		c.Next()
	}
}

// RateLimiter держит отдельный token bucket на каждый IP.
type RateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
}

// NewRateLimiter создаёт ограничитель: r запросов в секунду, burst: размер всплеска.
func NewRateLimiter(r float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:  rate.Limit(r),
		burst: burst,
	}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(ip); ok {
		return limiter.(*rate.Limiter)
	}

	limiter, _ := rl.limiters.LoadOrStore(ip, rate.NewLimiter(rl.rate, rl.burst))
	return limiter.(*rate.Limiter)
}

// Allow сообщает, можно ли обслужить ещё один запрос с этого IP.
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.limiter(ip).Allow()
}

// RateLimit отклоняет запросы сверх лимита с кодом 429. nil отключает ограничение.
func RateLimit(limiter *RateLimiter, logger *log.Entry) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			logger.WithFields(log.Fields{
				"request_id": requestIDFrom(c),
				"client_ip":  ip,
			}).Warn("rate limit exceeded")

			c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{
				Success:   false,
				Error:     codeRateLimited,
				Message:   "too many requests, please try again later",
				Code:      http.StatusTooManyRequests,
				RequestID: requestIDFrom(c),
			})
			return
		}

		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	if value, ok := c.Get(requestIDKey); ok {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}
