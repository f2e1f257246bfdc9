package middleware

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"

	"memory-outbox/pkg/log"
)

// HeaderRequestID 请求 ID 头
const HeaderRequestID = "X-Request-ID"

const requestIDKey = "request_id"

// Middleware 中间件管理器
type Middleware struct {
	logger *log.Logger
}

// NewMiddleware 创建新的中间件管理器
func NewMiddleware(logger *log.Logger) *Middleware {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Middleware{logger: logger}
}

// RequestID 透传或生成请求 ID，并写回响应头
func (m *Middleware) RequestID() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		id := string(ctx.Request.Header.Peek(HeaderRequestID))
		if id == "" {
			id = uuid.New().String()
		}
		ctx.Set(requestIDKey, id)
		ctx.Response.Header.Set(HeaderRequestID, id)
		ctx.Next(c)
	}
}

// AccessLog 访问日志
func (m *Middleware) AccessLog() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)

		status := ctx.Response.StatusCode()
		args := []any{
			"method", string(ctx.Method()),
			"path", string(ctx.Request.URI().Path()),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", ctx.GetString(requestIDKey),
		}
		if status >= 500 {
			m.logger.Warn("HTTP 请求失败", args...)
			return
		}
		m.logger.Debug("HTTP 请求", args...)
	}
}
