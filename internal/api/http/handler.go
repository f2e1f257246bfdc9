// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"bytes"
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"memory-outbox/internal/memory"
	"memory-outbox/internal/outbox"
	pkgerrors "memory-outbox/pkg/errors"
	"memory-outbox/pkg/metrics"
)

// Outbox 守护进程依赖的投递入口，由 *outbox.Agent 实现
type Outbox interface {
	Send(ctx context.Context, item memory.Item) (outbox.SendResult, error)
	Flush(ctx context.Context) (int, error)
	Pending(ctx context.Context) (int, error)
}

// Reconnector 联网信号入口，由 *outbox.Flusher 实现
type Reconnector interface {
	Trigger() bool
	Status() outbox.FlushStatus
}

// Handler HTTP 处理器
type Handler struct {
	outbox    Outbox
	flusher   Reconnector
	online    func() bool
	startedAt time.Time
}

// NewHandler 创建新的 HTTP 处理器；flusher 为 nil 时 reconnect 直接同步 Flush
func NewHandler(ob Outbox, flusher Reconnector) *Handler {
	return &Handler{outbox: ob, flusher: flusher, startedAt: time.Now()}
}

// SetConnectivity 注入连通性查询（netwatch），用于 status 输出
func (h *Handler) SetConnectivity(online func() bool) {
	h.online = online
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "memory-outbox",
	})
}

// SendMemory 提交一条 memory：在线直接投递，否则加密入队
// POST /api/memory
func (h *Handler) SendMemory(c context.Context, ctx *app.RequestContext) {
	var item memory.Item
	if err := ctx.BindJSON(&item); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := h.outbox.Send(c, item)
	if err != nil {
		h.writeError(c, ctx, "send", err)
		return
	}
	ctx.JSON(consts.StatusOK, res)
}

// FlushOutbox 同步重放离线队列
// POST /api/outbox/flush
func (h *Handler) FlushOutbox(c context.Context, ctx *app.RequestContext) {
	n, err := h.outbox.Flush(c)
	if err != nil {
		h.writeError(c, ctx, "flush", err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]int{"delivered": n})
}

// Reconnect 联网信号：触发后台重放并立即返回
// POST /api/outbox/reconnect
func (h *Handler) Reconnect(c context.Context, ctx *app.RequestContext) {
	if h.flusher == nil {
		h.FlushOutbox(c, ctx)
		return
	}
	scheduled := h.flusher.Trigger()
	ctx.JSON(consts.StatusAccepted, map[string]bool{
		"scheduled": scheduled,
		"coalesced": !scheduled,
	})
}

// OutboxStatus 队列长度与最近一次后台重放结果
// GET /api/outbox/status
func (h *Handler) OutboxStatus(c context.Context, ctx *app.RequestContext) {
	n, err := h.outbox.Pending(c)
	if err != nil {
		h.writeError(c, ctx, "status", err)
		return
	}
	resp := map[string]interface{}{
		"queued":    n,
		"uptimeSec": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.flusher != nil {
		resp["flusher"] = h.flusher.Status()
	}
	if h.online != nil {
		resp["online"] = h.online()
	}
	ctx.JSON(consts.StatusOK, resp)
}

// Metrics Prometheus 文本格式指标
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		hlog.CtxErrorf(c, "write metrics: %v", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

func (h *Handler) writeError(c context.Context, ctx *app.RequestContext, op string, err error) {
	status, kind := classify(err)
	if status >= consts.StatusInternalServerError {
		hlog.CtxErrorf(c, "%s failed: %v", op, err)
	}
	ctx.JSON(status, map[string]string{"error": err.Error(), "kind": kind})
}

func classify(err error) (int, string) {
	switch {
	case pkgerrors.Is(err, pkgerrors.ErrInvalidArg):
		return consts.StatusBadRequest, "invalid_argument"
	case pkgerrors.Is(err, pkgerrors.ErrKeyUnavailable):
		return consts.StatusServiceUnavailable, "key_unavailable"
	case pkgerrors.Is(err, pkgerrors.ErrStoreFailure):
		return consts.StatusInternalServerError, "store_failure"
	case pkgerrors.Is(err, context.Canceled), pkgerrors.Is(err, context.DeadlineExceeded):
		return consts.StatusServiceUnavailable, "cancelled"
	default:
		return consts.StatusInternalServerError, "internal"
	}
}
