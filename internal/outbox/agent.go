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

package outbox

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"memory-outbox/internal/delivery"
	"memory-outbox/internal/memory"
	"memory-outbox/internal/queue"
	pkgerrors "memory-outbox/pkg/errors"
	"memory-outbox/pkg/log"
	"memory-outbox/pkg/metrics"
	"memory-outbox/pkg/tracing"
)

// Status Send 的结果
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusQueued    Status = "queued"
)

// SendResult Send 返回值；Memory 仅在直接投递成功时非空
type SendResult struct {
	Status  Status         `json:"status"`
	Version int64          `json:"version"`
	Memory  *memory.Stored `json:"memory,omitempty"`
}

// AgentOptions Agent 依赖
type AgentOptions struct {
	Transport delivery.Transport
	Codec     *Codec
	Queue     *queue.Store
	Versions  *VersionCounter
	// FlushRPS 重放投递的速率上限，<=0 表示不限速
	FlushRPS float64
	Logger   *log.Logger
}

// Agent 对外的投递入口：优先直接投递，失败后加密入队，联网后由 Flush 重放。
// 同一安装只应有一个 Agent。
type Agent struct {
	transport delivery.Transport
	codec     *Codec
	queue     *queue.Store
	versions  *VersionCounter
	limiter   *rate.Limiter
	logger    *log.Logger

	flushMu sync.Mutex
}

// NewAgent 创建 Agent
func NewAgent(opts AgentOptions) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	a := &Agent{
		transport: opts.Transport,
		codec:     opts.Codec,
		queue:     opts.Queue,
		versions:  opts.Versions,
		logger:    logger,
	}
	if opts.FlushRPS > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(opts.FlushRPS), 1)
	}
	return a
}

// Send 分配版本号后尝试直接投递；传输失败时加密入队并返回 StatusQueued。
// 只有校验失败、ErrKeyUnavailable 与 ErrStoreFailure 会返回错误。
func (a *Agent) Send(ctx context.Context, item memory.Item) (res SendResult, err error) {
	ctx, span := tracing.StartSendSpan(ctx, item.Type)
	defer func() {
		status := string(res.Status)
		if err != nil {
			status = "error"
		}
		metrics.SendTotal.WithLabelValues(status).Inc()
		tracing.EndSpan(span, err,
			attribute.String("outbox.status", status),
			attribute.Int64("memory.version", res.Version))
	}()

	if err := item.Validate(); err != nil {
		return SendResult{}, err
	}

	version, err := a.versions.Next(ctx)
	if err != nil {
		return SendResult{}, err
	}
	item.Version = version

	stored, err := a.transport.Deliver(ctx, item)
	if err == nil {
		a.logger.Debug("memory 已直接投递", "version", version, "type", item.Type)
		return SendResult{Status: StatusDelivered, Version: version, Memory: stored}, nil
	}
	if !pkgerrors.Is(err, pkgerrors.ErrTransportFailure) {
		return SendResult{}, err
	}

	a.logger.Info("投递失败，转入离线队列", "version", version, "error", err)
	if err := a.enqueue(ctx, item); err != nil {
		return SendResult{}, err
	}
	return SendResult{Status: StatusQueued, Version: version}, nil
}

func (a *Agent) enqueue(ctx context.Context, item memory.Item) error {
	plaintext, err := json.Marshal(item)
	if err != nil {
		return pkgerrors.Wrap(err, "marshal memory")
	}
	rec, err := a.codec.Encode(ctx, plaintext)
	if err != nil {
		return err
	}
	if err := a.queue.Append(ctx, rec); err != nil {
		return err
	}
	a.refreshDepth(ctx)
	return nil
}

// Flush 按入队顺序重放全部队列记录，返回本次成功投递的条数。
// 无法解密的记录被丢弃；投递失败的记录保留原有顺序；执行期间新入队的记录追加在保留记录之后。
// 读取快照失败、密钥不可用或 ctx 取消时放弃本次执行，队列保持不变。
func (a *Agent) Flush(ctx context.Context) (delivered int, err error) {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	start := time.Now()
	var dropped, retainedCount int
	ctx, span := tracing.StartFlushSpan(ctx)
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			delivered = 0
		}
		metrics.FlushRuns.WithLabelValues(result).Inc()
		metrics.FlushDuration.Observe(time.Since(start).Seconds())
		tracing.EndSpan(span, err,
			attribute.Int("outbox.delivered", delivered),
			attribute.Int("outbox.dropped", dropped),
			attribute.Int("outbox.retained", retainedCount))
	}()

	snapshot, err := a.queue.ReadAll(ctx)
	if err != nil {
		return 0, err
	}
	if len(snapshot) == 0 {
		return 0, nil
	}

	retained := make([]queue.Record, 0, len(snapshot))
	for i, rec := range snapshot {
		if err := ctx.Err(); err != nil {
			return 0, pkgerrors.Wrap(err, "flush cancelled")
		}

		plaintext, err := a.codec.Decode(ctx, rec)
		if err != nil {
			if pkgerrors.Is(err, pkgerrors.ErrDecryptFailure) {
				a.logger.Warn("丢弃无法解密的队列记录", "index", i, "enqueued_at", rec.EnqueuedAt, "error", err)
				dropped++
				continue
			}
			return 0, err
		}

		var item memory.Item
		if err := json.Unmarshal(plaintext, &item); err != nil {
			a.logger.Warn("丢弃无法解析的队列记录", "index", i, "enqueued_at", rec.EnqueuedAt, "error", err)
			dropped++
			continue
		}

		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return 0, pkgerrors.Wrap(err, "flush cancelled")
			}
		}

		if _, err := a.transport.Deliver(ctx, item); err != nil {
			a.logger.Debug("重放失败，保留记录", "index", i, "version", item.Version, "error", err)
			retained = append(retained, rec)
			continue
		}
		delivered++
	}

	if err := ctx.Err(); err != nil {
		return 0, pkgerrors.Wrap(err, "flush cancelled")
	}

	depth := 0
	err = a.queue.Update(ctx, func(current []queue.Record) ([]queue.Record, error) {
		next := make([]queue.Record, 0, len(retained)+len(current))
		next = append(next, retained...)
		if len(current) > len(snapshot) {
			next = append(next, current[len(snapshot):]...)
		}
		depth = len(next)
		return next, nil
	})
	if err != nil {
		return 0, err
	}

	retainedCount = len(retained)
	metrics.FlushDeliveredTotal.Add(float64(delivered))
	metrics.FlushDroppedTotal.Add(float64(dropped))
	metrics.FlushRetainedTotal.Add(float64(retainedCount))
	metrics.QueueDepth.Set(float64(depth))

	a.logger.Info("离线队列重放完成",
		"delivered", delivered, "dropped", dropped, "retained", retainedCount, "queued", depth)
	return delivered, nil
}

// Pending 当前队列中的记录数
func (a *Agent) Pending(ctx context.Context) (int, error) {
	n, err := a.queue.Len(ctx)
	if err != nil {
		return 0, err
	}
	metrics.QueueDepth.Set(float64(n))
	return n, nil
}

func (a *Agent) refreshDepth(ctx context.Context) {
	if n, err := a.queue.Len(ctx); err == nil {
		metrics.QueueDepth.Set(float64(n))
	}
}
