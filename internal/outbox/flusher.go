package outbox

import (
	"context"
	"sync"
	"time"

	"memory-outbox/pkg/log"
)

// FlushRunner 执行一次完整的队列重放
type FlushRunner interface {
	Flush(ctx context.Context) (int, error)
}

// FlushStatus 最近一次后台重放的结果
type FlushStatus struct {
	Runs          int64     `json:"runs"`
	Running       bool      `json:"running"`
	LastRunAt     time.Time `json:"lastRunAt"`
	LastDelivered int       `json:"lastDelivered"`
	LastError     string    `json:"lastError,omitempty"`
}

// Flusher 联网信号的处理者：在后台 goroutine 中执行 Flush。
// 同一时间最多一个执行中加一个待执行，多余的 Trigger 被合并。
type Flusher struct {
	runner  FlushRunner
	logger  *log.Logger
	trigger chan struct{}

	mu     sync.Mutex
	status FlushStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFlusher 创建 Flusher；需 Start 后 Trigger 才会生效
func NewFlusher(runner FlushRunner, logger *log.Logger) *Flusher {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Flusher{
		runner:  runner,
		logger:  logger,
		trigger: make(chan struct{}, 1),
	}
}

// Trigger 请求一次重放，从不阻塞。已有待执行请求时返回 false
func (f *Flusher) Trigger() bool {
	select {
	case f.trigger <- struct{}{}:
		return true
	default:
		f.logger.Debug("已有待执行的重放，合并本次触发")
		return false
	}
}

// Start 启动后台循环；重复调用无效
func (f *Flusher) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done != nil {
		return
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	go f.loop(ctx, f.done)
}

// Stop 取消执行中的重放并等待后台循环退出
func (f *Flusher) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Status 返回最近一次重放的快照
func (f *Flusher) Status() FlushStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Flusher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.trigger:
			f.run(ctx)
		}
	}
}

func (f *Flusher) run(ctx context.Context) {
	f.mu.Lock()
	f.status.Running = true
	f.mu.Unlock()

	n, err := f.runner.Flush(ctx)

	f.mu.Lock()
	f.status.Running = false
	f.status.Runs++
	f.status.LastRunAt = time.Now()
	f.status.LastDelivered = n
	f.status.LastError = ""
	if err != nil {
		f.status.LastError = err.Error()
	}
	f.mu.Unlock()

	if err != nil {
		f.logger.Warn("后台重放失败", "error", err)
		return
	}
	f.logger.Info("后台重放完成", "delivered", n)
}
