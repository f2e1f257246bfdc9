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

// Package netwatch 周期探测远端健康检查地址，在离线转为在线时发出通知
package netwatch

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"memory-outbox/pkg/log"
)

const defaultInterval = 15 * time.Second

// Options Watcher 配置
type Options struct {
	HealthURL string
	Interval  time.Duration
	// Timeout 单次探测超时；默认取 Interval 与 5s 中较小者
	Timeout time.Duration
	Logger  *log.Logger
}

// Watcher 连通性观察者；OnOnline 回调在 offline→online 时触发（首次探测成功也算一次）
type Watcher struct {
	client   *resty.Client
	url      string
	interval time.Duration
	onOnline func()
	logger   *log.Logger

	mu     sync.Mutex
	online bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New 创建 Watcher
func New(opts Options, onOnline func()) *Watcher {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
		if interval < timeout {
			timeout = interval
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Watcher{
		client:   resty.New().SetTimeout(timeout),
		url:      opts.HealthURL,
		interval: interval,
		onOnline: onOnline,
		logger:   logger,
	}
}

// Online 最近一次探测结果
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Check 立即探测一次并返回是否在线；状态翻转为在线时调用回调
func (w *Watcher) Check(ctx context.Context) bool {
	resp, err := w.client.R().SetContext(ctx).Get(w.url)
	up := err == nil && resp.IsSuccess()

	w.mu.Lock()
	was := w.online
	w.online = up
	w.mu.Unlock()

	switch {
	case up && !was:
		w.logger.Info("远端恢复可达", "url", w.url)
		if w.onOnline != nil {
			w.onOnline()
		}
	case !up && was:
		if err != nil {
			w.logger.Warn("远端不可达", "url", w.url, "error", err)
		} else {
			w.logger.Warn("远端健康检查失败", "url", w.url, "status", resp.StatusCode())
		}
	}
	return up
}

// Start 立即探测一次，之后按 Interval 周期探测；重复调用无效
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)
}

// Stop 停止探测并等待后台循环退出
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Watcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}
