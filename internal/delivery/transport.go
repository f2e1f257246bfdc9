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

package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"memory-outbox/internal/memory"
	pkgerrors "memory-outbox/pkg/errors"
	"memory-outbox/pkg/log"
)

// Transport 把一条 memory 投递到远端；任何失败均为 ErrTransportFailure
type Transport interface {
	Deliver(ctx context.Context, item memory.Item) (*memory.Stored, error)
}

// BreakerConfig 熔断配置；零值表示不启用
type BreakerConfig struct {
	Enable           bool
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// Options HTTPTransport 选项
type Options struct {
	BaseURL string
	Timeout time.Duration
	Breaker BreakerConfig
	Logger  *log.Logger
}

// HTTPTransport POST <base-url>/memory/，2xx 视为成功
type HTTPTransport struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	logger  *log.Logger
}

// NewHTTPTransport 创建 HTTP 投递
func NewHTTPTransport(opts Options) *HTTPTransport {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	t := &HTTPTransport{
		client: resty.New().
			SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		logger: logger,
	}
	if opts.Breaker.Enable {
		t.breaker = newBreaker(opts.Breaker, logger)
	}
	return t
}

func newBreaker(cfg BreakerConfig, logger *log.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "memory-delivery",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("投递熔断状态变化", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Deliver 实现 Transport
func (t *HTTPTransport) Deliver(ctx context.Context, item memory.Item) (*memory.Stored, error) {
	if t.breaker == nil {
		return t.post(ctx, item)
	}
	out, err := t.breaker.Execute(func() (interface{}, error) {
		return t.post(ctx, item)
	})
	if err != nil {
		return nil, pkgerrors.Mark(pkgerrors.ErrTransportFailure, err)
	}
	return out.(*memory.Stored), nil
}

func (t *HTTPTransport) post(ctx context.Context, item memory.Item) (*memory.Stored, error) {
	requestID := uuid.New().String()
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID).
		SetBody(item).
		Post("/memory/")
	if err != nil {
		return nil, pkgerrors.Mark(pkgerrors.ErrTransportFailure, pkgerrors.Wrapf(err, "POST /memory/ request_id=%s", requestID))
	}
	if !resp.IsSuccess() {
		return nil, pkgerrors.Mark(pkgerrors.ErrTransportFailure,
			fmt.Errorf("POST /memory/ request_id=%s: status %d: %s", requestID, resp.StatusCode(), truncate(resp.String(), 256)))
	}

	stored := &memory.Stored{}
	if body := resp.Body(); len(body) > 0 {
		// 响应体仅用于回显，解析失败不影响投递结果
		if err := json.Unmarshal(body, stored); err != nil {
			t.logger.Debug("无法解析 memory 响应", "request_id", requestID, "error", err)
		}
	}
	return stored, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
