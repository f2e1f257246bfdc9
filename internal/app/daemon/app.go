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

// Package daemon 本地 outbox 守护进程：HTTP API、后台重放与连通性探测
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"

	"memory-outbox/internal/api/http"
	"memory-outbox/internal/api/http/middleware"
	"memory-outbox/internal/app"
	"memory-outbox/internal/netwatch"
	"memory-outbox/pkg/config"
	"memory-outbox/pkg/log"
	"memory-outbox/pkg/tracing"
	"memory-outbox/pkg/utils"
)

// App 守护进程应用
type App struct {
	boot    *app.Bootstrap
	handler *http.Handler
	router  *http.Router
	watcher *netwatch.Watcher
	hertz   *server.Hertz

	tracerShutdown tracing.ShutdownFunc
	hlogOut        io.Closer
	cancel         context.CancelFunc
}

// NewApp 创建守护进程应用
func NewApp(cfg *config.Config) (*App, error) {
	boot, err := app.NewBootstrap(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	handler := http.NewHandler(boot.Agent, boot.Flusher)
	a := &App{
		boot:    boot,
		handler: handler,
		router:  http.NewRouter(handler, middleware.NewMiddleware(boot.Logger.With("component", "http"))),
	}

	if cfg.NetWatch.Enable {
		a.watcher = netwatch.New(netwatch.Options{
			HealthURL: HealthURL(cfg),
			Interval:  utils.ParseDuration(cfg.NetWatch.Interval, 15*time.Second),
			Logger:    boot.Logger.With("component", "netwatch"),
		}, func() { boot.Flusher.Trigger() })
		handler.SetConnectivity(a.watcher.Online)
	}
	return a, nil
}

// HealthURL 连通性探测地址；未配置时为 <base_url>/health
func HealthURL(cfg *config.Config) string {
	if cfg.NetWatch.HealthURL != "" {
		return cfg.NetWatch.HealthURL
	}
	return strings.TrimRight(cfg.Outbox.BaseURL, "/") + "/health"
}

// Addr 监听地址 host:port
func (a *App) Addr() string {
	cfg := a.boot.Config.API
	return fmt.Sprintf("%s:%d", utils.CoalesceString(cfg.Host, "127.0.0.1"), utils.DefaultInt(cfg.Port, 7070))
}

// Start 启动后台重放与连通性探测；未启用 netwatch 时启动即触发一次重放
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.boot.Flusher.Start(ctx)
	if a.watcher != nil {
		a.watcher.Start(ctx)
		return
	}
	a.boot.Flusher.Trigger()
}

// Run 启动后台任务与 HTTP 服务，阻塞直到服务退出
func (a *App) Run(addr string) error {
	cfg := a.boot.Config
	logger := a.boot.Logger
	logger.Info("outbox 守护进程启动", "addr", addr)

	if err := a.setupHertzLogger(cfg.Log); err != nil {
		return err
	}

	// 可选：启用链路追踪（OpenTelemetry）
	if cfg.Monitoring.Tracing.Enable {
		endpoint := utils.CoalesceString(cfg.Monitoring.Tracing.ExportEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
		if endpoint != "" {
			shutdown, err := tracing.InitTracer(context.Background(), tracing.OTelConfig{
				ServiceName:    utils.CoalesceString(cfg.Monitoring.Tracing.ServiceName, "memory-outbox"),
				ExportEndpoint: endpoint,
				Insecure:       cfg.Monitoring.Tracing.Insecure,
			})
			if err != nil {
				logger.Warn("链路追踪初始化失败", "error", err)
			} else {
				a.tracerShutdown = shutdown
				logger.Info("链路追踪已启用", "endpoint", endpoint)
			}
		}
	}

	a.hertz = a.router.Build(addr)
	a.Start()
	return a.hertz.Run()
}

func (a *App) setupHertzLogger(cfg config.LogConfig) error {
	var output io.Writer = os.Stdout
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		output = f
		a.hlogOut = f
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(cfg.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))
	return nil
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	var first error
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			first = err
		}
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.boot.Flusher.Stop()
	if a.cancel != nil {
		a.cancel()
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.boot.Logger.Warn("关闭链路追踪失败", "error", err)
		}
	}
	if a.hlogOut != nil {
		_ = a.hlogOut.Close()
	}
	if err := a.boot.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
