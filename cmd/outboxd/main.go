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

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"memory-outbox/internal/app/daemon"
	"memory-outbox/pkg/config"
)

func main() {
	// 加载配置（configs/outbox.yaml，可用 MEMQ_CONFIG 指定路径，环境变量覆盖，如 OUTBOX_BASE_URL）
	cfg, err := config.LoadOutboxConfig()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	app, err := daemon.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}

	go func() {
		if err := app.Run(app.Addr()); err != nil {
			log.Printf("HTTP 服务退出: %v", err)
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		log.Printf("关闭应用失败: %v", err)
	}

	fmt.Println("outboxd 已关闭")
}
