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

package app

import (
	"context"
	"fmt"
	"time"

	"memory-outbox/internal/delivery"
	"memory-outbox/internal/outbox"
	"memory-outbox/internal/queue"
	"memory-outbox/internal/storage/slot"
	"memory-outbox/pkg/aead"
	"memory-outbox/pkg/config"
	"memory-outbox/pkg/log"
	"memory-outbox/pkg/secrets"
	"memory-outbox/pkg/utils"
)

// 槽名，统一加 outbox.slot_prefix 前缀
const (
	KeySlot     = "key-slot"
	QueueSlot   = "queue-slot"
	VersionSlot = "version-slot"
)

// Bootstrap 统一初始化：供守护进程与测试复用，避免在 cmd 内拼装依赖
type Bootstrap struct {
	Config   *config.Config
	Logger   *log.Logger
	Slots    slot.Store
	KeySlots slot.Store // secrets.provider=slot 时与 Slots 相同
	Agent    *outbox.Agent
	Flusher  *outbox.Flusher
}

// NewBootstrap 根据配置创建 Bootstrap（Logger/Slots/KeyManager/Agent/Flusher）
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config 不能为空")
	}
	if cfg.Secrets.Provider == "memory" && cfg.Storage.Slot.Type != "memory" {
		return nil, fmt.Errorf("内存密钥存储不能搭配持久化槽 %q", cfg.Storage.Slot.Type)
	}
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	slots, err := slot.NewStore(ctx, cfg.Storage.Slot)
	if err != nil {
		return nil, fmt.Errorf("初始化持久化槽失败: %w", err)
	}

	keySlots := slots
	if p := cfg.Secrets.Provider; p != "" && p != "slot" {
		store, err := secrets.NewStore(secrets.Config{
			Provider: p,
			Vault: secrets.VaultConfig{
				Address:    cfg.Secrets.Vault.Address,
				Token:      cfg.Secrets.Vault.Token,
				PathPrefix: cfg.Secrets.Vault.PathPrefix,
			},
		})
		if err != nil {
			_ = slots.Close()
			return nil, fmt.Errorf("初始化密钥存储失败: %w", err)
		}
		keySlots = slot.NewSecretStore(store)
	}

	cipher, err := aead.New(cfg.Outbox.Cipher)
	if err != nil {
		_ = slots.Close()
		return nil, err
	}

	prefix := cfg.Outbox.SlotPrefix
	br := cfg.Outbox.Breaker
	transport := delivery.NewHTTPTransport(delivery.Options{
		BaseURL: cfg.Outbox.BaseURL,
		Timeout: utils.ParseDuration(cfg.Outbox.RequestTimeout, 10*time.Second),
		Breaker: delivery.BreakerConfig{
			Enable:           br.Enable,
			MaxRequests:      br.MaxRequests,
			Interval:         utils.ParseDuration(br.Interval, 30*time.Second),
			Timeout:          utils.ParseDuration(br.Timeout, 60*time.Second),
			FailureThreshold: br.FailureThreshold,
			MinRequests:      br.MinRequests,
		},
		Logger: logger.With("component", "delivery"),
	})

	agent := outbox.NewAgent(outbox.AgentOptions{
		Transport: transport,
		Codec:     outbox.NewCodec(outbox.NewKeyManager(keySlots, prefix+KeySlot), cipher),
		Queue:     queue.New(slots, prefix+QueueSlot),
		Versions:  outbox.NewVersionCounter(slots, prefix+VersionSlot),
		FlushRPS:  cfg.Outbox.FlushRPS,
		Logger:    logger.With("component", "outbox"),
	})

	logger.Info("outbox 初始化完成",
		"base_url", cfg.Outbox.BaseURL,
		"slot_type", utils.CoalesceString(cfg.Storage.Slot.Type, "file"),
		"secrets", utils.CoalesceString(cfg.Secrets.Provider, "slot"),
		"cipher", cipher.Name())

	return &Bootstrap{
		Config:   cfg,
		Logger:   logger,
		Slots:    slots,
		KeySlots: keySlots,
		Agent:    agent,
		Flusher:  outbox.NewFlusher(agent, logger.With("component", "flusher")),
	}, nil
}

// Close 释放槽连接与日志文件
func (b *Bootstrap) Close() error {
	var first error
	if b.KeySlots != nil && b.KeySlots != b.Slots {
		if err := b.KeySlots.Close(); err != nil {
			first = err
		}
	}
	if b.Slots != nil {
		if err := b.Slots.Close(); err != nil && first == nil {
			first = err
		}
	}
	if b.Logger != nil {
		if err := b.Logger.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
