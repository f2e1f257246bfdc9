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

package slot

import (
	"context"
	"fmt"

	"memory-outbox/pkg/config"
)

// NewStore 根据配置创建持久化槽（file | memory | redis | postgres）
func NewStore(ctx context.Context, cfg config.SlotConfig) (Store, error) {
	switch cfg.Type {
	case "", "file":
		path := cfg.Path
		if path == "" {
			path = "data/outbox.json"
		}
		return NewFileStore(path)
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, RedisOptionsFromConfig(cfg))
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("storage.slot.dsn 不能为空（type=postgres）")
		}
		return NewPostgresStore(ctx, cfg.DSN, cfg.Table)
	default:
		return nil, fmt.Errorf("unsupported slot type: %s", cfg.Type)
	}
}
