// Copyright 2026 fanjia1024
// Secret management abstraction

package secrets

import (
	"context"
	"fmt"

	pkgerrors "memory-outbox/pkg/errors"
)

// ErrSecretNotFound secret 不存在；与后端不可达区分，调用方据此决定是否首次生成
var ErrSecretNotFound = pkgerrors.Wrap(pkgerrors.ErrNotFound, "secret")

// ErrReadOnly 后端不支持持久写入
var ErrReadOnly = fmt.Errorf("secret store is read-only")

// Store Secret 存储接口
type Store interface {
	// Get 获取 secret 值；不存在时返回 ErrSecretNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set 持久化 secret 值
	Set(ctx context.Context, key string, value string) error

	// Delete 删除 secret
	Delete(ctx context.Context, key string) error
}

// Config Secret Store 配置
type Config struct {
	Provider string      // vault | env | memory
	Vault    VaultConfig // provider=vault 时使用
}

// NewStore 创建 Secret Store
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "memory":
		return NewMemoryStore(), nil
	case "env":
		return NewEnvStore(), nil
	case "vault":
		return NewVaultStore(config.Vault)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}
