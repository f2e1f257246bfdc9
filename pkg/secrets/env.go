// Copyright 2026 fanjia1024
// Environment variable based secret store

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// envStore 从环境变量读取预先下发的 secret。
// 进程内 Setenv 不能跨重启保留，因此 Set/Delete 一律拒绝。
type envStore struct{}

// NewEnvStore 创建环境变量 secret store；key 中的 "/" 与 "-" 映射为 "_" 并转大写
func NewEnvStore() Store {
	return &envStore{}
}

func envName(key string) string {
	return strings.ToUpper(strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(key))
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	value := os.Getenv(envName(key))
	if value == "" {
		return "", fmt.Errorf("environment variable not set: %s: %w", envName(key), ErrSecretNotFound)
	}
	return value, nil
}

func (e *envStore) Set(ctx context.Context, key string, value string) error {
	return fmt.Errorf("set %s: %w", envName(key), ErrReadOnly)
}

func (e *envStore) Delete(ctx context.Context, key string) error {
	return fmt.Errorf("delete %s: %w", envName(key), ErrReadOnly)
}
