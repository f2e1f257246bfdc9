package slot

import (
	"context"
	"errors"

	"memory-outbox/pkg/secrets"
)

// SecretStore 将 secrets.Store 适配为槽，用于把密钥槽放进 Vault 等 secret 后端。
// secret 后端只保存文本，写入的值必须是文本（密钥槽保存的是 base64 文本）
type SecretStore struct {
	store secrets.Store
}

// NewSecretStore 包装 secrets.Store
func NewSecretStore(store secrets.Store) *SecretStore {
	return &SecretStore{store: store}
}

// Get 读取槽值
func (s *SecretStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(v), true, nil
}

// Set 覆盖槽值
func (s *SecretStore) Set(ctx context.Context, key string, value []byte) error {
	return s.store.Set(ctx, key, string(value))
}

// Delete 删除槽
func (s *SecretStore) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

// Close 关闭
func (s *SecretStore) Close() error {
	return nil
}
