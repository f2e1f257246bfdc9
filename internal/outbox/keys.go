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

package outbox

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/singleflight"

	"memory-outbox/internal/storage/slot"
	"memory-outbox/pkg/aead"
	pkgerrors "memory-outbox/pkg/errors"
)

// KeyProvider 提供当前安装唯一的对称密钥
type KeyProvider interface {
	GetOrCreateKey(ctx context.Context) ([]byte, error)
}

// KeyManager 管理单个对称密钥的生命周期：首次使用时生成并持久化，之后只读取。
// 槽中保存 base64 编码的原始密钥字节。
type KeyManager struct {
	slots   slot.Store
	slotKey string

	mu    sync.RWMutex
	key   []byte
	group singleflight.Group
}

// NewKeyManager 创建 KeyManager；每个安装只应构造一个并注入给 Codec
func NewKeyManager(slots slot.Store, slotKey string) *KeyManager {
	return &KeyManager{slots: slots, slotKey: slotKey}
}

// GetOrCreateKey 返回持久化的密钥，不存在时生成并写入。
// 槽不可用、写入失败或已有值无法解析时返回 ErrKeyUnavailable，绝不返回未持久化的密钥。
func (m *KeyManager) GetOrCreateKey(ctx context.Context) ([]byte, error) {
	m.mu.RLock()
	if m.key != nil {
		k := m.key
		m.mu.RUnlock()
		return k, nil
	}
	m.mu.RUnlock()

	// 共享加载不继承单个调用方的取消，否则一个调用方放弃会让所有等待者失败
	ch := m.group.DoChan(m.slotKey, func() (interface{}, error) {
		return m.loadOrCreate(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, pkgerrors.Wrap(ctx.Err(), "wait for key")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (m *KeyManager) loadOrCreate(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key != nil {
		return m.key, nil
	}

	raw, ok, err := m.slots.Get(ctx, m.slotKey)
	if err != nil {
		return nil, pkgerrors.Mark(pkgerrors.ErrKeyUnavailable, pkgerrors.Wrapf(err, "read key slot %s", m.slotKey))
	}
	if ok {
		key, err := decodeKey(raw)
		if err != nil {
			// 不覆盖：已有队列记录可能由该槽中原本的密钥加密
			return nil, pkgerrors.Mark(pkgerrors.ErrKeyUnavailable, pkgerrors.Wrapf(err, "key slot %s", m.slotKey))
		}
		m.key = key
		return key, nil
	}

	key := make([]byte, aead.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, pkgerrors.Mark(pkgerrors.ErrKeyUnavailable, pkgerrors.Wrap(err, "generate key"))
	}
	if err := m.slots.Set(ctx, m.slotKey, []byte(base64.StdEncoding.EncodeToString(key))); err != nil {
		return nil, pkgerrors.Mark(pkgerrors.ErrKeyUnavailable, pkgerrors.Wrapf(err, "persist key slot %s", m.slotKey))
	}
	m.key = key
	return key, nil
}

func decodeKey(raw []byte) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("not base64: %w", err)
	}
	if len(key) != aead.KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", aead.KeySize, len(key))
	}
	return key, nil
}
