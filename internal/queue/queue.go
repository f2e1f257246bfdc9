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

package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"memory-outbox/internal/storage/slot"
	pkgerrors "memory-outbox/pkg/errors"
)

// Record 队列中的加密记录；没有当前密钥时不可读
type Record struct {
	Nonce      string    `json:"nonce"`      // base64
	Ciphertext string    `json:"ciphertext"` // base64
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Store 持久化队列：单个槽保存按插入顺序排列的 JSON 数组。
// 不去重、不排序；ReplaceAll 一次性覆盖整个槽。
type Store struct {
	slots slot.Store
	key   string
	mu    sync.Mutex
}

// New 创建基于 slots 中 key 槽的队列
func New(slots slot.Store, key string) *Store {
	return &Store{slots: slots, key: key}
}

// Append 追加一条记录；槽不存在时视为空列表
func (s *Store) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.readUnderLock(ctx)
	if err != nil {
		return err
	}
	return s.writeUnderLock(ctx, append(cur, rec))
}

// ReadAll 按插入顺序返回全部记录
func (s *Store) ReadAll(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readUnderLock(ctx)
}

// ReplaceAll 用 recs 原子覆盖整个队列
func (s *Store) ReplaceAll(ctx context.Context, recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeUnderLock(ctx, recs)
}

// Update 在队列锁内读取当前内容并写回 fn 的结果，读写之间不会插入其他 Append。
// fn 返回错误时不写入。
func (s *Store) Update(ctx context.Context, fn func(current []Record) ([]Record, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.readUnderLock(ctx)
	if err != nil {
		return err
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	return s.writeUnderLock(ctx, next)
}

// Len 当前记录数
func (s *Store) Len(ctx context.Context) (int, error) {
	recs, err := s.ReadAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (s *Store) readUnderLock(ctx context.Context) ([]Record, error) {
	raw, ok, err := s.slots.Get(ctx, s.key)
	if err != nil {
		return nil, pkgerrors.Mark(pkgerrors.ErrStoreFailure, pkgerrors.Wrapf(err, "read slot %s", s.key))
	}
	if !ok || len(raw) == 0 {
		return []Record{}, nil
	}
	var recs []Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, pkgerrors.Mark(pkgerrors.ErrStoreFailure, pkgerrors.Wrapf(err, "decode slot %s", s.key))
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

func (s *Store) writeUnderLock(ctx context.Context, recs []Record) error {
	if recs == nil {
		recs = []Record{}
	}
	raw, err := json.Marshal(recs)
	if err != nil {
		return pkgerrors.Mark(pkgerrors.ErrStoreFailure, pkgerrors.Wrap(err, "encode queue"))
	}
	if err := s.slots.Set(ctx, s.key, raw); err != nil {
		return pkgerrors.Mark(pkgerrors.ErrStoreFailure, pkgerrors.Wrapf(err, "write slot %s", s.key))
	}
	return nil
}
