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
	"fmt"
	"strconv"
	"strings"
	"sync"

	"memory-outbox/internal/storage/slot"
	pkgerrors "memory-outbox/pkg/errors"
)

// VersionCounter 为每条 memory 分配单调递增的版本号，槽中保存十进制的最后一次取值
type VersionCounter struct {
	slots   slot.Store
	slotKey string
	mu      sync.Mutex
}

// NewVersionCounter 创建版本计数器
func NewVersionCounter(slots slot.Store, slotKey string) *VersionCounter {
	return &VersionCounter{slots: slots, slotKey: slotKey}
}

// Next 读取-加一-持久化在同一把锁内完成；持久化失败时不返回新值
func (v *VersionCounter) Next(ctx context.Context) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var last int64
	raw, ok, err := v.slots.Get(ctx, v.slotKey)
	if err != nil {
		return 0, pkgerrors.Mark(pkgerrors.ErrStoreFailure, pkgerrors.Wrapf(err, "read version slot %s", v.slotKey))
	}
	if ok && len(raw) > 0 {
		last, err = strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
		if err != nil || last < 0 {
			return 0, pkgerrors.Mark(pkgerrors.ErrStoreFailure, fmt.Errorf("version slot %s holds %q", v.slotKey, string(raw)))
		}
	}

	next := last + 1
	if err := v.slots.Set(ctx, v.slotKey, []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, pkgerrors.Mark(pkgerrors.ErrStoreFailure, pkgerrors.Wrapf(err, "write version slot %s", v.slotKey))
	}
	return next, nil
}
