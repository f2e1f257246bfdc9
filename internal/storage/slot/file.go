package slot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore 单文件槽实现：所有槽以 JSON 对象保存在一个文件中。
// 每次写入先写临时文件并 fsync，再 rename 覆盖正式文件，
// 因此崩溃时文件要么是旧内容要么是新内容。
type FileStore struct {
	path    string
	tmpPath string

	mu    sync.RWMutex
	slots map[string][]byte
}

// NewFileStore 打开（或初始化）path 处的槽文件
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create slot dir %s: %w", dir, err)
		}
	}

	s := &FileStore{
		path:    path,
		tmpPath: path + ".tmp",
		slots:   make(map[string][]byte),
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not read slot file %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.slots); err != nil {
		return fmt.Errorf("could not unmarshal slot file %s: %w", s.path, err)
	}
	return nil
}

// Get 读取槽值
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.slots[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set 覆盖槽值并落盘；落盘失败时内存状态回滚
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.slots[key]
	s.slots[key] = append([]byte(nil), value...)
	if err := s.writeUnderLock(); err != nil {
		if had {
			s.slots[key] = prev
		} else {
			delete(s.slots, key)
		}
		return err
	}
	return nil
}

// Delete 删除槽并落盘
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.slots[key]
	if !had {
		return nil
	}
	delete(s.slots, key)
	if err := s.writeUnderLock(); err != nil {
		s.slots[key] = prev
		return err
	}
	return nil
}

func (s *FileStore) writeUnderLock() error {
	tmpF, err := os.OpenFile(s.tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("could not create tmp file %s: %w", s.tmpPath, err)
	}

	if err := json.NewEncoder(tmpF).Encode(s.slots); err != nil {
		_ = tmpF.Close()
		_ = os.Remove(s.tmpPath)
		return fmt.Errorf("could not write to tmp file %s: %w", s.tmpPath, err)
	}

	if err := tmpF.Sync(); err != nil {
		_ = tmpF.Close()
		_ = os.Remove(s.tmpPath)
		return fmt.Errorf("could not sync tmp file %s: %w", s.tmpPath, err)
	}

	if err := tmpF.Close(); err != nil {
		_ = os.Remove(s.tmpPath)
		return fmt.Errorf("could not close tmp file %s: %w", s.tmpPath, err)
	}

	if err := os.Rename(s.tmpPath, s.path); err != nil {
		_ = os.Remove(s.tmpPath)
		return fmt.Errorf("could not replace %s with %s: %w", s.path, s.tmpPath, err)
	}
	return nil
}

// Close 关闭；数据在每次 Set 时已落盘
func (s *FileStore) Close() error {
	return nil
}
