package slot

import (
	"context"
)

// Store 持久化 key/value 槽接口；每个 key 保存一个完整值，Set 为原子覆盖
type Store interface {
	// Get 读取槽值；ok=false 表示槽不存在
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set 原子覆盖槽值
	Set(ctx context.Context, key string, value []byte) error
	// Delete 删除槽；不存在时不报错
	Delete(ctx context.Context, key string) error
	// Close 关闭底层连接
	Close() error
}
