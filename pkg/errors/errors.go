// Package errors 提供统一错误辅助与 outbox 错误分类，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")
)

// outbox 错误分类：调用方通过 errors.Is 判定处理策略
var (
	// ErrTransportFailure 网络不可达或非 2xx 响应；Send 内部转入入队，不向调用方暴露
	ErrTransportFailure = errors.New("transport failure")
	// ErrKeyUnavailable 密钥槽不可用；Send 与 Flush 均不可继续
	ErrKeyUnavailable = errors.New("key unavailable")
	// ErrDecryptFailure 认证失败或存储字节格式错误；Flush 时仅丢弃该条记录
	ErrDecryptFailure = errors.New("decrypt failure")
	// ErrStoreFailure 持久化读写失败
	ErrStoreFailure = errors.New("store failure")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Mark 将 cause 归入 kind 分类，同时保留 cause 的错误链
func Mark(kind, cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, kind) {
		return cause
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

// Is 转发标准库 errors.Is，方便调用方只导入本包
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 转发标准库 errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New 转发标准库 errors.New
func New(text string) error {
	return errors.New(text)
}
