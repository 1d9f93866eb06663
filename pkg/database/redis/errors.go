package redis

import "errors"

var (
	// ErrNil 键不存在
	ErrNil = errors.New("redis: nil")

	// ErrInvalidConfig 无效的配置
	ErrInvalidConfig = errors.New("redis: invalid config")

	// ErrLockFailed 获取锁失败
	ErrLockFailed = errors.New("redis: failed to acquire lock")

	// ErrLockNotHeld 锁不存在或不是当前持有者
	ErrLockNotHeld = errors.New("redis: lock not held")
)
