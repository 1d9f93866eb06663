package service

import "errors"

var (
	// ErrRecordNotFound 查询的记录不存在
	ErrRecordNotFound = errors.New("progress: record not found")

	// ErrInvalidEvent 事件负载不合法，不可重试
	ErrInvalidEvent = errors.New("progress: invalid event")
)
