package service

import "errors"

var (
	// ErrSessionConflict 用户已有活跃会话且未允许多活跃会话
	ErrSessionConflict = errors.New("study: active session already exists")

	// ErrSessionNotFound 会话不存在或不属于该用户
	ErrSessionNotFound = errors.New("study: session not found")

	// ErrSessionAlreadyEnded 会话已处于终态
	ErrSessionAlreadyEnded = errors.New("study: session already ended")

	// ErrInvalidRequest 请求参数非法
	ErrInvalidRequest = errors.New("study: invalid request")
)
