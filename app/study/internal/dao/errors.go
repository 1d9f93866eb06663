package dao

import "errors"

var (
	// ErrActiveSessionExists 用户已有活跃会话（禁止多活跃会话时）
	ErrActiveSessionExists = errors.New("dao: active session already exists for user")
)
