package postgres

import "errors"

var (
	// ErrNilConfig 配置不能为 nil
	ErrNilConfig = errors.New("postgres: config is nil")

	// ErrInvalidConfig 无效的配置
	ErrInvalidConfig = errors.New("postgres: invalid config")

	// ErrNoRows 查询无结果
	ErrNoRows = errors.New("postgres: no rows in result set")
)
