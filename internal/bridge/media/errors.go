package media

import "errors"

var (
	// ErrNoPayload 所有获取策略均失败
	ErrNoPayload = errors.New("media payload unavailable")

	// ErrTooLarge 远程内容超过大小上限
	ErrTooLarge = errors.New("media payload exceeds size limit")
)
