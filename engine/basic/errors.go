package basic

import "errors"

// 存储相关错误
var (
	ErrInvalidPageSize   = errors.New("invalid page size")
	ErrDiskManagerClosed = errors.New("disk manager closed")
)
