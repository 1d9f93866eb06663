package dao

import "errors"

// ErrMirrorNotFound 镜像记录不存在
var ErrMirrorNotFound = errors.New("dao: mirror record not found")
