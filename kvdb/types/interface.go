package types

import "errors"

// ErrNotFound 键不存在
var ErrNotFound = errors.New("kvdb: key not found")

// 定义写操作接口
type Putter interface {
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// 定义数据库操作接口
type Database interface {
	Putter
	Path() string
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// Keys 返回所有以prefix开头的键, prefix为空时返回全部
	Keys(prefix []byte) ([][]byte, error)
	Close() error
	NewBatch() Batch
}

// 批量操作接口
type Batch interface {
	Putter
	Write() error
	ValueSize() int
	Reset()
}
