package memorydb

import (
	"bytes"
	"sync"

	"github.com/sea-project/sea-sm2/kvdb/types"
)

// 结构体
type MemDB struct {
	db   map[string][]byte
	lock sync.RWMutex
}

// 初始化内存存储
func New() *MemDB {
	return &MemDB{
		db: make(map[string][]byte),
	}
}

// 写方法
func (db *MemDB) Put(key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	db.db[string(key)] = append([]byte(nil), value...)
	return nil
}

// 读方法
func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if value, ok := db.db[string(key)]; ok {
		return append([]byte(nil), value...), nil
	}
	return nil, types.ErrNotFound
}

// 判断是否存在
func (db *MemDB) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	_, ok := db.db[string(key)]
	return ok, nil
}

// 删除制定键值
func (db *MemDB) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	delete(db.db, string(key))
	return nil
}

// 获取前缀匹配的所有键
func (db *MemDB) Keys(prefix []byte) ([][]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	keys := [][]byte{}
	for key := range db.db {
		if bytes.HasPrefix([]byte(key), prefix) {
			keys = append(keys, []byte(key))
		}
	}
	return keys, nil
}

// Len 键值对数量
func (db *MemDB) Len() int {
	db.lock.RLock()
	defer db.lock.RUnlock()

	return len(db.db)
}

func (db *MemDB) Path() string {
	return ""
}

// 关闭数据库(内存数据库无需此操作)
func (db *MemDB) Close() error {
	return nil
}

type op struct {
	key   []byte
	value []byte
	del   bool
}

// 批量写暂存区
type memBatch struct {
	db   *MemDB
	ops  []op
	size int
}

// 初始化批量存储
func (db *MemDB) NewBatch() types.Batch {
	return &memBatch{db: db}
}

func (b *memBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, op{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	b.size += len(value)
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	b.ops = append(b.ops, op{key: append([]byte(nil), key...), del: true})
	b.size++
	return nil
}

// 一次加锁写入全部操作
func (b *memBatch) Write() error {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()

	for _, o := range b.ops {
		if o.del {
			delete(b.db.db, string(o.key))
			continue
		}
		b.db.db[string(o.key)] = o.value
	}
	return nil
}

func (b *memBatch) ValueSize() int {
	return b.size
}

func (b *memBatch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}
