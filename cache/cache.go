package cache

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/sea-project/sea-sm2/crypto/sm2"
	"github.com/sea-project/sea-sm2/crypto/sm3"
	"github.com/sea-project/sea-sm2/kvdb/types"
	"github.com/sea-project/sea-sm2/logger"
	"github.com/sea-project/sea-sm2/util/serialize"
)

// DefaultCapacity 超过此条目数时整体清空
const DefaultCapacity = 1000

var (
	signPrefix   = []byte("s:")
	verifyPrefix = []byte("v:")
)

type signEntry struct {
	R string `json:"r"`
	S string `json:"s"`
}

type verifyEntry struct {
	Valid bool `json:"valid"`
}

// Cache 签名/验签结果缓存, 所有存储访问与计数由mu串行化, 曲线运算在锁外进行.
// 超出范围的私钥、签名或不在曲线上的公钥不参与缓存, 直接交给engine.
type Cache struct {
	engine   sm2.Engine
	curve    *sm2.CurveParams
	db       types.Database
	capacity int

	mu    sync.Mutex
	count int
}

var _ sm2.Engine = (*Cache)(nil)

type Option func(*Cache)

// WithCapacity 设置容量, n<=0 时保持默认
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// New 包装engine, 结果存入db. db中已有的条目计入容量.
func New(engine sm2.Engine, db types.Database, opts ...Option) (*Cache, error) {
	if engine == nil || db == nil {
		return nil, errors.New("cache: engine and db are required")
	}
	c := &Cache{engine: engine, curve: sm2.P256Sm2(), db: db, capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(c)
	}
	for _, prefix := range [][]byte{signPrefix, verifyPrefix} {
		keys, err := db.Keys(prefix)
		if err != nil {
			return nil, fmt.Errorf("cache: count entries: %w", err)
		}
		c.count += len(keys)
	}
	logger.Debug("cache opened", "path", db.Path(), "entries", c.count, "capacity", c.capacity)
	return c, nil
}

// Sign 命中时原样返回缓存的签名, 否则调用engine签名后存储
func (c *Cache) Sign(rand sm2.RandSource, msg []byte, d *big.Int, uid []byte) (sm2.Signature, error) {
	if !c.curve.ValidPrivateKey(d) {
		return c.engine.Sign(rand, msg, d, uid)
	}
	key := entryKey(signPrefix, msg, d.Bytes(), normalizeUID(uid))

	var entry signEntry
	if ok, err := c.lookup(key, &entry); err != nil {
		return sm2.Signature{}, err
	} else if ok {
		sig, err := entry.signature()
		if err == nil {
			return sig, nil
		}
		logger.Warn("cache drop bad sign entry", "err", err)
	}

	sig, err := c.engine.Sign(rand, msg, d, uid)
	if err != nil {
		return sm2.Signature{}, err
	}
	entry = signEntry{R: hex.EncodeToString(sig.R.Bytes()), S: hex.EncodeToString(sig.S.Bytes())}
	if err := c.store(key, entry); err != nil {
		return sm2.Signature{}, err
	}
	return sig, nil
}

// Verify 验签结果缓存. 存储出错时退化为直接验签
func (c *Cache) Verify(msg []byte, sig sm2.Signature, pub sm2.Point, uid []byte) bool {
	if !c.curve.ValidSignature(sig) || !c.curve.ValidPublicKey(pub) {
		return c.engine.Verify(msg, sig, pub, uid)
	}
	key := entryKey(verifyPrefix, msg, sig.R.Bytes(), sig.S.Bytes(), pub.Bytes(), normalizeUID(uid))

	var entry verifyEntry
	ok, err := c.lookup(key, &entry)
	if err != nil {
		logger.Warn("cache lookup failed", "err", err)
	} else if ok {
		return entry.Valid
	}

	valid := c.engine.Verify(msg, sig, pub, uid)
	if err := c.store(key, verifyEntry{Valid: valid}); err != nil {
		logger.Warn("cache store failed", "err", err)
	}
	return valid
}

// Len 当前条目数
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Clear 删除全部缓存条目
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clearLocked()
}

// Close 关闭底层存储
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

func (c *Cache) lookup(key []byte, v interface{}) (bool, error) {
	c.mu.Lock()
	data, err := c.db.Get(key)
	c.mu.Unlock()
	if err == types.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get: %w", err)
	}
	if err := serialize.JsonUnMarshal(data, v); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *Cache) store(key []byte, v interface{}) error {
	data, err := serialize.JsonMarshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	has, err := c.db.Has(key)
	if err != nil {
		return fmt.Errorf("cache: has: %w", err)
	}
	if err := c.db.Put(key, data); err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	if has {
		return nil
	}
	c.count++
	if c.count > c.capacity {
		logger.Debug("cache over capacity, clearing", "entries", c.count, "capacity", c.capacity)
		return c.clearLocked()
	}
	return nil
}

func (c *Cache) clearLocked() error {
	batch := c.db.NewBatch()
	for _, prefix := range [][]byte{signPrefix, verifyPrefix} {
		keys, err := c.db.Keys(prefix)
		if err != nil {
			return fmt.Errorf("cache: clear: %w", err)
		}
		for _, k := range keys {
			batch.Delete(k)
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	c.count = 0
	return nil
}

func (e signEntry) signature() (sm2.Signature, error) {
	r, err := hex.DecodeString(e.R)
	if err != nil {
		return sm2.Signature{}, err
	}
	s, err := hex.DecodeString(e.S)
	if err != nil {
		return sm2.Signature{}, err
	}
	return sm2.Signature{R: new(big.Int).SetBytes(r), S: new(big.Int).SetBytes(s)}, nil
}

// entryKey prefix || SM3(len||field ...)
func entryKey(prefix []byte, fields ...[]byte) []byte {
	h := sm3.New()
	var l [4]byte
	for _, f := range fields {
		binary.BigEndian.PutUint32(l[:], uint32(len(f)))
		h.Write(l[:])
		h.Write(f)
	}
	return h.Sum(append([]byte(nil), prefix...))
}

func normalizeUID(uid []byte) []byte {
	if len(uid) == 0 {
		return sm2.DefaultUID()
	}
	return uid
}
