package config

import (
	"errors"
	"fmt"
	"io/ioutil"

	"github.com/sea-project/sea-sm2/batch"
	"github.com/sea-project/sea-sm2/cache"
	"github.com/sea-project/sea-sm2/crypto/sm2"
	"github.com/sea-project/sea-sm2/keystore"
	"github.com/sea-project/sea-sm2/kvdb/leveldb"
	"github.com/sea-project/sea-sm2/kvdb/memorydb"
	"github.com/sea-project/sea-sm2/kvdb/types"
	"github.com/sea-project/sea-sm2/logger"
	"github.com/sea-project/sea-sm2/util/serialize"
)

// 缓存后端
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
)

// Config 组件配置, JSON字段见tag
type Config struct {
	Policy        string               `json:"policy"`
	WindowSize    int                  `json:"window_size"`
	Workers       int                  `json:"workers"`
	CacheCapacity int                  `json:"cache_capacity"`
	CacheBackend  string               `json:"cache_backend"`
	CachePath     string               `json:"cache_path"`
	KeystorePath  string               `json:"keystore_path"`
	ScryptN       int                  `json:"scrypt_n"`
	Log           serialize.RawMessage `json:"log,omitempty"`
}

// Default 窗口乘法, 内存缓存, 标准scrypt强度
func Default() *Config {
	return &Config{
		Policy:        string(sm2.PolicyBalanced),
		WindowSize:    sm2.DefaultWindowSize,
		Workers:       0,
		CacheCapacity: cache.DefaultCapacity,
		CacheBackend:  BackendMemory,
		ScryptN:       keystore.StandardScryptN,
	}
}

// Load 读取JSON配置, 未出现的字段取默认值. 带log段时同时配置日志.
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := serialize.JsonUnMarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Log) > 0 {
		if err := logger.SetLoggerConfig(cfg.Log); err != nil {
			return nil, err
		}
	}
	logger.Debug("config loaded", "policy", cfg.Policy, "window", cfg.WindowSize, "backend", cfg.CacheBackend)
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := sm2.ParsePolicy(c.Policy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.WindowSize < 1 || c.WindowSize > sm2.MaxWindowSize {
		return fmt.Errorf("config: window_size must be in [1,%d], got %d", sm2.MaxWindowSize, c.WindowSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative, got %d", c.Workers)
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("config: cache_capacity must be positive, got %d", c.CacheCapacity)
	}
	switch c.CacheBackend {
	case BackendMemory:
	case BackendLevelDB:
		if c.CachePath == "" {
			return errors.New("config: cache_path required for leveldb backend")
		}
	default:
		return fmt.Errorf("config: unknown cache_backend %q", c.CacheBackend)
	}
	// scrypt要求N为大于1的2的幂
	if c.ScryptN <= 1 || c.ScryptN&(c.ScryptN-1) != 0 {
		return fmt.Errorf("config: scrypt_n must be a power of two > 1, got %d", c.ScryptN)
	}
	return nil
}

func (c *Config) NewSM2() (*sm2.SM2, error) {
	policy, err := sm2.ParsePolicy(c.Policy)
	if err != nil {
		return nil, err
	}
	return sm2.New(sm2.WithPolicy(policy), sm2.WithWindowSize(c.WindowSize))
}

// OpenDatabase path为空时使用内存库, 否则打开leveldb
func (c *Config) OpenDatabase(path string) (types.Database, error) {
	if path == "" {
		return memorydb.New(), nil
	}
	db, err := leveldb.New(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// NewCache 按cache_backend打开存储并包装engine
func (c *Config) NewCache(engine sm2.Engine) (*cache.Cache, error) {
	path := ""
	if c.CacheBackend == BackendLevelDB {
		path = c.CachePath
	}
	db, err := c.OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	cc, err := cache.New(engine, db, cache.WithCapacity(c.CacheCapacity))
	if err != nil {
		db.Close()
		return nil, err
	}
	return cc, nil
}

func (c *Config) NewRunner(engine sm2.Engine) *batch.Runner {
	return batch.New(engine, c.Workers)
}

// NewKeystore keystore_path为空时密钥只保存在内存中
func (c *Config) NewKeystore() (*keystore.Store, error) {
	db, err := c.OpenDatabase(c.KeystorePath)
	if err != nil {
		return nil, err
	}
	return keystore.New(db, keystore.WithScryptParams(c.ScryptN, keystore.StandardScryptR, keystore.StandardScryptP)), nil
}
