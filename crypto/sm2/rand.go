package sm2

import (
	"io"
	"math/big"
	"sync"
)

// RandSource 产生 [1, n-1] 内均匀分布的随机整数. 实现需可并发调用.
type RandSource interface {
	Scalar(n *big.Int) (*big.Int, error)
}

// ReaderSource 以 io.Reader (通常为 crypto/rand.Reader) 为熵源
type ReaderSource struct {
	mu sync.Mutex
	r  io.Reader
}

// NewReaderSource 包装随机字节流
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r}
}

// Scalar 多读取64位后对 n-1 取模再加1, 偏差可忽略
func (s *ReaderSource) Scalar(n *big.Int) (*big.Int, error) {
	b := make([]byte, (n.BitLen()+7)/8+8)
	s.mu.Lock()
	_, err := io.ReadFull(s.r, b)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	k := new(big.Int).SetBytes(b)
	nm1 := new(big.Int).Sub(n, one)
	k.Mod(k, nm1)
	return k.Add(k, one), nil
}
