package sm2

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/sea-project/sea-sm2/crypto/sm3"
)

// Various 常量
const (
	BitSize    = 256
	KeyBytes   = (BitSize + 7) / 8
	UnCompress = 0x04

	// C1(64) || C3(32), C2 与明文等长
	MinCiphertextLen = c1Len + c3Len

	c1Len = 2 * KeyBytes
	c3Len = sm3.Size

	// ENTL 为16位比特长度
	maxUIDLen = 8191
)

var defaultUID = []byte("1234567890123456")

// DefaultUID 未指定用户ID时使用的16字节ASCII默认值
func DefaultUID() []byte {
	return append([]byte(nil), defaultUID...)
}

var (
	ErrCiphertextTooShort = errors.New("sm2: ciphertext too short")
	ErrInvalidPoint       = errors.New("sm2: point is not on curve")
	ErrDigestMismatch     = errors.New("sm2: C3 digest mismatch")
	ErrInvalidPrivateKey  = errors.New("sm2: private key out of range")
	ErrUIDTooLong         = errors.New("sm2: uid too large")
)

// KeyPair 私钥 d ∈ [1, n-2] 与公钥 Q = d·G
type KeyPair struct {
	Private *big.Int
	Public  Point
}

// Signature SM2签名 (r, s)
type Signature struct {
	R, S *big.Int
}

// Engine 签名与验签, SM2 本身与缓存装饰器都实现它
type Engine interface {
	Sign(rand RandSource, msg []byte, d *big.Int, uid []byte) (Signature, error)
	Verify(msg []byte, sig Signature, pub Point, uid []byte) bool
}

// SM2 协议实现, 以注入的标量乘法器完成所有点乘
type SM2 struct {
	curve *CurveParams
	mult  *ScalarMultiplier

	lastSign   atomic.Int64 // ns
	lastVerify atomic.Int64
}

type options struct {
	policy     Policy
	windowSize int
}

// Option 构造选项
type Option func(*options)

// WithPolicy 指定乘法策略, 默认 none
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithWindowSize 指定窗口宽度, 默认4
func WithWindowSize(w int) Option {
	return func(o *options) { o.windowSize = w }
}

// New 在SM2推荐曲线上创建协议实例
func New(opts ...Option) (*SM2, error) {
	o := options{policy: PolicyNone, windowSize: DefaultWindowSize}
	for _, opt := range opts {
		opt(&o)
	}
	c := P256Sm2()
	m, err := NewMultiplier(c, o.policy, o.windowSize)
	if err != nil {
		return nil, err
	}
	return &SM2{curve: c, mult: m}, nil
}

// Curve 曲线参数
func (s *SM2) Curve() *CurveParams { return s.curve }

// Multiplier 标量乘法器
func (s *SM2) Multiplier() *ScalarMultiplier { return s.mult }

// ScalarMultiply k·P
func (s *SM2) ScalarMultiply(p Point, k *big.Int) Point {
	return s.mult.Multiply(p, k)
}

// Stats 乘法器信息及最近一次成功签名、验签的耗时
func (s *SM2) Stats() Stats {
	st := s.mult.Stats()
	st.LastSignTime = time.Duration(s.lastSign.Load())
	st.LastVerifyTime = time.Duration(s.lastVerify.Load())
	return st
}

// ValidPrivateKey d ∈ [1, n-2], 保证 1+d 可逆
func (c *CurveParams) ValidPrivateKey(d *big.Int) bool {
	if d == nil || d.Sign() <= 0 {
		return false
	}
	nm1 := new(big.Int).Sub(c.N, one)
	return d.Cmp(nm1) < 0
}

// ValidPublicKey 有限点且在曲线上
func (c *CurveParams) ValidPublicKey(q Point) bool {
	return !q.IsInfinity() && c.IsOnCurve(q)
}

// ValidSignature r, s ∈ [1, n-1]
func (c *CurveParams) ValidSignature(sig Signature) bool {
	r, sv := sig.R, sig.S
	if r == nil || sv == nil {
		return false
	}
	return r.Sign() > 0 && sv.Sign() > 0 && r.Cmp(c.N) < 0 && sv.Cmp(c.N) < 0
}

func (s *SM2) validPrivate(d *big.Int) bool { return s.curve.ValidPrivateKey(d) }

func (s *SM2) validPublic(q Point) bool { return s.curve.ValidPublicKey(q) }

// GenerateKeyPair 生成密钥对
func (s *SM2) GenerateKeyPair(rand RandSource) (KeyPair, error) {
	for {
		d, err := rand.Scalar(s.curve.N)
		if err != nil {
			return KeyPair{}, err
		}
		if !s.validPrivate(d) {
			continue
		}
		q := s.mult.Multiply(s.curve.G(), d)
		if q.IsInfinity() {
			continue
		}
		return KeyPair{Private: d, Public: q}, nil
	}
}

// KeyPairFromPrivate 由私钥恢复密钥对
func (s *SM2) KeyPairFromPrivate(d *big.Int) (KeyPair, error) {
	if !s.validPrivate(d) {
		return KeyPair{}, ErrInvalidPrivateKey
	}
	return KeyPair{Private: new(big.Int).Set(d), Public: s.mult.Multiply(s.curve.G(), d)}, nil
}

// ComputeZ ZA = H256(ENTLA || IDA || a || b || xG || yG || xA || yA), uid为空时使用默认ID
func (s *SM2) ComputeZ(uid []byte, pub Point) ([]byte, error) {
	if len(uid) == 0 {
		uid = defaultUID
	}
	if len(uid) > maxUIDLen {
		return nil, ErrUIDTooLong
	}
	if pub.IsInfinity() {
		return nil, ErrInvalidPoint
	}
	c := s.curve
	za := sm3.New()
	var entl [2]byte
	binary.BigEndian.PutUint16(entl[:], uint16(8*len(uid)))
	za.Write(entl[:])
	za.Write(uid)
	za.Write(paddedBytes(c.A))
	za.Write(paddedBytes(c.B))
	za.Write(paddedBytes(c.Gx))
	za.Write(paddedBytes(c.Gy))
	za.Write(paddedBytes(pub.X))
	za.Write(paddedBytes(pub.Y))
	return za.Sum(nil), nil
}

// HashMessage e = H256(Z || M) 作为大端整数
func (s *SM2) HashMessage(msg, z []byte) *big.Int {
	h := sm3.New()
	h.Write(z)
	h.Write(msg)
	return new(big.Int).SetBytes(h.Sum(nil))
}

// KDF 计数器从1开始, 逐轮 H256(x || y || ct) 直到凑满length字节
func (s *SM2) KDF(p Point, length int) []byte {
	out := make([]byte, 0, length+sm3.Size)
	xy := append(paddedBytes(p.X), paddedBytes(p.Y)...)
	var ct [4]byte
	h := sm3.New()
	for counter := uint32(1); len(out) < length; counter++ {
		binary.BigEndian.PutUint32(ct[:], counter)
		h.Reset()
		h.Write(xy)
		h.Write(ct[:])
		out = h.Sum(out)
	}
	return out[:length]
}

// Sign 用私钥d对消息签名. 仅当随机源出错时返回错误, 拒绝采样不设上限.
func (s *SM2) Sign(rand RandSource, msg []byte, d *big.Int, uid []byte) (Signature, error) {
	if !s.validPrivate(d) {
		return Signature{}, ErrInvalidPrivateKey
	}
	start := time.Now()
	c := s.curve
	N := c.N
	pub := s.mult.Multiply(c.G(), d)
	z, err := s.ComputeZ(uid, pub)
	if err != nil {
		return Signature{}, err
	}
	e := s.HashMessage(msg, z)

	// (1 + d)^-1 mod n
	d1Inv, err := ModInverse(new(big.Int).Add(d, one), N)
	if err != nil {
		return Signature{}, err
	}

	for {
		k, err := rand.Scalar(N)
		if err != nil {
			return Signature{}, err
		}
		x1 := s.mult.Multiply(c.G(), k).X
		if x1 == nil {
			continue
		}

		r := new(big.Int).Add(e, x1)
		r.Mod(r, N)
		if r.Sign() == 0 || new(big.Int).Add(r, k).Cmp(N) == 0 {
			continue
		}

		// s = (1+d)^-1 · (k - r·d) mod n
		sv := new(big.Int).Mul(r, d)
		sv.Sub(k, sv)
		sv.Mul(sv, d1Inv)
		sv.Mod(sv, N)
		if sv.Sign() == 0 {
			continue
		}
		s.lastSign.Store(int64(time.Since(start)))
		return Signature{R: r, S: sv}, nil
	}
}

// Verify 验签. 任何不合法输入都返回false
func (s *SM2) Verify(msg []byte, sig Signature, pub Point, uid []byte) bool {
	c := s.curve
	N := c.N
	if !c.ValidSignature(sig) || !s.validPublic(pub) {
		return false
	}
	start := time.Now()
	defer func() { s.lastVerify.Store(int64(time.Since(start))) }()
	r, sv := sig.R, sig.S
	z, err := s.ComputeZ(uid, pub)
	if err != nil {
		return false
	}
	e := s.HashMessage(msg, z)

	t := new(big.Int).Add(r, sv)
	t.Mod(t, N)
	if t.Sign() == 0 {
		return false
	}

	p := c.Add(s.mult.Multiply(c.G(), sv), s.mult.Multiply(pub, t))
	if p.IsInfinity() {
		return false
	}
	x := new(big.Int).Add(e, p.X)
	x.Mod(x, N)
	return x.Cmp(r) == 0
}

// Encrypt 公钥加密, 输出 C1 || C2 || C3. KDF输出全零时重新选取k
func (s *SM2) Encrypt(rand RandSource, msg []byte, pub Point) ([]byte, error) {
	if !s.validPublic(pub) {
		return nil, ErrInvalidPoint
	}
	c := s.curve
	for {
		k, err := rand.Scalar(c.N)
		if err != nil {
			return nil, err
		}
		c1 := s.mult.Multiply(c.G(), k)
		kq := s.mult.Multiply(pub, k)
		if c1.IsInfinity() || kq.IsInfinity() {
			continue
		}
		t := s.KDF(kq, len(msg))
		if len(msg) > 0 && allZero(t) {
			continue
		}

		out := make([]byte, 0, MinCiphertextLen+len(msg))
		out = append(out, c1.Bytes()...)
		for i := range t {
			out = append(out, msg[i]^t[i])
		}
		out = append(out, s.c3(kq, msg)...)
		return out, nil
	}
}

// Decrypt 私钥解密. 密文过短、C1不在曲线上、C3不符分别返回对应错误
func (s *SM2) Decrypt(ciphertext []byte, d *big.Int) ([]byte, error) {
	if len(ciphertext) < MinCiphertextLen {
		return nil, ErrCiphertextTooShort
	}
	if !s.validPrivate(d) {
		return nil, ErrInvalidPrivateKey
	}
	c1 := Point{
		X: new(big.Int).SetBytes(ciphertext[:KeyBytes]),
		Y: new(big.Int).SetBytes(ciphertext[KeyBytes:c1Len]),
	}
	if !s.curve.IsOnCurve(c1) {
		return nil, ErrInvalidPoint
	}
	dc1 := s.mult.Multiply(c1, d)
	if dc1.IsInfinity() {
		return nil, ErrInvalidPoint
	}

	c2 := ciphertext[c1Len : len(ciphertext)-c3Len]
	c3 := ciphertext[len(ciphertext)-c3Len:]
	t := s.KDF(dc1, len(c2))
	msg := make([]byte, len(c2))
	for i := range c2 {
		msg[i] = c2[i] ^ t[i]
	}
	if !bytes.Equal(s.c3(dc1, msg), c3) {
		return nil, ErrDigestMismatch
	}
	return msg, nil
}

// c3 H256(x || y || M)
func (s *SM2) c3(p Point, msg []byte) []byte {
	h := sm3.New()
	h.Write(paddedBytes(p.X))
	h.Write(paddedBytes(p.Y))
	h.Write(msg)
	return h.Sum(nil)
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// paddedBytes 32字节大端编码
func paddedBytes(x *big.Int) []byte {
	return x.FillBytes(make([]byte, KeyBytes))
}
