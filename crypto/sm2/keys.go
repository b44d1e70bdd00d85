package sm2

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
)

const (
	compressed02 = 0x02
	compressed03 = 0x03
)

type sm2Signature struct {
	R, S *big.Int
}

// Bytes 签名的DER编码 SEQUENCE { r INTEGER, s INTEGER }
func (sig Signature) Bytes() ([]byte, error) {
	if sig.R == nil || sig.S == nil {
		return nil, errors.New("sm2: empty signature")
	}
	return asn1.Marshal(sm2Signature{sig.R, sig.S})
}

// ParseSignature 解析DER编码签名
func ParseSignature(der []byte) (Signature, error) {
	var sig sm2Signature
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil {
		return Signature{}, err
	}
	if len(rest) != 0 {
		return Signature{}, errors.New("sm2: trailing data after signature")
	}
	return Signature{R: sig.R, S: sig.S}, nil
}

// Bytes 64字节 x || y, 无穷远点返回nil
func (p Point) Bytes() []byte {
	if p.IsInfinity() {
		return nil
	}
	return append(paddedBytes(p.X), paddedBytes(p.Y)...)
}

// MarshalUncompressed 以0x04开头的65字节编码
func MarshalUncompressed(p Point) []byte {
	if p.IsInfinity() {
		return nil
	}
	return append([]byte{UnCompress}, p.Bytes()...)
}

// Compress 0x02/0x03 || x, 前缀表示y的奇偶
func Compress(p Point) []byte {
	if p.IsInfinity() {
		return nil
	}
	prefix := byte(compressed02)
	if p.Y.Bit(0) == 1 {
		prefix = compressed03
	}
	return append([]byte{prefix}, paddedBytes(p.X)...)
}

// Decompress 由x求出y = sqrt(x³ + ax + b)并按前缀选取奇偶
func (c *CurveParams) Decompress(b []byte) (Point, error) {
	if len(b) != 1+KeyBytes || (b[0] != compressed02 && b[0] != compressed03) {
		return Infinity, fmt.Errorf("sm2: invalid compressed point length %d", len(b))
	}
	x := new(big.Int).SetBytes(b[1:])
	if x.Cmp(c.P) >= 0 {
		return Infinity, ErrInvalidPoint
	}
	y, ok := ModSqrt(c.rhs(x), c.P)
	if !ok {
		return Infinity, ErrInvalidPoint
	}
	if y.Bit(0) != uint(b[0]&1) {
		y.Sub(c.P, y)
	}
	return Point{X: x, Y: y}, nil
}

// ParsePublicKey 接受64字节原始、65字节未压缩或33字节压缩编码
func (c *CurveParams) ParsePublicKey(b []byte) (Point, error) {
	var p Point
	switch len(b) {
	case 1 + KeyBytes:
		return c.Decompress(b)
	case 1 + 2*KeyBytes:
		if b[0] != UnCompress {
			return Infinity, fmt.Errorf("sm2: unknown point prefix %#x", b[0])
		}
		b = b[1:]
		fallthrough
	case 2 * KeyBytes:
		p = Point{X: new(big.Int).SetBytes(b[:KeyBytes]), Y: new(big.Int).SetBytes(b[KeyBytes:])}
	default:
		return Infinity, fmt.Errorf("sm2: public key raw bytes length must be %d", 2*KeyBytes)
	}
	if !c.IsOnCurve(p) {
		return Infinity, ErrInvalidPoint
	}
	return p, nil
}

// PrivateBytes 32字节大端私钥
func (kp KeyPair) PrivateBytes() []byte {
	return paddedBytes(kp.Private)
}

// KeyPairFromBytes 由32字节私钥恢复密钥对
func (s *SM2) KeyPairFromBytes(raw []byte) (KeyPair, error) {
	if len(raw) != KeyBytes {
		return KeyPair{}, fmt.Errorf("sm2: private key raw bytes length must be %d", KeyBytes)
	}
	return s.KeyPairFromPrivate(new(big.Int).SetBytes(raw))
}
