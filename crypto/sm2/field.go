package sm2

import (
	"fmt"
	"math/big"
)

var (
	zero  = big.NewInt(0)
	one   = big.NewInt(1)
	two   = big.NewInt(2)
	three = big.NewInt(3)
	four  = big.NewInt(4)
)

// NoInverseError a 与模数 m 不互素, 逆元不存在
type NoInverseError struct {
	A, M *big.Int
}

func (e *NoInverseError) Error() string {
	return fmt.Sprintf("sm2: %s has no inverse modulo %s", e.A.Text(16), e.M.Text(16))
}

// ModInverse 扩展欧几里得算法求 a 模 m 的逆元, 结果位于 [0, m)
func ModInverse(a, m *big.Int) (*big.Int, error) {
	if m.Sign() <= 0 {
		return nil, &NoInverseError{A: new(big.Int).Set(a), M: new(big.Int).Set(m)}
	}
	r0 := new(big.Int).Mod(a, m)
	r1 := new(big.Int).Set(m)
	x0, x1 := big.NewInt(1), big.NewInt(0)

	q, tmp := new(big.Int), new(big.Int)
	for r1.Sign() != 0 {
		q.Div(r0, r1)

		tmp.Mul(q, r1)
		r0.Sub(r0, tmp)
		r0, r1 = r1, r0

		tmp.Mul(q, x1)
		x0.Sub(x0, tmp)
		x0, x1 = x1, x0
	}
	// r0 = gcd(a, m)
	if r0.Cmp(one) != 0 {
		return nil, &NoInverseError{A: new(big.Int).Set(a), M: new(big.Int).Set(m)}
	}
	return x0.Mod(x0, m), nil
}

// legendre 返回 a^((p-1)/2) mod p, 即 1、p-1 或 0
func legendre(a, p *big.Int) *big.Int {
	e := new(big.Int).Sub(p, one)
	e.Rsh(e, 1)
	return new(big.Int).Exp(a, e, p)
}

// ModSqrt Tonelli-Shanks 求模平方根, p 为奇素数. a 为非二次剩余时返回 false
func ModSqrt(a, p *big.Int) (*big.Int, bool) {
	a = new(big.Int).Mod(a, p)
	if a.Sign() == 0 {
		return new(big.Int), true
	}

	// p ≡ 3 (mod 4)
	if new(big.Int).Mod(p, four).Cmp(three) == 0 {
		e := new(big.Int).Add(p, one)
		e.Rsh(e, 2)
		r := new(big.Int).Exp(a, e, p)
		if new(big.Int).Exp(r, two, p).Cmp(a) != 0 {
			return nil, false
		}
		return r, true
	}

	pm1 := new(big.Int).Sub(p, one)
	if legendre(a, p).Cmp(one) != 0 {
		return nil, false
	}

	// p-1 = q * 2^s
	q := new(big.Int).Set(pm1)
	s := 0
	for q.Bit(0) == 0 {
		q.Rsh(q, 1)
		s++
	}

	// 找一个二次非剩余 z
	z := big.NewInt(2)
	for legendre(z, p).Cmp(pm1) != 0 {
		z.Add(z, one)
	}

	m := s
	c := new(big.Int).Exp(z, q, p)
	t := new(big.Int).Exp(a, q, p)
	e := new(big.Int).Add(q, one)
	e.Rsh(e, 1)
	r := new(big.Int).Exp(a, e, p)

	for t.Cmp(one) != 0 {
		// 最小的 i 使 t^(2^i) = 1
		i := 0
		tmp := new(big.Int).Set(t)
		for tmp.Cmp(one) != 0 && i < m {
			tmp.Mul(tmp, tmp)
			tmp.Mod(tmp, p)
			i++
		}
		if i == m {
			return nil, false
		}

		b := new(big.Int).Exp(c, new(big.Int).Lsh(one, uint(m-i-1)), p)
		m = i
		c.Mul(b, b)
		c.Mod(c, p)
		t.Mul(t, c)
		t.Mod(t, p)
		r.Mul(r, b)
		r.Mod(r, p)
	}
	return r, true
}
