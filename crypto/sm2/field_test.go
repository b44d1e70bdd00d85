package sm2

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"
)

func TestModInverse(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	n := P256Sm2().N
	p := P256Sm2().P
	for i := 0; i < 50; i++ {
		a := new(big.Int).Rand(rnd, n)
		if a.Sign() == 0 {
			continue
		}
		for _, m := range []*big.Int{n, p} {
			inv, err := ModInverse(a, m)
			if err != nil {
				t.Fatal(err)
			}
			if inv.Sign() < 0 || inv.Cmp(m) >= 0 {
				t.Fatalf("inverse %s not normalized", inv)
			}
			chk := new(big.Int).Mul(inv, a)
			if chk.Mod(chk, m).Cmp(one) != 0 {
				t.Fatalf("a·a⁻¹ != 1 for a=%x", a)
			}
		}
	}

	small := []struct{ a, m, want int64 }{
		{3, 11, 4},
		{10, 17, 12},
		{-3, 11, 7},
		{1, 2, 1},
	}
	for _, c := range small {
		inv, err := ModInverse(big.NewInt(c.a), big.NewInt(c.m))
		if err != nil {
			t.Fatal(err)
		}
		if inv.Int64() != c.want {
			t.Fatalf("ModInverse(%d, %d) = %s, want %d", c.a, c.m, inv, c.want)
		}
	}
}

func TestModInverseNotCoprime(t *testing.T) {
	for _, c := range [][2]int64{{6, 9}, {0, 7}, {14, 7}, {5, 0}} {
		_, err := ModInverse(big.NewInt(c[0]), big.NewInt(c[1]))
		var nie *NoInverseError
		if !errors.As(err, &nie) {
			t.Fatalf("ModInverse(%d, %d) err = %v, want NoInverseError", c[0], c[1], err)
		}
		t.Log(err)
	}
}

func TestModSqrt(t *testing.T) {
	// 13 ≡ 5 (mod 8), 41 ≡ 1 (mod 8), 97 = 3·2^5 + 1 走完整的 Tonelli-Shanks 分支
	for _, prime := range []int64{13, 17, 41, 97, 7, 11} {
		p := big.NewInt(prime)
		residues := map[int64]bool{}
		for x := int64(0); x < prime; x++ {
			residues[x*x%prime] = true
		}
		for a := int64(0); a < prime; a++ {
			r, ok := ModSqrt(big.NewInt(a), p)
			if ok != residues[a] {
				t.Fatalf("ModSqrt(%d, %d) ok = %v, want %v", a, prime, ok, residues[a])
			}
			if !ok {
				continue
			}
			sq := new(big.Int).Mul(r, r)
			if sq.Mod(sq, p).Int64() != a {
				t.Fatalf("ModSqrt(%d, %d) = %s is not a root", a, prime, r)
			}
		}
	}
}

func TestModSqrtCurveField(t *testing.T) {
	c := P256Sm2()
	y, ok := ModSqrt(c.rhs(c.Gx), c.P)
	if !ok {
		t.Fatal("x(G) has no square root")
	}
	if y.Cmp(c.Gy) != 0 && new(big.Int).Sub(c.P, y).Cmp(c.Gy) != 0 {
		t.Fatal("root does not match ±Gy")
	}
	// -1 不是模 p 的二次剩余 (p ≡ 3 mod 4)
	if _, ok := ModSqrt(new(big.Int).Sub(c.P, one), c.P); ok {
		t.Fatal("-1 reported as a quadratic residue")
	}
	if r, ok := ModSqrt(big.NewInt(0), c.P); !ok || r.Sign() != 0 {
		t.Fatal("sqrt(0) should be 0")
	}
}
