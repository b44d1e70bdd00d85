package sm2

import (
	"math/big"
	"math/rand"
	"testing"
)

func testScalars(t *testing.T) []*big.Int {
	t.Helper()
	c := P256Sm2()
	max := new(big.Int).Lsh(one, 256)
	ks := []*big.Int{
		big.NewInt(0), big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(7),
		big.NewInt(15), big.NewInt(16), big.NewInt(255), big.NewInt(12345),
		new(big.Int).Sub(c.N, one), new(big.Int).Set(c.N), new(big.Int).Add(c.N, one),
		new(big.Int).Sub(max, one),
	}
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 4; i++ {
		ks = append(ks, new(big.Int).Rand(rnd, max))
	}
	return ks
}

func TestNAF(t *testing.T) {
	for _, k := range testScalars(t) {
		naf := NAF(k)
		v := new(big.Int)
		for i := len(naf) - 1; i >= 0; i-- {
			v.Lsh(v, 1)
			v.Add(v, big.NewInt(int64(naf[i])))
			if i > 0 && naf[i] != 0 && naf[i-1] != 0 {
				t.Fatalf("adjacent non-zero digits in NAF(%x)", k)
			}
		}
		if v.Cmp(k) != 0 {
			t.Fatalf("NAF(%x) reconstructs to %x", k, v)
		}
	}
	if len(NAF(big.NewInt(0))) != 0 {
		t.Fatal("NAF(0) should be empty")
	}
	// 7 = 8 - 1 -> [-1, 0, 0, 1]
	got := NAF(big.NewInt(7))
	want := []int8{-1, 0, 0, 1}
	if len(got) != len(want) {
		t.Fatalf("NAF(7) = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("NAF(7) = %v, want %v", got, want)
		}
	}
}

func TestMultiplyAlgorithmsAgree(t *testing.T) {
	c := P256Sm2()
	g := c.G()
	for _, k := range testScalars(t) {
		want := c.MultiplyBaseline(g, k)
		if got := MultiplyNAF(c, g, k); !got.Equal(want) {
			t.Fatalf("NAF mismatch for k=%x", k)
		}
		for _, w := range []int{1, 3, 4, 5} {
			if got := MultiplyWindow(c, g, k, w); !got.Equal(want) {
				t.Fatalf("window(w=%d) mismatch for k=%x", w, k)
			}
		}
	}
}

func TestMultiplierPolicies(t *testing.T) {
	c := P256Sm2()
	q := c.MultiplyBaseline(c.G(), big.NewInt(0xC0FFEE))

	ms := map[Policy]*ScalarMultiplier{}
	for _, p := range []Policy{PolicyNone, PolicyBalanced, PolicyFast} {
		m, err := NewMultiplier(c, p, DefaultWindowSize)
		if err != nil {
			t.Fatal(err)
		}
		ms[p] = m
		t.Logf("%+v", m.Stats())
	}

	for _, k := range testScalars(t) {
		wantG := c.MultiplyBaseline(c.G(), k)
		wantQ := c.MultiplyBaseline(q, k)
		for p, m := range ms {
			if got := m.Multiply(c.G(), k); !got.Equal(wantG) {
				t.Fatalf("%s: k·G mismatch for k=%x", p, k)
			}
			if got := m.Multiply(q, k); !got.Equal(wantQ) {
				t.Fatalf("%s: k·Q mismatch for k=%x", p, k)
			}
		}
	}
}

func TestPrecomputeTable(t *testing.T) {
	c := P256Sm2()
	none, _ := NewMultiplier(c, PolicyNone, 4)
	if none.Table() != nil || none.Stats().TableSize != 0 {
		t.Fatal("baseline multiplier should not build a table")
	}

	fast, _ := NewMultiplier(c, PolicyFast, 4)
	tbl := fast.Table()
	if got := tbl.Size(); got != pow2Entries+pow3Entries {
		t.Fatalf("fast table size = %d", got)
	}
	if !tbl.Pow2(10).Equal(c.MultiplyBaseline(c.G(), big.NewInt(1024))) {
		t.Fatal("pow2[10] != 1024·G")
	}
	if !tbl.Pow3(5).Equal(c.MultiplyBaseline(c.G(), big.NewInt(243))) {
		t.Fatal("pow3[5] != 243·G")
	}

	balanced, _ := NewMultiplier(c, PolicyBalanced, 4)
	// 257 + 65 窗口 × 16
	if got := balanced.Table().Size(); got != pow2Entries+65*16 {
		t.Fatalf("balanced table size = %d", got)
	}
}

func TestBalancedTernary(t *testing.T) {
	for _, v := range []int64{0, 1, 2, 3, 4, 5, 8, 13, 40, 41, 12345, 1 << 40} {
		digits := balancedTernary(big.NewInt(v))
		var sum, pow int64 = 0, 1
		for _, d := range digits {
			sum += int64(d) * pow
			pow *= 3
		}
		if sum != v {
			t.Fatalf("balancedTernary(%d) = %v sums to %d", v, digits, sum)
		}
	}

	c := P256Sm2()
	fast, _ := NewMultiplier(c, PolicyFast, 4)
	max := fast.Table().maxTernary
	for _, k := range []*big.Int{max, new(big.Int).Add(max, one)} {
		if !fast.Multiply(c.G(), k).Equal(c.MultiplyBaseline(c.G(), k)) {
			t.Fatalf("ternary boundary mismatch for k=%x", k)
		}
	}
}

func TestNewMultiplierErrors(t *testing.T) {
	c := P256Sm2()
	if _, err := NewMultiplier(c, Policy("turbo"), 4); err == nil {
		t.Fatal("unknown policy accepted")
	}
	if _, err := NewMultiplier(c, PolicyBalanced, 0); err == nil {
		t.Fatal("window size 0 accepted")
	}
	if _, err := NewMultiplier(c, PolicyBalanced, 9); err == nil {
		t.Fatal("window size 9 accepted")
	}
	if p, err := ParsePolicy("fast"); err != nil || p != PolicyFast {
		t.Fatal("ParsePolicy(fast) failed")
	}
}

func benchmarkMultiply(b *testing.B, policy Policy, base bool) {
	c := P256Sm2()
	m, err := NewMultiplier(c, policy, DefaultWindowSize)
	if err != nil {
		b.Fatal(err)
	}
	p := c.G()
	if !base {
		p = c.Double(p)
	}
	k, _ := new(big.Int).SetString("6CB28D99385C175C94F94E934817663FC176D925DD72B727260DBAAE1FB2F96F", 16)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Multiply(p, k)
	}
}

func BenchmarkMultiplyBaseG(b *testing.B)     { benchmarkMultiply(b, PolicyNone, true) }
func BenchmarkMultiplyWindowG(b *testing.B)   { benchmarkMultiply(b, PolicyBalanced, true) }
func BenchmarkMultiplyNAFG(b *testing.B)      { benchmarkMultiply(b, PolicyFast, true) }
func BenchmarkMultiplyWindowAny(b *testing.B) { benchmarkMultiply(b, PolicyBalanced, false) }
func BenchmarkMultiplyNAFAny(b *testing.B)    { benchmarkMultiply(b, PolicyFast, false) }
