package cache

import (
	"errors"
	"math/big"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sea-project/sea-sm2/crypto/sm2"
	"github.com/sea-project/sea-sm2/kvdb/leveldb"
	"github.com/sea-project/sea-sm2/kvdb/memorydb"
)

type countingEngine struct {
	inner   sm2.Engine
	signs   int32
	verifys int32
}

func (e *countingEngine) Sign(r sm2.RandSource, msg []byte, d *big.Int, uid []byte) (sm2.Signature, error) {
	atomic.AddInt32(&e.signs, 1)
	return e.inner.Sign(r, msg, d, uid)
}

func (e *countingEngine) Verify(msg []byte, sig sm2.Signature, pub sm2.Point, uid []byte) bool {
	atomic.AddInt32(&e.verifys, 1)
	return e.inner.Verify(msg, sig, pub, uid)
}

func setup(t *testing.T) (*sm2.SM2, *countingEngine, sm2.RandSource, sm2.KeyPair) {
	t.Helper()
	s, err := sm2.New(sm2.WithPolicy(sm2.PolicyBalanced))
	if err != nil {
		t.Fatal(err)
	}
	src := sm2.NewReaderSource(rand.New(rand.NewSource(7)))
	kp, err := s.GenerateKeyPair(src)
	if err != nil {
		t.Fatal(err)
	}
	return s, &countingEngine{inner: s}, src, kp
}

func TestSignHit(t *testing.T) {
	_, eng, src, kp := setup(t)
	c, err := New(eng, memorydb.New())
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("Hello, SM2!")
	sig1, err := c.Sign(src, msg, kp.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	sig2, err := c.Sign(src, msg, kp.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sig1.R.Cmp(sig2.R) != 0 || sig1.S.Cmp(sig2.S) != 0 {
		t.Fatal("cache hit returned a different signature")
	}
	// 空uid与默认uid是同一条目
	if _, err := c.Sign(src, msg, kp.Private, sm2.DefaultUID()); err != nil {
		t.Fatal(err)
	}
	if eng.signs != 1 {
		t.Fatalf("engine signed %d times, want 1", eng.signs)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d", c.Len())
	}

	if _, err := c.Sign(src, []byte("other"), kp.Private, nil); err != nil {
		t.Fatal(err)
	}
	if eng.signs != 2 || c.Len() != 2 {
		t.Fatalf("signs=%d len=%d", eng.signs, c.Len())
	}
}

func TestVerifyHit(t *testing.T) {
	s, eng, src, kp := setup(t)
	c, err := New(eng, memorydb.New())
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("Hello, SM2!")
	sig, err := s.Sign(src, msg, kp.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if !c.Verify(msg, sig, kp.Public, nil) {
			t.Fatal("verify failed")
		}
		if c.Verify([]byte("Hello, SM2?"), sig, kp.Public, nil) {
			t.Fatal("verify accepted wrong message")
		}
	}
	if eng.verifys != 2 {
		t.Fatalf("engine verified %d times, want 2", eng.verifys)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d", c.Len())
	}

	// 非法输入不入缓存
	if c.Verify(msg, sm2.Signature{}, kp.Public, nil) {
		t.Fatal("nil signature verified")
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d after nil signature", c.Len())
	}
}

func TestClearAtCapacity(t *testing.T) {
	s, eng, src, kp := setup(t)
	db := memorydb.New()
	c, err := New(eng, db, WithCapacity(3))
	if err != nil {
		t.Fatal(err)
	}
	sig, err := s.Sign(src, []byte("m"), kp.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		c.Verify([]byte{byte(i)}, sig, kp.Public, nil)
	}
	if c.Len() != 3 || db.Len() != 3 {
		t.Fatalf("len=%d db=%d, want 3", c.Len(), db.Len())
	}
	c.Verify([]byte{3}, sig, kp.Public, nil)
	if c.Len() != 0 || db.Len() != 0 {
		t.Fatalf("len=%d db=%d after overflow, want 0", c.Len(), db.Len())
	}

	c.Verify([]byte{0}, sig, kp.Public, nil)
	if eng.verifys != 5 {
		t.Fatalf("cleared entry was not recomputed, verifys=%d", eng.verifys)
	}
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d after Clear", c.Len())
	}
}

func TestClearKeepsForeignKeys(t *testing.T) {
	_, eng, src, kp := setup(t)
	db := memorydb.New()
	if err := db.Put([]byte("k:other"), []byte("x")); err != nil {
		t.Fatal(err)
	}
	c, err := New(eng, db)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Fatalf("foreign key counted, Len = %d", c.Len())
	}
	if _, err := c.Sign(src, []byte("m"), kp.Private, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if ok, _ := db.Has([]byte("k:other")); !ok {
		t.Fatal("Clear removed a key it does not own")
	}
}

func TestLevelDBReopen(t *testing.T) {
	_, eng, src, kp := setup(t)
	dir := t.TempDir()
	db, err := leveldb.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(eng, db)
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("persist")
	sig, err := c.Sign(src, msg, kp.Private, []byte("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = leveldb.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	c, err = New(eng, db)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Fatalf("reopened Len = %d", c.Len())
	}
	got, err := c.Sign(src, msg, kp.Private, []byte("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if got.R.Cmp(sig.R) != 0 || got.S.Cmp(sig.S) != 0 {
		t.Fatal("reopened cache returned a different signature")
	}
	if eng.signs != 1 {
		t.Fatalf("engine signed %d times, want 1", eng.signs)
	}
}

func TestConcurrent(t *testing.T) {
	s, eng, src, kp := setup(t)
	c, err := New(eng, memorydb.New(), WithCapacity(8))
	if err != nil {
		t.Fatal(err)
	}
	sig, err := s.Sign(src, []byte("m"), kp.Private, nil)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 4; i++ {
				msg := []byte{byte((g + i) % 6)}
				want := msg[0] == 'm'
				if c.Verify(msg, sig, kp.Public, nil) != want {
					t.Error("unexpected verify result")
				}
			}
		}(g)
	}
	wg.Wait()
	if n := c.Len(); n < 0 || n > 8 {
		t.Fatalf("Len = %d out of bounds", n)
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(nil, memorydb.New()); err == nil {
		t.Fatal("nil engine accepted")
	}
	s, _ := sm2.New()
	if _, err := New(s, nil); err == nil {
		t.Fatal("nil db accepted")
	}
}

func TestInvalidInputsBypassCache(t *testing.T) {
	s, eng, src, kp := setup(t)
	c, err := New(eng, memorydb.New())
	if err != nil {
		t.Fatal(err)
	}
	curve := s.Curve()
	msg := []byte("Hello, SM2!")
	sig, err := s.Sign(src, msg, kp.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	neg := func(x *big.Int) *big.Int { return new(big.Int).Neg(x) }
	plusN := func(x *big.Int) *big.Int { return new(big.Int).Add(x, curve.N) }
	huge := new(big.Int).Lsh(big.NewInt(1), 300)

	verifyCases := []struct {
		name string
		sig  sm2.Signature
		pub  sm2.Point
	}{
		{"negative r", sm2.Signature{R: neg(sig.R), S: sig.S}, kp.Public},
		{"negative s", sm2.Signature{R: sig.R, S: neg(sig.S)}, kp.Public},
		{"r plus n", sm2.Signature{R: plusN(sig.R), S: sig.S}, kp.Public},
		{"s plus n", sm2.Signature{R: sig.R, S: plusN(sig.S)}, kp.Public},
		{"r equals n", sm2.Signature{R: curve.N, S: sig.S}, kp.Public},
		{"zero s", sm2.Signature{R: sig.R, S: big.NewInt(0)}, kp.Public},
		{"nil r", sm2.Signature{S: sig.S}, kp.Public},
		{"negative x", sig, sm2.Point{X: neg(kp.Public.X), Y: kp.Public.Y}},
		{"negative y", sig, sm2.Point{X: kp.Public.X, Y: neg(kp.Public.Y)}},
		{"x plus p", sig, sm2.Point{X: new(big.Int).Add(kp.Public.X, curve.P), Y: kp.Public.Y}},
		{"oversized x", sig, sm2.Point{X: huge, Y: kp.Public.Y}},
		{"off curve", sig, sm2.Point{X: kp.Public.X, Y: new(big.Int).Add(kp.Public.Y, big.NewInt(1))}},
		{"infinity", sig, sm2.Infinity},
	}
	signCases := []struct {
		name string
		d    *big.Int
	}{
		{"nil", nil},
		{"zero", big.NewInt(0)},
		{"negative", neg(kp.Private)},
		{"n minus 1", new(big.Int).Sub(curve.N, big.NewInt(1))},
		{"d plus n", plusN(kp.Private)},
		{"oversized", huge},
	}

	check := func(phase string) {
		before := c.Len()
		for _, tt := range verifyCases {
			want := s.Verify(msg, tt.sig, tt.pub, nil)
			if got := c.Verify(msg, tt.sig, tt.pub, nil); got != want {
				t.Errorf("%s verify %s: cache %v, engine %v", phase, tt.name, got, want)
			}
		}
		for _, tt := range signCases {
			_, want := s.Sign(src, msg, tt.d, nil)
			_, got := c.Sign(src, msg, tt.d, nil)
			if !errors.Is(got, want) {
				t.Errorf("%s sign %s: cache err %v, engine err %v", phase, tt.name, got, want)
			}
		}
		if c.Len() != before {
			t.Errorf("%s: invalid inputs were cached, Len %d -> %d", phase, before, c.Len())
		}
	}

	check("cold")
	if !c.Verify(msg, sig, kp.Public, nil) {
		t.Fatal("valid signature rejected")
	}
	if _, err := c.Sign(src, msg, kp.Private, nil); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	check("warm")
}
