package sm2

import "math/big"

const (
	pow2Entries = 257 // G, 2G, ..., 2^256·G
	pow3Entries = 128 // G, 3G, ..., 3^127·G
)

// PrecomputeTable 基点G的预计算表. 构造后只读, 可被并发读取.
//
// pow2[i] = 2^i·G, 供 balanced 与 fast 策略使用;
// pow3[i] = 3^i·G, 仅 fast 策略;
// comb[j][v] = v·2^(j·w)·G, 仅 balanced 策略, 使基点窗口乘法无需倍点.
type PrecomputeTable struct {
	pow2 []Point
	pow3 []Point
	comb [][]Point
	w    uint

	maxTernary *big.Int // (3^128 - 1) / 2, 平衡三进制可表示的最大值
}

func newPrecomputeTable(c *CurveParams, policy Policy, w uint) *PrecomputeTable {
	if policy == PolicyNone {
		return nil
	}
	t := &PrecomputeTable{w: w}

	t.pow2 = make([]Point, pow2Entries)
	cur := c.G()
	for i := range t.pow2 {
		t.pow2[i] = cur
		if i+1 < len(t.pow2) {
			cur = c.Double(cur)
		}
	}

	switch policy {
	case PolicyFast:
		t.pow3 = make([]Point, pow3Entries)
		cur = c.G()
		for i := range t.pow3 {
			t.pow3[i] = cur
			cur = c.Add(cur, c.Double(cur))
		}
		t.maxTernary = new(big.Int).Exp(three, big.NewInt(pow3Entries), nil)
		t.maxTernary.Sub(t.maxTernary, one)
		t.maxTernary.Rsh(t.maxTernary, 1)

	case PolicyBalanced:
		windows := (pow2Entries + int(w) - 1) / int(w)
		t.comb = make([][]Point, windows)
		for j := range t.comb {
			base := t.pow2[j*int(w)]
			row := make([]Point, 1<<w)
			row[0] = Infinity
			for v := 1; v < len(row); v++ {
				row[v] = c.Add(row[v-1], base)
			}
			t.comb[j] = row
		}
	}
	return t
}

// Size 表中点的总数
func (t *PrecomputeTable) Size() int {
	if t == nil {
		return 0
	}
	n := len(t.pow2) + len(t.pow3)
	for _, row := range t.comb {
		n += len(row)
	}
	return n
}

// Pow2 返回 2^i·G
func (t *PrecomputeTable) Pow2(i int) Point { return t.pow2[i] }

// Pow3 返回 3^i·G, 非 fast 策略的表中不存在
func (t *PrecomputeTable) Pow3(i int) Point { return t.pow3[i] }

// multiplyComb k < 2^257, 每个w位窗口直接查表相加
func (t *PrecomputeTable) multiplyComb(c *CurveParams, k *big.Int) Point {
	result := Infinity
	for j, row := range t.comb {
		if v := window(k, uint(j)*t.w, t.w); v != 0 {
			result = c.Add(result, row[v])
		}
	}
	return result
}

// multiplyNAF k < 2^256, NAF各位对应 ±2^i·G
func (t *PrecomputeTable) multiplyNAF(c *CurveParams, k *big.Int) Point {
	result := Infinity
	for i, d := range NAF(k) {
		switch d {
		case 1:
			result = c.Add(result, t.pow2[i])
		case -1:
			result = c.Add(result, c.Negate(t.pow2[i]))
		}
	}
	return result
}

// multiplyTernary k <= maxTernary, 平衡三进制各位对应 ±3^i·G
func (t *PrecomputeTable) multiplyTernary(c *CurveParams, k *big.Int) Point {
	result := Infinity
	for i, d := range balancedTernary(k) {
		switch d {
		case 1:
			result = c.Add(result, t.pow3[i])
		case -1:
			result = c.Add(result, c.Negate(t.pow3[i]))
		}
	}
	return result
}

// balancedTernary 低位在前的 {-1,0,1} 三进制展开
func balancedTernary(k *big.Int) []int8 {
	r := new(big.Int).Set(k)
	m := new(big.Int)
	var digits []int8
	for r.Sign() > 0 {
		r.QuoRem(r, three, m)
		switch m.Int64() {
		case 0:
			digits = append(digits, 0)
		case 1:
			digits = append(digits, 1)
		case 2:
			digits = append(digits, -1)
			r.Add(r, one)
		}
	}
	return digits
}
