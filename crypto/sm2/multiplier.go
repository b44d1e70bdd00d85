package sm2

import (
	"fmt"
	"math/big"
	"time"
)

// Policy 标量乘法优化策略, 在构造时确定
type Policy string

const (
	PolicyNone     Policy = "none"     // double-and-add
	PolicyBalanced Policy = "balanced" // 滑动窗口
	PolicyFast     Policy = "fast"     // NAF

	DefaultWindowSize = 4
	MaxWindowSize     = 8
)

// ParsePolicy 解析策略名称
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(name); p {
	case PolicyNone, PolicyBalanced, PolicyFast:
		return p, nil
	}
	return "", fmt.Errorf("sm2: unknown multiplier policy %q", name)
}

// Stats 性能统计, 耗时字段只由 SM2.Stats 填写
type Stats struct {
	Policy         Policy        `json:"policy"`
	WindowSize     int           `json:"window_size"`
	TableSize      int           `json:"table_size"`
	LastSignTime   time.Duration `json:"last_sign_time"`
	LastVerifyTime time.Duration `json:"last_verify_time"`
}

// ScalarMultiplier 按策略选择乘法算法. 基点G的乘法使用实例自带的预计算表.
type ScalarMultiplier struct {
	curve  *CurveParams
	policy Policy
	w      uint
	table  *PrecomputeTable
}

// NewMultiplier 构造乘法器并同步建立预计算表
func NewMultiplier(c *CurveParams, policy Policy, windowSize int) (*ScalarMultiplier, error) {
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}
	if windowSize < 1 || windowSize > MaxWindowSize {
		return nil, fmt.Errorf("sm2: window size %d out of range [1,%d]", windowSize, MaxWindowSize)
	}
	m := &ScalarMultiplier{curve: c, policy: policy, w: uint(windowSize)}
	m.table = newPrecomputeTable(c, policy, m.w)
	return m, nil
}

// Policy 返回策略
func (m *ScalarMultiplier) Policy() Policy { return m.policy }

// Table 返回预计算表, none 策略为 nil
func (m *ScalarMultiplier) Table() *PrecomputeTable { return m.table }

// Stats 返回统计信息
func (m *ScalarMultiplier) Stats() Stats {
	return Stats{Policy: m.policy, WindowSize: int(m.w), TableSize: m.table.Size()}
}

// Multiply 计算 k·P, k >= 0
func (m *ScalarMultiplier) Multiply(p Point, k *big.Int) Point {
	c := m.curve
	if m.table != nil && p.Equal(c.G()) {
		// G的阶为n
		kk := new(big.Int).Mod(k, c.N)
		if m.policy == PolicyBalanced {
			return m.table.multiplyComb(c, kk)
		}
		if kk.Cmp(m.table.maxTernary) <= 0 {
			return m.table.multiplyTernary(c, kk)
		}
		return m.table.multiplyNAF(c, kk)
	}

	switch m.policy {
	case PolicyBalanced:
		return MultiplyWindow(c, p, k, int(m.w))
	case PolicyFast:
		return MultiplyNAF(c, p, k)
	}
	return c.MultiplyBaseline(p, k)
}

// NAF 非相邻形式, 低位在前, 各位属于 {-1,0,1} 且无相邻非零位
func NAF(k *big.Int) []int8 {
	r := new(big.Int).Set(k)
	naf := make([]int8, 0, r.BitLen()+1)
	for r.Sign() > 0 {
		var d int8
		if r.Bit(0) == 1 {
			// 2 - (r mod 4)
			d = 2 - int8(r.Bit(1)<<1|r.Bit(0))
			if d == 1 {
				r.Sub(r, one)
			} else {
				r.Add(r, one)
			}
		}
		naf = append(naf, d)
		r.Rsh(r, 1)
	}
	return naf
}

// MultiplyNAF 按NAF从高位到低位: 每位倍点, +1加P, -1加-P
func MultiplyNAF(c *CurveParams, p Point, k *big.Int) Point {
	naf := NAF(k)
	neg := c.Negate(p)
	result := Infinity
	for i := len(naf) - 1; i >= 0; i-- {
		result = c.Double(result)
		switch naf[i] {
		case 1:
			result = c.Add(result, p)
		case -1:
			result = c.Add(result, neg)
		}
	}
	return result
}

// MultiplyWindow 固定宽度w的窗口乘法, table[i] = i·P, 高位窗口在前
func MultiplyWindow(c *CurveParams, p Point, k *big.Int, w int) Point {
	if w < 1 {
		w = DefaultWindowSize
	}
	table := make([]Point, 1<<uint(w))
	table[0] = Infinity
	for i := 1; i < len(table); i++ {
		table[i] = c.Add(table[i-1], p)
	}

	// 高位补零到w的整数倍
	nbits := (k.BitLen() + w - 1) / w * w
	result := Infinity
	for pos := nbits - w; pos >= 0; pos -= w {
		for i := 0; i < w; i++ {
			result = c.Double(result)
		}
		if v := window(k, uint(pos), uint(w)); v != 0 {
			result = c.Add(result, table[v])
		}
	}
	return result
}

// window 取k中从pos开始的w位
func window(k *big.Int, pos, w uint) int {
	v := 0
	for i := int(w) - 1; i >= 0; i-- {
		v = v<<1 | int(k.Bit(int(pos)+i))
	}
	return v
}
