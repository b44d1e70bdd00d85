package sm2

import (
	"fmt"
	"math/big"
	"sync"
)

// CurveParams 短Weierstrass曲线 y² = x³ + ax + b (mod p) 的参数
type CurveParams struct {
	Name    string
	P       *big.Int // 素域模数
	A, B    *big.Int // 曲线系数
	N       *big.Int // 基点阶
	Gx, Gy  *big.Int // 基点
	H       int      // 余因子
	BitSize int
}

// Point 仿射坐标点, 零值为无穷远点
type Point struct {
	X, Y *big.Int
}

// Infinity 无穷远点(群单位元)
var Infinity = Point{}

// IsInfinity 是否为无穷远点
func (p Point) IsInfinity() bool {
	return p.X == nil || p.Y == nil
}

// Equal 坐标相等或同为无穷远点
func (p Point) Equal(q Point) bool {
	if p.IsInfinity() || q.IsInfinity() {
		return p.IsInfinity() && q.IsInfinity()
	}
	return p.X.Cmp(q.X) == 0 && p.Y.Cmp(q.Y) == 0
}

func (p Point) String() string {
	if p.IsInfinity() {
		return "Point(infinity)"
	}
	return fmt.Sprintf("Point(%#x, %#x)", p.X, p.Y)
}

var (
	initonce sync.Once
	sm2P256  *CurveParams
)

func initP256Sm2() {
	sm2P256 = &CurveParams{Name: "SM2-P-256", H: 1, BitSize: 256}
	sm2P256.P, _ = new(big.Int).SetString("FFFFFFFEFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF00000000FFFFFFFFFFFFFFFF", 16)
	sm2P256.A, _ = new(big.Int).SetString("FFFFFFFEFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF00000000FFFFFFFFFFFFFFFC", 16)
	sm2P256.B, _ = new(big.Int).SetString("28E9FA9E9D9F5E344D5A9E4BCF6509A7F39789F515AB8F92DDBCBD414D940E93", 16)
	sm2P256.N, _ = new(big.Int).SetString("FFFFFFFEFFFFFFFFFFFFFFFFFFFFFFFF7203DF6B21C6052B53BBF40939D54123", 16)
	sm2P256.Gx, _ = new(big.Int).SetString("32C4AE2C1F1981195F9904466A39C9948FE30BBFF2660BE1715A4589334C74C7", 16)
	sm2P256.Gy, _ = new(big.Int).SetString("BC3736A2F4F6779C59BDCEE36B692153D0A9877CC62A474002DF32E52139F0A0", 16)
}

// P256Sm2 返回SM2推荐曲线参数, 进程内共享且只读
func P256Sm2() *CurveParams {
	initonce.Do(initP256Sm2)
	return sm2P256
}

// G 基点
func (c *CurveParams) G() Point {
	return Point{X: c.Gx, Y: c.Gy}
}

// IsOnCurve 检查点是否满足曲线方程, 无穷远点视为在曲线上
func (c *CurveParams) IsOnCurve(p Point) bool {
	if p.IsInfinity() {
		return true
	}
	if p.X.Sign() < 0 || p.X.Cmp(c.P) >= 0 || p.Y.Sign() < 0 || p.Y.Cmp(c.P) >= 0 {
		return false
	}
	y2 := new(big.Int).Mul(p.Y, p.Y)
	y2.Mod(y2, c.P)
	return y2.Cmp(c.rhs(p.X)) == 0
}

// rhs x³ + ax + b (mod p)
func (c *CurveParams) rhs(x *big.Int) *big.Int {
	x3 := new(big.Int).Mul(x, x)
	x3.Mul(x3, x)
	ax := new(big.Int).Mul(c.A, x)
	x3.Add(x3, ax)
	x3.Add(x3, c.B)
	return x3.Mod(x3, c.P)
}

// mustInverse 点运算中分母必然与p互素, 失败说明输入点不合法
func (c *CurveParams) mustInverse(a *big.Int) *big.Int {
	inv, err := ModInverse(a, c.P)
	if err != nil {
		panic(err)
	}
	return inv
}

// Add 仿射坐标点加, 包含倍点与单位元的全部情形
func (c *CurveParams) Add(p, q Point) Point {
	if p.IsInfinity() {
		return q
	}
	if q.IsInfinity() {
		return p
	}
	if p.X.Cmp(q.X) == 0 {
		if p.Y.Cmp(q.Y) != 0 {
			return Infinity
		}
		return c.Double(p)
	}

	// λ = (qy - py) / (qx - px)
	num := new(big.Int).Sub(q.Y, p.Y)
	den := new(big.Int).Sub(q.X, p.X)
	lambda := num.Mul(num, c.mustInverse(den))
	lambda.Mod(lambda, c.P)
	return c.chord(lambda, p, q)
}

// Double 倍点, y = 0 时切线垂直返回无穷远点
func (c *CurveParams) Double(p Point) Point {
	if p.IsInfinity() || p.Y.Sign() == 0 {
		return Infinity
	}

	// λ = (3x² + a) / 2y
	num := new(big.Int).Mul(p.X, p.X)
	num.Mul(num, three)
	num.Add(num, c.A)
	den := new(big.Int).Lsh(p.Y, 1)
	lambda := num.Mul(num, c.mustInverse(den))
	lambda.Mod(lambda, c.P)
	return c.chord(lambda, p, p)
}

func (c *CurveParams) chord(lambda *big.Int, p, q Point) Point {
	x3 := new(big.Int).Mul(lambda, lambda)
	x3.Sub(x3, p.X)
	x3.Sub(x3, q.X)
	x3.Mod(x3, c.P)

	y3 := new(big.Int).Sub(p.X, x3)
	y3.Mul(y3, lambda)
	y3.Sub(y3, p.Y)
	y3.Mod(y3, c.P)
	return Point{X: x3, Y: y3}
}

// Negate -P = (x, -y mod p)
func (c *CurveParams) Negate(p Point) Point {
	if p.IsInfinity() {
		return Infinity
	}
	y := new(big.Int).Neg(p.Y)
	return Point{X: new(big.Int).Set(p.X), Y: y.Mod(y, c.P)}
}

// MultiplyBaseline 从低位开始的 double-and-add, 其余实现都以它为准
func (c *CurveParams) MultiplyBaseline(p Point, k *big.Int) Point {
	result := Infinity
	addend := p
	for i := 0; i < k.BitLen(); i++ {
		if k.Bit(i) == 1 {
			result = c.Add(result, addend)
		}
		addend = c.Double(addend)
	}
	return result
}
