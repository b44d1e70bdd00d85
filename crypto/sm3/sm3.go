package sm3

import (
	"encoding/binary"
	"hash"
)

// Size SM3摘要长度(字节)
const Size = 32

// BlockSize SM3分组长度(字节)
const BlockSize = 64

var iv = [8]uint32{
	0x7380166f, 0x4914b2b9, 0x172442d7, 0xda8a0600,
	0xa96f30bc, 0x163138aa, 0xe38dee4d, 0xb0fb0e4e,
}

// SM3 sm3中的结构体
type SM3 struct {
	digest      [8]uint32 // 摘要表示V的部分取值
	length      uint64    // message长度(bit)
	unhandleMsg []byte    // 不足一个分组的剩余数据
}

func ff0(x, y, z uint32) uint32 { return x ^ y ^ z }

func ff1(x, y, z uint32) uint32 { return (x & y) | (x & z) | (y & z) }

func gg0(x, y, z uint32) uint32 { return x ^ y ^ z }

func gg1(x, y, z uint32) uint32 { return (x & y) | (^x & z) }

func p0(x uint32) uint32 { return x ^ leftRotate(x, 9) ^ leftRotate(x, 17) }

func p1(x uint32) uint32 { return x ^ leftRotate(x, 15) ^ leftRotate(x, 23) }

func leftRotate(x uint32, i uint32) uint32 { return x<<(i%32) | x>>(32-i%32) }

// pad 按 GM/T 0004 填充剩余消息, 结果长度为64的整数倍
func (sm3 *SM3) pad() []byte {
	msg := make([]byte, len(sm3.unhandleMsg), len(sm3.unhandleMsg)+2*BlockSize)
	copy(msg, sm3.unhandleMsg)
	msg = append(msg, 0x80) // 追加 '1'
	for len(msg)%BlockSize != 56 {
		msg = append(msg, 0x00)
	}
	var l [8]byte
	binary.BigEndian.PutUint64(l[:], sm3.length)
	return append(msg, l[:]...)
}

// update 压缩函数, 处理msg中所有完整分组
func (sm3 *SM3) update(msg []byte) {
	var w [68]uint32
	var w1 [64]uint32

	a, b, c, d, e, f, g, h := sm3.digest[0], sm3.digest[1], sm3.digest[2], sm3.digest[3], sm3.digest[4], sm3.digest[5], sm3.digest[6], sm3.digest[7]
	for len(msg) >= BlockSize {
		for i := 0; i < 16; i++ {
			w[i] = binary.BigEndian.Uint32(msg[4*i : 4*(i+1)])
		}
		for i := 16; i < 68; i++ {
			w[i] = p1(w[i-16]^w[i-9]^leftRotate(w[i-3], 15)) ^ leftRotate(w[i-13], 7) ^ w[i-6]
		}
		for i := 0; i < 64; i++ {
			w1[i] = w[i] ^ w[i+4]
		}
		A, B, C, D, E, F, G, H := a, b, c, d, e, f, g, h
		for i := 0; i < 64; i++ {
			var ss1, ss2, tt1, tt2 uint32
			if i < 16 {
				ss1 = leftRotate(leftRotate(A, 12)+E+leftRotate(0x79cc4519, uint32(i)), 7)
				ss2 = ss1 ^ leftRotate(A, 12)
				tt1 = ff0(A, B, C) + D + ss2 + w1[i]
				tt2 = gg0(E, F, G) + H + ss1 + w[i]
			} else {
				ss1 = leftRotate(leftRotate(A, 12)+E+leftRotate(0x7a879d8a, uint32(i)), 7)
				ss2 = ss1 ^ leftRotate(A, 12)
				tt1 = ff1(A, B, C) + D + ss2 + w1[i]
				tt2 = gg1(E, F, G) + H + ss1 + w[i]
			}
			D = C
			C = leftRotate(B, 9)
			B = A
			A = tt1
			H = G
			G = leftRotate(F, 19)
			F = E
			E = p0(tt2)
		}
		a ^= A
		b ^= B
		c ^= C
		d ^= D
		e ^= E
		f ^= F
		g ^= G
		h ^= H
		msg = msg[BlockSize:]
	}
	sm3.digest[0], sm3.digest[1], sm3.digest[2], sm3.digest[3], sm3.digest[4], sm3.digest[5], sm3.digest[6], sm3.digest[7] = a, b, c, d, e, f, g, h
}

// New 创建哈希计算实例
func New() hash.Hash {
	var sm3 SM3

	sm3.Reset()
	return &sm3
}

// BlockSize 返回哈希的底层块大小
func (sm3 *SM3) BlockSize() int { return BlockSize }

// Size 返回Sum将返回的字节数
func (sm3 *SM3) Size() int { return Size }

// Reset 恢复初始向量并清空缓冲
func (sm3 *SM3) Reset() {
	sm3.digest = iv
	sm3.length = 0
	sm3.unhandleMsg = sm3.unhandleMsg[:0]
}

// Write 向正在运行的散列中添加更多数据, 不返回错误
func (sm3 *SM3) Write(p []byte) (int, error) {
	toWrite := len(p)
	sm3.length += uint64(len(p)) * 8

	msg := append(sm3.unhandleMsg, p...)
	nblocks := len(msg) / BlockSize
	sm3.update(msg[:nblocks*BlockSize])

	// 保留未处理的消息
	rest := msg[nblocks*BlockSize:]
	sm3.unhandleMsg = append(make([]byte, 0, BlockSize), rest...)

	return toWrite, nil
}

// Sum 将当前散列追加到in并返回结果切片, 不改变底层哈希状态
func (sm3 *SM3) Sum(in []byte) []byte {
	d := *sm3
	d.update(d.pad())

	var out [Size]byte
	for i := 0; i < 8; i++ {
		binary.BigEndian.PutUint32(out[i*4:], d.digest[i])
	}
	return append(in, out[:]...)
}

// Sm3Sum 计算data的SM3摘要
func Sm3Sum(data []byte) []byte {
	var sm3 SM3

	sm3.Reset()
	sm3.Write(data)
	return sm3.Sum(nil)
}
