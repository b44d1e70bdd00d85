package aes

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const BlockSize = aes.BlockSize

// AesCTRXOR aes-ctr异或加解密, key为16/24/32字节, iv为16字节
func AesCTRXOR(key, inText, iv []byte) ([]byte, error) {
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("aes: iv length must be %d", BlockSize)
	}
	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(aesBlock, iv)
	outText := make([]byte, len(inText))
	stream.XORKeyStream(outText, inText)
	return outText, nil
}
