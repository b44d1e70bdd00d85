package keystore

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/sea-project/sea-sm2/crypto/aes"
	"github.com/sea-project/sea-sm2/crypto/sm2"
	"github.com/sea-project/sea-sm2/crypto/sm3"
	"github.com/sea-project/sea-sm2/kvdb/types"
	"github.com/sea-project/sea-sm2/logger"
	"github.com/sea-project/sea-sm2/util/serialize"
	"golang.org/x/crypto/scrypt"
)

const (
	// 默认强度, 约需256MB内存
	StandardScryptN = 1 << 18
	StandardScryptR = 8
	StandardScryptP = 1

	// 测试或低配环境使用
	LightScryptN = 1 << 12
	LightScryptP = 6

	scryptDKLen = 32
	version     = 1
)

var (
	ErrDecrypt  = errors.New("keystore: could not decrypt key with given passphrase")
	ErrNotFound = errors.New("keystore: key not found")
	ErrExists   = errors.New("keystore: key already exists")
	ErrName     = errors.New("keystore: empty key name")
	ErrMismatch = errors.New("keystore: public key does not match private key")

	keyPrefix = []byte("k:")
)

type scryptParams struct {
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	DKLen int    `json:"dklen"`
	Salt  string `json:"salt"`
}

type cryptoJSON struct {
	Cipher     string       `json:"cipher"`
	CipherText string       `json:"ciphertext"`
	IV         string       `json:"iv"`
	KDF        string       `json:"kdf"`
	KDFParams  scryptParams `json:"kdfparams"`
	MAC        string       `json:"mac"`
}

type encryptedKeyJSON struct {
	Name      string     `json:"name"`
	PublicKey string     `json:"publickey"`
	Crypto    cryptoJSON `json:"crypto"`
	Version   int        `json:"version"`
}

// Store 口令加密的SM2私钥存储
type Store struct {
	db      types.Database
	scryptN int
	scryptR int
	scryptP int
	rand    io.Reader
}

type Option func(*Store)

// WithScryptParams 设置scrypt的N, r, p
func WithScryptParams(n, r, p int) Option {
	return func(s *Store) {
		s.scryptN = n
		s.scryptR = r
		s.scryptP = p
	}
}

func New(db types.Database, opts ...Option) *Store {
	s := &Store{db: db, scryptN: StandardScryptN, scryptR: StandardScryptR, scryptP: StandardScryptP, rand: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save 以passphrase加密kp后存入name, 同名已存在时返回 ErrExists.
// 私钥须在 [1, n-2] 内且与公钥匹配, 保证存入的密钥都能被 Load 读出.
func (s *Store) Save(name string, kp sm2.KeyPair, passphrase string) error {
	if name == "" {
		return ErrName
	}
	if err := checkKeyPair(kp); err != nil {
		return err
	}
	key := dbKey(name)
	if ok, err := s.db.Has(key); err != nil {
		return err
	} else if ok {
		return ErrExists
	}

	doc, err := s.encryptKey(name, kp, passphrase)
	if err != nil {
		return err
	}
	data, err := serialize.JsonMarshal(doc)
	if err != nil {
		return err
	}
	if err := s.db.Put(key, data); err != nil {
		return err
	}
	logger.Info("keystore saved key", "name", name, "publickey", doc.PublicKey)
	return nil
}

// Load 解密name对应的密钥, 口令错误返回 ErrDecrypt
func (s *Store) Load(name, passphrase string, engine *sm2.SM2) (sm2.KeyPair, error) {
	data, err := s.db.Get(dbKey(name))
	if err == types.ErrNotFound {
		return sm2.KeyPair{}, ErrNotFound
	}
	if err != nil {
		return sm2.KeyPair{}, err
	}
	var doc encryptedKeyJSON
	if err := serialize.JsonUnMarshal(data, &doc); err != nil {
		return sm2.KeyPair{}, fmt.Errorf("keystore: bad key document: %w", err)
	}
	if doc.Version != version {
		return sm2.KeyPair{}, fmt.Errorf("keystore: version not supported: %v", doc.Version)
	}

	raw, err := decryptKey(doc.Crypto, passphrase)
	if err != nil {
		logger.Debug("keystore decrypt failed", "name", name, "err", err)
		return sm2.KeyPair{}, err
	}
	kp, err := engine.KeyPairFromBytes(raw)
	if err != nil {
		return sm2.KeyPair{}, err
	}
	if pub := hex.EncodeToString(sm2.Compress(kp.Public)); pub != doc.PublicKey {
		return sm2.KeyPair{}, fmt.Errorf("keystore: public key mismatch, have %s want %s", pub, doc.PublicKey)
	}
	return kp, nil
}

// Delete 删除name, 不存在时返回 ErrNotFound
func (s *Store) Delete(name string) error {
	key := dbKey(name)
	ok, err := s.db.Has(key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return s.db.Delete(key)
}

// List 按字典序返回全部密钥名
func (s *Store) List() ([]string, error) {
	keys, err := s.db.Keys(keyPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, string(bytes.TrimPrefix(k, keyPrefix)))
	}
	sort.Strings(names)
	return names, nil
}

// Close 关闭底层存储
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) encryptKey(name string, kp sm2.KeyPair, passphrase string) (*encryptedKeyJSON, error) {
	salt := make([]byte, 32)
	if _, err := io.ReadFull(s.rand, salt); err != nil {
		return nil, fmt.Errorf("keystore: reading salt: %w", err)
	}
	derivedKey, err := scrypt.Key([]byte(passphrase), salt, s.scryptN, s.scryptR, s.scryptP, scryptDKLen)
	if err != nil {
		return nil, err
	}
	encryptKey := derivedKey[:16]

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(s.rand, iv); err != nil {
		return nil, fmt.Errorf("keystore: reading iv: %w", err)
	}
	cipherText, err := aes.AesCTRXOR(encryptKey, kp.PrivateBytes(), iv)
	if err != nil {
		return nil, err
	}
	mac := keyMAC(derivedKey[16:32], cipherText)

	return &encryptedKeyJSON{
		Name:      name,
		PublicKey: hex.EncodeToString(sm2.Compress(kp.Public)),
		Crypto: cryptoJSON{
			Cipher:     "aes-128-ctr",
			CipherText: hex.EncodeToString(cipherText),
			IV:         hex.EncodeToString(iv),
			KDF:        "scrypt",
			KDFParams: scryptParams{
				N:     s.scryptN,
				R:     s.scryptR,
				P:     s.scryptP,
				DKLen: scryptDKLen,
				Salt:  hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(mac),
		},
		Version: version,
	}, nil
}

func decryptKey(c cryptoJSON, passphrase string) ([]byte, error) {
	if c.Cipher != "aes-128-ctr" {
		return nil, fmt.Errorf("keystore: cipher not supported: %v", c.Cipher)
	}
	if c.KDF != "scrypt" {
		return nil, fmt.Errorf("keystore: kdf not supported: %v", c.KDF)
	}
	mac, err := hex.DecodeString(c.MAC)
	if err != nil {
		return nil, err
	}
	iv, err := hex.DecodeString(c.IV)
	if err != nil {
		return nil, err
	}
	cipherText, err := hex.DecodeString(c.CipherText)
	if err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(c.KDFParams.Salt)
	if err != nil {
		return nil, err
	}
	p := c.KDFParams
	derivedKey, err := scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, p.DKLen)
	if err != nil {
		return nil, err
	}
	if len(derivedKey) < 32 || !bytes.Equal(keyMAC(derivedKey[16:32], cipherText), mac) {
		return nil, ErrDecrypt
	}
	return aes.AesCTRXOR(derivedKey[:16], cipherText, iv)
}

func checkKeyPair(kp sm2.KeyPair) error {
	c := sm2.P256Sm2()
	if !c.ValidPrivateKey(kp.Private) {
		return sm2.ErrInvalidPrivateKey
	}
	if !c.MultiplyBaseline(c.G(), kp.Private).Equal(kp.Public) {
		return ErrMismatch
	}
	return nil
}

// keyMAC SM3(macKey || ciphertext)
func keyMAC(macKey, cipherText []byte) []byte {
	h := sm3.New()
	h.Write(macKey)
	h.Write(cipherText)
	return h.Sum(nil)
}

func dbKey(name string) []byte {
	return append(append([]byte(nil), keyPrefix...), name...)
}
