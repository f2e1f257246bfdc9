// Package aead 认证加密原语抽象：Seal/Open 由具体算法实现，调用方负责生成 nonce
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize 所有实现统一使用 256-bit 密钥
const KeySize = 32

// ErrOpen 认证失败（密文被篡改、截断或密钥不匹配）
var ErrOpen = errors.New("aead: message authentication failed")

// Cipher AEAD 算法
type Cipher interface {
	// Name 算法名，写入配置
	Name() string
	// NonceSize 每次 Seal 需要的 nonce 字节数
	NonceSize() int
	// Seal 加密并附加认证标签
	Seal(key, nonce, plaintext []byte) ([]byte, error)
	// Open 校验并解密；认证失败返回 ErrOpen
	Open(key, nonce, ciphertext []byte) ([]byte, error)
}

// New 按名称创建 Cipher：aes-gcm（默认）| xchacha20
func New(name string) (Cipher, error) {
	switch name {
	case "", "aes-gcm":
		return AESGCM{}, nil
	case "xchacha20":
		return XChaCha20{}, nil
	default:
		return nil, fmt.Errorf("unsupported cipher: %s", name)
	}
}

// AESGCM AES-256-GCM，96-bit nonce
type AESGCM struct{}

func (AESGCM) Name() string   { return "aes-gcm" }
func (AESGCM) NonceSize() int { return 12 }

func (c AESGCM) aead(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aes-gcm: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c AESGCM) Seal(key, nonce, plaintext []byte) ([]byte, error) {
	a, err := c.aead(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != a.NonceSize() {
		return nil, fmt.Errorf("aes-gcm: nonce must be %d bytes, got %d", a.NonceSize(), len(nonce))
	}
	return a.Seal(nil, nonce, plaintext, nil), nil
}

func (c AESGCM) Open(key, nonce, ciphertext []byte) ([]byte, error) {
	a, err := c.aead(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != a.NonceSize() {
		return nil, fmt.Errorf("aes-gcm: nonce must be %d bytes, got %d: %w", a.NonceSize(), len(nonce), ErrOpen)
	}
	pt, err := a.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}

// XChaCha20 XChaCha20-Poly1305，192-bit nonce
type XChaCha20 struct{}

func (XChaCha20) Name() string   { return "xchacha20" }
func (XChaCha20) NonceSize() int { return chacha20poly1305.NonceSizeX }

func (XChaCha20) Seal(key, nonce, plaintext []byte) ([]byte, error) {
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha20: %w", err)
	}
	if len(nonce) != a.NonceSize() {
		return nil, fmt.Errorf("xchacha20: nonce must be %d bytes, got %d", a.NonceSize(), len(nonce))
	}
	return a.Seal(nil, nonce, plaintext, nil), nil
}

func (XChaCha20) Open(key, nonce, ciphertext []byte) ([]byte, error) {
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha20: %w", err)
	}
	if len(nonce) != a.NonceSize() {
		return nil, fmt.Errorf("xchacha20: nonce must be %d bytes, got %d: %w", a.NonceSize(), len(nonce), ErrOpen)
	}
	pt, err := a.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}
