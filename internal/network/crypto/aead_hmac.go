package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrPacketTooShort 表示加密报文长度不足，无法包含完整的 nonce、密文和 MAC。
	ErrPacketTooShort = errors.New("crypto: packet too short")

	// ErrInvalidMAC 表示 HMAC 签名校验失败。
	ErrInvalidMAC = errors.New("crypto: invalid mac")

	// ErrEmptySecret 表示共享密钥为空。
	ErrEmptySecret = errors.New("crypto: shared secret is empty")
)

const (
	aes256KeySizeBytes = 32
	macKeySizeBytes    = 32

	hkdfInfo = "danmu-chat frame keys v1"
)

// AEADHMACCodec 使用 AES-256-GCM 加密并附加 HMAC-SHA256 签名。
//
// 报文格式：nonce || ciphertext || mac
//   - nonce     ：随机数，长度等于 AEAD.NonceSize()
//   - ciphertext：AES-GCM 密文（包含 GCM tag）
//   - mac       ：HMAC-SHA256(nonce || ciphertext || aad)
type AEADHMACCodec struct {
	aead    cipher.AEAD
	hmacKey []byte
}

var _ Encryptor = (*AEADHMACCodec)(nil)

// NewFromSecret 从 broker 与客户端共享的口令派生加密密钥和签名密钥。
//
// 派生使用 HKDF-SHA256，salt 为空，两端只需配置同一个 secret 即可互通。
func NewFromSecret(secret []byte) (*AEADHMACCodec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	kdf := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	keys := make([]byte, aes256KeySizeBytes+macKeySizeBytes)
	if _, err := io.ReadFull(kdf, keys); err != nil {
		return nil, err
	}
	return NewAESGCMHMACCodec(keys[:aes256KeySizeBytes], keys[aes256KeySizeBytes:])
}

// NewAESGCMHMACCodec 使用显式给定的密钥创建编码器。
//
// encKey 长度必须为 32 字节（AES-256），macKey 不能为空。
func NewAESGCMHMACCodec(encKey, macKey []byte) (*AEADHMACCodec, error) {
	if len(encKey) != aes256KeySizeBytes {
		return nil, errors.New("crypto: encKey must be 32 bytes for AES-256-GCM")
	}
	if len(macKey) == 0 {
		return nil, errors.New("crypto: macKey must not be empty")
	}
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AEADHMACCodec{
		aead:    aead,
		hmacKey: append([]byte(nil), macKey...),
	}, nil
}

// Encrypt 实现 Encryptor.Encrypt。
func (c *AEADHMACCodec) Encrypt(plaintext, aad []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	packet := make([]byte, nonceSize, nonceSize+len(plaintext)+c.aead.Overhead()+sha256.Size)
	if _, err := io.ReadFull(rand.Reader, packet); err != nil {
		return nil, err
	}

	packet = c.aead.Seal(packet, packet[:nonceSize], plaintext, aad)
	return append(packet, c.sign(packet, aad)...), nil
}

// Decrypt 实现 Encryptor.Decrypt：先校验签名，再解密。
func (c *AEADHMACCodec) Decrypt(packet, aad []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(packet) < nonceSize+c.aead.Overhead()+sha256.Size {
		return nil, ErrPacketTooShort
	}

	macOffset := len(packet) - sha256.Size
	signed, mac := packet[:macOffset], packet[macOffset:]
	if !hmac.Equal(c.sign(signed, aad), mac) {
		return nil, ErrInvalidMAC
	}

	return c.aead.Open(nil, signed[:nonceSize], signed[nonceSize:], aad)
}

func (c *AEADHMACCodec) sign(signed, aad []byte) []byte {
	m := hmac.New(sha256.New, c.hmacKey)
	_, _ = m.Write(signed)
	_, _ = m.Write(aad)
	return m.Sum(nil)
}
