package secretbox

import (
	"encoding/base64"
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// KeySize 密钥长度
	KeySize = 32
	// NonceSize nonce长度，密文前24字节
	NonceSize = 24
)

// ParseKey 解析密钥，支持hex(64字符)与base64两种编码
func ParseKey(raw string) (*[KeySize]byte, error) {
	var data []byte
	var err error

	if len(raw) == KeySize*2 {
		data, err = hex.DecodeString(raw)
	} else {
		data, err = base64.StdEncoding.DecodeString(raw)
	}
	if err != nil {
		return nil, errors.Wrap(err, "decode secretbox key")
	}
	if len(data) != KeySize {
		return nil, errors.Errorf("secretbox key must be %d bytes, got %d", KeySize, len(data))
	}

	var key [KeySize]byte
	copy(key[:], data)
	return &key, nil
}

// Decrypt 解密base64编码的 nonce||ciphertext 数据
func Decrypt(blob string, key *[KeySize]byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, errors.Wrap(err, "decode secretbox blob")
	}
	if len(raw) < NonceSize+secretbox.Overhead {
		return nil, errors.New("secretbox blob too short")
	}

	var nonce [NonceSize]byte
	copy(nonce[:], raw[:NonceSize])

	plain, ok := secretbox.Open(nil, raw[NonceSize:], &nonce, key)
	if !ok {
		return nil, errors.New("secretbox open failed")
	}
	return plain, nil
}

// Encrypt 加密数据并输出base64编码的 nonce||ciphertext
func Encrypt(plain []byte, nonce *[NonceSize]byte, key *[KeySize]byte) string {
	out := secretbox.Seal(nonce[:], plain, nonce, key)
	return base64.StdEncoding.EncodeToString(out)
}
