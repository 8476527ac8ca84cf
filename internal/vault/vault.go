// Package vault encrypts credentials at rest with a key derived from the
// site-wide installation secret.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// Vault performs symmetric encryption of secrets (the remote API key) before
// they reach the settings store. AES-256-CBC with a fresh random IV prepended
// to each ciphertext; the key is the SHA-256 digest of the installation secret.
type Vault struct {
	key [32]byte
}

// New derives a vault from the installation secret.
func New(siteSecret string) *Vault {
	return &Vault{key: sha256.Sum256([]byte(siteSecret))}
}

// Encrypt returns base64(iv || ciphertext) for the plaintext.
// The empty string encrypts to the empty string.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. It is deliberately lenient: empty, truncated, or
// corrupt input decrypts to the empty string, which callers treat as "no key
// configured". Callers only ever check for emptiness.
func (v *Vault) Decrypt(encoded string) string {
	if encoded == "" {
		return ""
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < aes.BlockSize+1 {
		return ""
	}

	iv := raw[:aes.BlockSize]
	ciphertext := raw[aes.BlockSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return ""
	}

	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return ""
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, ok := pkcs7Unpad(plaintext, aes.BlockSize)
	if !ok {
		return ""
	}
	return string(unpadded)
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, bool) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, false
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
