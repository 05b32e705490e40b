package utils

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters used for key and IV derivation.
const (
	scryptN = 1 << 14
	scryptR = 8
	scryptP = 1
)

// Cipher encrypts token payloads with AES-256-CBC under a key and IV derived
// once from configuration secrets.  The same secrets always derive the same
// key and IV, so ciphertext survives process restarts.  A Cipher holds no
// mutable state and is safe for concurrent use.
type Cipher struct {
	block cipher.Block
	iv    []byte
}

// NewCipher derives a 32-byte key from keySecret and a 16-byte IV from
// ivSecret, both salted with salt.
func NewCipher(keySecret, ivSecret, salt string) (*Cipher, error) {
	if keySecret == "" || ivSecret == "" || salt == "" {
		return nil, fmt.Errorf("cipher: key, iv and salt secrets are required")
	}
	key, err := scrypt.Key([]byte(keySecret), []byte(salt), scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("cipher: derive key: %w", err)
	}
	iv, err := scrypt.Key([]byte(ivSecret), []byte(salt), scryptN, scryptR, scryptP, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("cipher: derive iv: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	return &Cipher{block: block, iv: iv}, nil
}

// Encrypt returns the hex encoded ciphertext of plaintext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.  Any failure is reported as ErrDecryption.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrDecryption)
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, raw)
	plain, ok := pkcs7Unpad(out, aes.BlockSize)
	if !ok {
		return "", fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: plaintext is not utf-8", ErrDecryption)
	}
	return string(plain), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
