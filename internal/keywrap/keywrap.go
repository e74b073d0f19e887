// Package keywrap implements the AES key wrap algorithm of RFC 3394, which
// protects the master keys inside the master key file.
package keywrap

import (
	"crypto/aes"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
)

// Overhead is the number of bytes Wrap adds.
const Overhead = 8

var (
	// ErrUnwrapFailed means the integrity check failed: wrong KEK or
	// tampered input.
	ErrUnwrapFailed = errors.New("key unwrap failed")
	// ErrInvalidInput means the input length is not usable.
	ErrInvalidInput = errors.New("invalid key wrap input")
)

// defaultIV is the initial value from RFC 3394 section 2.2.3.1.
var defaultIV = []byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// Wrap encrypts "plaintext" under "kek". The plaintext must be a multiple of
// 8 bytes and at least 16 bytes long.
func Wrap(kek, plaintext []byte) ([]byte, error) {
	if len(plaintext) < 16 || len(plaintext)%8 != 0 {
		return nil, fmt.Errorf("%w: plaintext length %d", ErrInvalidInput, len(plaintext))
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	n := len(plaintext) / 8
	out := make([]byte, 8+len(plaintext))
	copy(out, defaultIV)
	copy(out[8:], plaintext)

	b := make([]byte, 16)
	for j := 0; j < 6; j++ {
		for i := 1; i <= n; i++ {
			copy(b, out[:8])
			copy(b[8:], out[8*i:8*i+8])
			block.Encrypt(b, b)
			t := uint64(n*j + i)
			binary.BigEndian.PutUint64(out[:8], binary.BigEndian.Uint64(b[:8])^t)
			copy(out[8*i:], b[8:])
		}
	}
	return out, nil
}

// Unwrap reverses Wrap. It returns ErrUnwrapFailed if the integrity check
// value does not match.
func Unwrap(kek, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24 || len(ciphertext)%8 != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrInvalidInput, len(ciphertext))
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	n := len(ciphertext)/8 - 1
	a := make([]byte, 8)
	copy(a, ciphertext[:8])
	r := make([]byte, 8*n)
	copy(r, ciphertext[8:])

	b := make([]byte, 16)
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(n*j + i)
			binary.BigEndian.PutUint64(b[:8], binary.BigEndian.Uint64(a)^t)
			copy(b[8:], r[8*(i-1):8*i])
			block.Decrypt(b, b)
			copy(a, b[:8])
			copy(r[8*(i-1):], b[8:])
		}
	}
	if subtle.ConstantTimeCompare(a, defaultIV) != 1 {
		for i := range r {
			r[i] = 0
		}
		return nil, ErrUnwrapFailed
	}
	return r, nil
}
