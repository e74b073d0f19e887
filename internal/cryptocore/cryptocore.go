// Package cryptocore holds the low level building blocks shared by the
// vault codecs: byte and block helpers, the random source and the master key.
package cryptocore

import (
	"errors"
	"fmt"
)

const (
	// KeyLen is the default master key length in bytes. 32 for AES-256.
	KeyLen = 32
	// BlockSize is the AES block size.
	BlockSize = 16
)

var (
	// ErrCorruptedHeader is returned when a file header violates the framing
	// rules (wrong length, truncated input).
	ErrCorruptedHeader = errors.New("corrupted file header")
	// ErrAuthenticationFailed is returned on any MAC or SIV mismatch.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrEncryptionFailed covers cipher and I/O failures while encrypting.
	ErrEncryptionFailed = errors.New("encryption failed")
	// ErrDecryptionFailed covers cipher and I/O failures while decrypting.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrRandomGenerationFailed means the random source could not deliver.
	ErrRandomGenerationFailed = errors.New("random number generation failed")
	// ErrInvalidKeyLength means a key is not 16, 24 or 32 bytes long.
	ErrInvalidKeyLength = errors.New("invalid key length")
)

// CheckKeyLen returns ErrInvalidKeyLength unless "key" is usable as an AES
// key.
func CheckKeyLen(key []byte) error {
	switch len(key) {
	case 16, 24, 32:
		return nil
	}
	return fmt.Errorf("%w: %d bytes", ErrInvalidKeyLength, len(key))
}
