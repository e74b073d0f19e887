package cryptocore

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// RandomSource is the capability to produce secure random bytes. It is
// passed explicitly to every call site that generates keys, salts or nonces,
// so tests can substitute a deterministic source.
type RandomSource interface {
	// RandBytes returns "n" random bytes or an error.
	RandBytes(n int) ([]byte, error)
}

// SystemRandom reads from the operating system CSPRNG.
type SystemRandom struct{}

// RandBytes gets "n" random bytes from crypto/rand.
func (SystemRandom) RandBytes(n int) ([]byte, error) {
	return ReaderRandom{R: rand.Reader}.RandBytes(n)
}

// ReaderRandom adapts an io.Reader into a RandomSource.
type ReaderRandom struct {
	R io.Reader
}

// RandBytes reads exactly "n" bytes from the wrapped reader.
func (r ReaderRandom) RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r.R, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomGenerationFailed, err)
	}
	return b, nil
}

// Default is the RandomSource used when callers pass nil.
var Default RandomSource = NewPrefetchRandom(SystemRandom{})

// OrDefault returns "rs", or Default if "rs" is nil.
func OrDefault(rs RandomSource) RandomSource {
	if rs == nil {
		return Default
	}
	return rs
}

// RandUint64 returns a random uint64 drawn from "rs".
func RandUint64(rs RandomSource) (uint64, error) {
	b, err := OrDefault(rs).RandBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}
