package cryptocore

import (
	"crypto/subtle"
	"encoding/binary"
	"log"
)

// Uint64BE returns "v" as 8 big-endian bytes.
func Uint64BE(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Uint32BE returns "v" as 4 big-endian bytes.
func Uint32BE(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// ConstantTimeEqual compares "a" and "b" in time that depends only on
// their lengths.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// PadISO7816 appends 0x80 and zero bytes to "in" until it is "size" bytes
// long (ISO/IEC 7816-4 padding). "in" must be shorter than "size".
func PadISO7816(in []byte, size int) []byte {
	if len(in) >= size {
		log.Panicf("PadISO7816: input length %d >= block size %d", len(in), size)
	}
	out := make([]byte, size)
	copy(out, in)
	out[len(in)] = 0x80
	return out
}

// Dbl multiplies the 16-byte block "b" by x in GF(2^128), in place.
// Reduction uses the polynomial x^128 + x^7 + x^2 + x + 1 (0x87).
func Dbl(b []byte) {
	if len(b) != BlockSize {
		log.Panicf("Dbl: block must be %d bytes, got %d", BlockSize, len(b))
	}
	var carry byte
	for i := len(b) - 1; i >= 0; i-- {
		c := b[i] >> 7
		b[i] = b[i]<<1 | carry
		carry = c
	}
	// Branch-free: the mask is 0xff iff the top bit was set.
	b[len(b)-1] ^= 0x87 & -carry
}

// Xor writes a[i] ^ b[i] into dst for every index of dst.
func Xor(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// XorEnd returns a copy of "in" whose rightmost len(d) bytes are xored with
// "d". len(in) must be >= len(d).
func XorEnd(in, d []byte) []byte {
	if len(in) < len(d) {
		log.Panicf("XorEnd: input length %d < %d", len(in), len(d))
	}
	out := make([]byte, len(in))
	copy(out, in)
	tail := out[len(out)-len(d):]
	Xor(tail, tail, d)
	return out
}
