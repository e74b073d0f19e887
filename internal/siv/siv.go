// Package siv implements AES-SIV deterministic authenticated encryption
// (RFC 5297) on top of AES-CMAC and AES-CTR.
//
// Unlike most AES-SIV libraries, the two halves of the key are passed
// separately: the vault format stores the CTR key ("primary master key")
// and the S2V key ("hmac master key") as independent values.
package siv

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/jacobsa/crypto/cmac"

	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
)

const (
	// IVLen is the length of the synthetic IV that prefixes every
	// ciphertext.
	IVLen = cryptocore.BlockSize
	// Overhead is the number of bytes added by Encrypt.
	Overhead = IVLen
)

var zeroBlock = make([]byte, cryptocore.BlockSize)

// S2V computes the synthetic IV over "associatedData" and "plaintext"
// using AES-CMAC under "macKey".
func S2V(macKey, plaintext []byte, associatedData ...[]byte) ([]byte, error) {
	if err := cryptocore.CheckKeyLen(macKey); err != nil {
		return nil, err
	}
	h, err := cmac.New(macKey)
	if err != nil {
		return nil, err
	}
	mac := func(in []byte) []byte {
		h.Reset()
		h.Write(in)
		return h.Sum(nil)
	}

	d := mac(zeroBlock)
	for _, s := range associatedData {
		cryptocore.Dbl(d)
		cryptocore.Xor(d, d, mac(s))
	}

	var t []byte
	if len(plaintext) >= cryptocore.BlockSize {
		t = cryptocore.XorEnd(plaintext, d)
	} else {
		cryptocore.Dbl(d)
		t = cryptocore.PadISO7816(plaintext, cryptocore.BlockSize)
		cryptocore.Xor(t, t, d)
	}
	return mac(t), nil
}

// ctr xors "in" with the AES-CTR keystream derived from "iv" and writes the
// result to "out". Bits 31 and 63 of the counter are cleared first, as
// RFC 5297 section 2.5 requires.
func ctr(cipherKey, iv, out, in []byte) error {
	block, err := aes.NewCipher(cipherKey)
	if err != nil {
		return err
	}
	q := make([]byte, IVLen)
	copy(q, iv)
	q[8] &= 0x7f
	q[12] &= 0x7f
	// With bit 63 cleared the low 64 bits cannot overflow for any input
	// we can hold in memory, so the stdlib 128-bit increment matches the
	// RFC's 64-bit one.
	cipher.NewCTR(block, q).XORKeyStream(out, in)
	return nil
}

// Encrypt returns IV ‖ ciphertext. The output is a pure function of the
// inputs: identical inputs always produce identical output.
func Encrypt(cipherKey, macKey, plaintext []byte, associatedData ...[]byte) ([]byte, error) {
	if err := cryptocore.CheckKeyLen(cipherKey); err != nil {
		return nil, err
	}
	iv, err := S2V(macKey, plaintext, associatedData...)
	if err != nil {
		return nil, err
	}
	out := make([]byte, IVLen+len(plaintext))
	copy(out, iv)
	if err := ctr(cipherKey, iv, out[IVLen:], plaintext); err != nil {
		return nil, fmt.Errorf("%w: %v", cryptocore.ErrEncryptionFailed, err)
	}
	return out, nil
}

// Decrypt verifies and decrypts IV ‖ ciphertext. On any mismatch it returns
// cryptocore.ErrAuthenticationFailed and no plaintext.
func Decrypt(cipherKey, macKey, ivCiphertext []byte, associatedData ...[]byte) ([]byte, error) {
	if err := cryptocore.CheckKeyLen(cipherKey); err != nil {
		return nil, err
	}
	if err := cryptocore.CheckKeyLen(macKey); err != nil {
		return nil, err
	}
	if len(ivCiphertext) < IVLen {
		return nil, fmt.Errorf("%w: input is %d bytes, shorter than the IV",
			cryptocore.ErrAuthenticationFailed, len(ivCiphertext))
	}
	iv := ivCiphertext[:IVLen]
	ciphertext := ivCiphertext[IVLen:]
	plaintext := make([]byte, len(ciphertext))
	if err := ctr(cipherKey, iv, plaintext, ciphertext); err != nil {
		return nil, fmt.Errorf("%w: %v", cryptocore.ErrDecryptionFailed, err)
	}
	control, err := S2V(macKey, plaintext, associatedData...)
	if err != nil {
		return nil, err
	}
	if !cryptocore.ConstantTimeEqual(control, iv) {
		for i := range plaintext {
			plaintext[i] = 0
		}
		return nil, cryptocore.ErrAuthenticationFailed
	}
	return plaintext, nil
}
