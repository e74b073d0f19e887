package siv

import (
	"log"

	"github.com/awnumar/memguard"

	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
)

// Cipher binds a key pair for repeated Seal and Open calls.
type Cipher struct {
	cipherKey []byte
	macKey    []byte
}

// New returns a Cipher holding private copies of both keys, so the caller
// can wipe the ones it owns.
func New(cipherKey, macKey []byte) (*Cipher, error) {
	if err := cryptocore.CheckKeyLen(cipherKey); err != nil {
		return nil, err
	}
	if err := cryptocore.CheckKeyLen(macKey); err != nil {
		return nil, err
	}
	return &Cipher{
		cipherKey: append([]byte{}, cipherKey...),
		macKey:    append([]byte{}, macKey...),
	}, nil
}

// FromMasterKey returns a Cipher for the key pair in "mk".
func FromMasterKey(mk *cryptocore.MasterKey) (*Cipher, error) {
	return New(mk.CipherKey(), mk.MacKey())
}

// Overhead is the number of bytes Seal adds.
func (c *Cipher) Overhead() int {
	return Overhead
}

// Seal encrypts "plaintext" bound to "associatedData" and appends
// IV ‖ ciphertext to "dst".
func (c *Cipher) Seal(dst, plaintext []byte, associatedData ...[]byte) []byte {
	c.check()
	out, err := Encrypt(c.cipherKey, c.macKey, plaintext, associatedData...)
	if err != nil {
		// Key lengths were validated in New(), so this cannot happen.
		log.Panic(err)
	}
	return append(dst, out...)
}

// Open verifies and decrypts IV ‖ ciphertext and appends the plaintext to
// "dst".
func (c *Cipher) Open(dst, ivCiphertext []byte, associatedData ...[]byte) ([]byte, error) {
	c.check()
	plain, err := Decrypt(c.cipherKey, c.macKey, ivCiphertext, associatedData...)
	if err != nil {
		return nil, err
	}
	return append(dst, plain...), nil
}

// Wipe tries to wipe the AES key from memory by overwriting it with zeros
// and setting the reference to nil.
func (c *Cipher) Wipe() {
	memguard.WipeBytes(c.cipherKey)
	memguard.WipeBytes(c.macKey)
	c.cipherKey = nil
	c.macKey = nil
}

func (c *Cipher) check() {
	if len(c.cipherKey) == 0 {
		log.Panic("Key has been wiped?")
	}
}
