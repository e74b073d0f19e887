package cryptocore

import (
	"log"

	"github.com/awnumar/memguard"
)

// MasterKey holds the two raw key material blocks of a vault: the AES key
// used for encryption and the key used for authentication. It must be
// wiped with Wipe() once it is no longer needed.
type MasterKey struct {
	cipherKey []byte
	macKey    []byte
}

// NewMasterKey creates a master key from raw bytes. Both slices are copied,
// so the caller can wipe the ones it owns.
func NewMasterKey(cipherKey, macKey []byte) (*MasterKey, error) {
	if err := CheckKeyLen(cipherKey); err != nil {
		return nil, err
	}
	if err := CheckKeyLen(macKey); err != nil {
		return nil, err
	}
	return &MasterKey{
		cipherKey: append([]byte{}, cipherKey...),
		macKey:    append([]byte{}, macKey...),
	}, nil
}

// GenerateMasterKey creates a new master key with "keyLen" random bytes per
// key, drawn from "rs".
func GenerateMasterKey(rs RandomSource, keyLen int) (*MasterKey, error) {
	if err := CheckKeyLen(make([]byte, keyLen)); err != nil {
		return nil, err
	}
	b, err := OrDefault(rs).RandBytes(2 * keyLen)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(b)
	return NewMasterKey(b[:keyLen], b[keyLen:])
}

// CipherKey returns the encryption key. The returned slice aliases the
// internal copy and becomes all-zero after Wipe().
func (k *MasterKey) CipherKey() []byte {
	k.check()
	return k.cipherKey
}

// MacKey returns the authentication key. The returned slice aliases the
// internal copy and becomes all-zero after Wipe().
func (k *MasterKey) MacKey() []byte {
	k.check()
	return k.macKey
}

// Equal compares two master keys in constant time.
func (k *MasterKey) Equal(o *MasterKey) bool {
	return ConstantTimeEqual(k.cipherKey, o.cipherKey) &&
		ConstantTimeEqual(k.macKey, o.macKey)
}

// Wipe tries to wipe the keys from memory by overwriting them with zeros
// and setting the references to nil.
//
// This is not bulletproof due to possible GC copies, but
// still raises to bar for extracting the key.
func (k *MasterKey) Wipe() {
	memguard.WipeBytes(k.cipherKey)
	memguard.WipeBytes(k.macKey)
	k.cipherKey = nil
	k.macKey = nil
}

// IsWiped reports whether Wipe() has been called.
func (k *MasterKey) IsWiped() bool {
	return k.cipherKey == nil
}

func (k *MasterKey) check() {
	if k.IsWiped() {
		log.Panic("Key has been wiped?")
	}
}
