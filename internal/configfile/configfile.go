// Package configfile reads and writes the vault master key file and does the
// key wrapping.
package configfile

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"golang.org/x/text/unicode/norm"

	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
	"github.com/rfjakob/vaultcryptor/internal/keywrap"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
	"github.com/rfjakob/vaultcryptor/internal/vaultformat"
)

const (
	// DefaultName is the master key file name in the vault root.
	DefaultName = "masterkey.cryptomator"
	// MIMEType is advertised for master key files.
	MIMEType = "application/json"
	// SkipVersionCheck can be passed to Unlock as the expected version to
	// accept whatever version the file declares.
	SkipVersionCheck = ^uint32(0)
)

var (
	// ErrInvalidPassphrase means the wrapped keys failed their integrity
	// check, which is what a wrong passphrase or pepper looks like.
	ErrInvalidPassphrase = errors.New("invalid passphrase")
	// ErrUnauthenticVersion means the keys unwrapped fine but the version
	// field does not match its MAC.
	ErrUnauthenticVersion = errors.New("unauthentic vault version")
	// ErrVersionMismatch means the file declares a different version than
	// the caller expected.
	ErrVersionMismatch = errors.New("vault version mismatch")
	// ErrMalformed means the file could not be parsed or carries unusable
	// parameters.
	ErrMalformed = errors.New("malformed master key file")
	// ErrKeyDerivationFailed means scrypt could not run.
	ErrKeyDerivationFailed = errors.New("key derivation failed")
	// ErrKeyWrapFailed means the master key could not be wrapped.
	ErrKeyWrapFailed = errors.New("key wrap failed")
)

// MasterKeyFile is the content of a master key file. Values are produced by
// Lock and Parse and never modified afterwards.
type MasterKeyFile struct {
	// Version is the vault format version. It is authenticated by
	// VersionMac.
	Version uint32 `json:"version"`
	// ScryptSalt is the random salt passed to scrypt. The pepper, if any, is
	// appended to it at derivation time and never stored.
	ScryptSalt b64Bytes `json:"scryptSalt"`
	// ScryptCostParam is the scrypt N parameter.
	ScryptCostParam uint64 `json:"scryptCostParam"`
	// ScryptBlockSize is the scrypt r parameter.
	ScryptBlockSize uint32 `json:"scryptBlockSize"`
	// PrimaryMasterKey is the wrapped encryption key.
	PrimaryMasterKey b64Bytes `json:"primaryMasterKey"`
	// MacMasterKey is the wrapped authentication key.
	MacMasterKey b64Bytes `json:"macMasterKey"`
	// VersionMac is HMAC-SHA256(macKey, BE32(Version)).
	VersionMac b64Bytes `json:"versionMac"`
}

// UnmarshalJSON accepts "hmacMasterKey", the name Cryptomator writes, as an
// alias of "macMasterKey".
func (f *MasterKeyFile) UnmarshalJSON(data []byte) error {
	type plain MasterKeyFile
	var aux struct {
		plain
		HmacMasterKey b64Bytes `json:"hmacMasterKey"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*f = MasterKeyFile(aux.plain)
	if len(f.MacMasterKey) == 0 {
		f.MacMasterKey = aux.HmacMasterKey
	}
	return nil
}

// LockParams controls Lock. Zero values select defaults.
type LockParams struct {
	// Version is the vault format version to record. 0 means
	// vaultformat.Latest.
	Version uint32
	// Pepper is an application-specific secret appended to the salt.
	Pepper []byte
	// ScryptCostParam is the scrypt N. 0 means ScryptDefaultN.
	ScryptCostParam uint64
	// ScryptBlockSize is the scrypt r. 0 means ScryptDefaultR.
	ScryptBlockSize uint32
	// Random supplies the salt. nil means cryptocore.Default.
	Random cryptocore.RandomSource
}

// VersionMac returns HMAC-SHA256(macKey, BE32(version)).
func VersionMac(macKey []byte, version uint32) []byte {
	h := hmac.New(sha256.New, macKey)
	h.Write(cryptocore.Uint32BE(version))
	return h.Sum(nil)
}

// normalizePassphrase returns the passphrase as fed to scrypt for "version".
func normalizePassphrase(pw []byte, version uint32) []byte {
	if vaultformat.NormalizePassphrase(version) {
		return norm.NFC.Bytes(pw)
	}
	return pw
}

func kekLen(cipherKeyLen, macKeyLen int) int {
	return max(cipherKeyLen, macKeyLen)
}

// Lock wraps "mk" with a key derived from "passphrase" and returns the
// resulting master key file.
func Lock(mk *cryptocore.MasterKey, passphrase []byte, p LockParams) (*MasterKeyFile, error) {
	version := p.Version
	if version == 0 {
		version = vaultformat.Latest
	}
	if _, err := vaultformat.Lookup(version); err != nil {
		return nil, err
	}
	cipherKey := mk.CipherKey()
	macKey := mk.MacKey()
	kdf, err := NewScryptKDF(p.Random, p.ScryptCostParam, p.ScryptBlockSize,
		kekLen(len(cipherKey), len(macKey)))
	if err != nil {
		return nil, err
	}
	pw := normalizePassphrase(passphrase, version)
	kek, err := kdf.DeriveKey(pw, p.Pepper)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(kek)

	wrappedCipherKey, err := keywrap.Wrap(kek, cipherKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyWrapFailed, err)
	}
	wrappedMacKey, err := keywrap.Wrap(kek, macKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyWrapFailed, err)
	}
	return &MasterKeyFile{
		Version:          version,
		ScryptSalt:       kdf.Salt,
		ScryptCostParam:  kdf.N,
		ScryptBlockSize:  kdf.R,
		PrimaryMasterKey: wrappedCipherKey,
		MacMasterKey:     wrappedMacKey,
		VersionMac:       VersionMac(macKey, version),
	}, nil
}

// Unlock derives the key-encryption key from "passphrase" and "pepper" and
// unwraps the master key. Pass SkipVersionCheck as "expectedVersion" to
// accept any version.
//
// Checks run in this order: declared version, KDF parameters, key unwrap
// (ErrInvalidPassphrase), version MAC (ErrUnauthenticVersion).
func (f *MasterKeyFile) Unlock(passphrase, pepper []byte, expectedVersion uint32) (*cryptocore.MasterKey, error) {
	if expectedVersion != SkipVersionCheck && f.Version != expectedVersion {
		return nil, fmt.Errorf("%w: file has version %d, expected %d",
			ErrVersionMismatch, f.Version, expectedVersion)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	kdf := f.kdf()
	tlog.Debug.Printf("Unlock: version %d, scrypt logN=%d r=%d", f.Version, kdf.LogN(), kdf.R)
	kek, err := kdf.DeriveKey(normalizePassphrase(passphrase, f.Version), pepper)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(kek)

	cipherKey, err := keywrap.Unwrap(kek, f.PrimaryMasterKey)
	if err != nil {
		tlog.Debug.Printf("Unlock: primaryMasterKey: %v", err)
		return nil, ErrInvalidPassphrase
	}
	defer memguard.WipeBytes(cipherKey)
	macKey, err := keywrap.Unwrap(kek, f.MacMasterKey)
	if err != nil {
		tlog.Debug.Printf("Unlock: macMasterKey: %v", err)
		return nil, ErrInvalidPassphrase
	}
	defer memguard.WipeBytes(macKey)

	if !hmac.Equal(VersionMac(macKey, f.Version), f.VersionMac) {
		return nil, fmt.Errorf("%w: version %d", ErrUnauthenticVersion, f.Version)
	}
	return cryptocore.NewMasterKey(cipherKey, macKey)
}

// ChangePassphrase unlocks the file with "oldPass" and returns a new file
// that holds the same master key under "newPass" and a fresh salt.
// "costParam" 0 keeps the current scrypt cost.
func (f *MasterKeyFile) ChangePassphrase(oldPass, newPass, pepper []byte, costParam uint64) (*MasterKeyFile, error) {
	mk, err := f.Unlock(oldPass, pepper, SkipVersionCheck)
	if err != nil {
		return nil, err
	}
	defer mk.Wipe()
	if costParam == 0 {
		costParam = f.ScryptCostParam
	}
	return Lock(mk, newPass, LockParams{
		Version:         f.Version,
		Pepper:          pepper,
		ScryptCostParam: costParam,
		ScryptBlockSize: f.ScryptBlockSize,
	})
}

func (f *MasterKeyFile) kdf() ScryptKDF {
	return ScryptKDF{
		Salt:   f.ScryptSalt,
		N:      f.ScryptCostParam,
		R:      f.ScryptBlockSize,
		KeyLen: kekLen(len(f.PrimaryMasterKey)-keywrap.Overhead, len(f.MacMasterKey)-keywrap.Overhead),
	}
}

// validate checks everything that can be checked without the passphrase.
func (f *MasterKeyFile) validate() error {
	for name, k := range map[string][]byte{
		"primaryMasterKey": f.PrimaryMasterKey,
		"macMasterKey":     f.MacMasterKey,
	} {
		switch len(k) {
		case 16 + keywrap.Overhead, 24 + keywrap.Overhead, 32 + keywrap.Overhead:
		default:
			return fmt.Errorf("%w: %s has invalid length %d", ErrMalformed, name, len(k))
		}
	}
	if len(f.VersionMac) != sha256.Size {
		return fmt.Errorf("%w: versionMac has invalid length %d", ErrMalformed, len(f.VersionMac))
	}
	kdf := f.kdf()
	if err := kdf.validateParams(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Marshal returns the JSON representation.
func (f *MasterKeyFile) Marshal() ([]byte, error) {
	js, err := json.MarshalIndent(f, "", "\t")
	if err != nil {
		return nil, err
	}
	// For convenience for the user, add a newline at the end.
	return append(js, '\n'), nil
}

// Parse decodes a master key file. It only checks the JSON structure; key
// material is validated by Unlock.
func Parse(js []byte) (*MasterKeyFile, error) {
	var f MasterKeyFile
	if err := json.Unmarshal(js, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(f.ScryptSalt) == 0 || len(f.PrimaryMasterKey) == 0 ||
		len(f.MacMasterKey) == 0 || len(f.VersionMac) == 0 {
		return nil, fmt.Errorf("%w: required field missing", ErrMalformed)
	}
	return &f, nil
}

// Load reads and parses the master key file "filename".
func Load(filename string) (*MasterKeyFile, error) {
	js, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	f, err := Parse(js)
	if err != nil {
		tlog.Warn.Printf("Failed to parse %q", filename)
		return nil, err
	}
	return f, nil
}

// WriteFile - write out the file in JSON format to "filename.tmp"
// then rename over "filename".
// This way a passphrase change atomically replaces the file.
func (f *MasterKeyFile) WriteFile(filename string) error {
	js, err := f.Marshal()
	if err != nil {
		return err
	}
	tmp := filename + ".tmp"
	// 0400 permissions: the master key file should be kept secret and never
	// be written to.
	fd, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0400)
	if err != nil {
		return err
	}
	_, err = fd.Write(js)
	if err == nil {
		err = fd.Sync()
	}
	if err2 := fd.Close(); err == nil {
		err = err2
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filename)
}
