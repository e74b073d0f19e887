// Package cryptor binds a master key to a vault format and offers the
// whole-file and name operations on top of it.
package cryptor

import (
	"github.com/rfjakob/vaultcryptor/internal/contentenc"
	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
	"github.com/rfjakob/vaultcryptor/internal/nametransform"
	"github.com/rfjakob/vaultcryptor/internal/siv"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
	"github.com/rfjakob/vaultcryptor/internal/vaultformat"
)

// Cryptor is the combination of a master key and a vault format. The
// format is fixed for the lifetime of the instance. All methods are safe
// for concurrent use until Wipe() is called.
type Cryptor struct {
	masterKey *cryptocore.MasterKey
	format    vaultformat.Format
	sivCipher *siv.Cipher
	ce        *contentenc.ContentEnc
	nt        *nametransform.NameTransform
}

// New returns a Cryptor for "vaultVersion". It keeps its own copy of "mk",
// so the caller can wipe theirs. "rs" may be nil to use
// cryptocore.Default.
func New(mk *cryptocore.MasterKey, vaultVersion uint32, rs cryptocore.RandomSource) (*Cryptor, error) {
	format, err := vaultformat.Lookup(vaultVersion)
	if err != nil {
		return nil, err
	}
	own, err := cryptocore.NewMasterKey(mk.CipherKey(), mk.MacKey())
	if err != nil {
		return nil, err
	}
	sc, err := siv.FromMasterKey(own)
	if err != nil {
		own.Wipe()
		return nil, err
	}
	tlog.Debug.Printf("cryptor.New: vault format %d, layout %v, names %v",
		format.Version, format.Layout, format.NameEncoding)
	return &Cryptor{
		masterKey: own,
		format:    format,
		sivCipher: sc,
		ce:        contentenc.New(own, format, rs),
		nt:        nametransform.New(sc, format),
	}, nil
}

// Format returns the vault format.
func (c *Cryptor) Format() vaultformat.Format {
	return c.format
}

// ContentEnc returns the file content codec.
func (c *Cryptor) ContentEnc() *contentenc.ContentEnc {
	return c.ce
}

// NameTransform returns the filename codec.
func (c *Cryptor) NameTransform() *nametransform.NameTransform {
	return c.nt
}

// EncryptDirectoryID - see nametransform.NameTransform.EncryptDirectoryID.
func (c *Cryptor) EncryptDirectoryID(id string) string {
	return c.nt.EncryptDirectoryID(id)
}

// EncryptFilename - see nametransform.NameTransform.EncryptFilename.
func (c *Cryptor) EncryptFilename(name, dirID string) (string, error) {
	return c.nt.EncryptFilename(name, dirID)
}

// DecryptFilename - see nametransform.NameTransform.DecryptFilename.
func (c *Cryptor) DecryptFilename(cipherName, dirID string) (string, error) {
	return c.nt.DecryptFilename(cipherName, dirID)
}

// CiphertextSize returns the encrypted size of "plainSize" cleartext bytes.
// For size-obfuscating formats this is the lower bound.
func (c *Cryptor) CiphertextSize(plainSize uint64) uint64 {
	return contentenc.CiphertextSizeFromCleartextSize(plainSize)
}

// CleartextSize returns the cleartext size of a "cipherSize" byte file.
// Fails with contentenc.ErrSizeObfuscated for v3 and v4.
func (c *Cryptor) CleartextSize(cipherSize uint64) (uint64, error) {
	return c.ce.CleartextSize(cipherSize)
}

// Wipe overwrites the key material. The Cryptor must not be used
// afterwards.
func (c *Cryptor) Wipe() {
	c.sivCipher.Wipe()
	c.masterKey.Wipe()
}
