// Package nametransform encrypts and decrypts filenames and directory ids
// and knows how they are laid out in the ciphertext tree.
package nametransform

import (
	"crypto/sha1"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
	"github.com/rfjakob/vaultcryptor/internal/siv"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
	"github.com/rfjakob/vaultcryptor/internal/vaultformat"
)

// ErrInvalidName is returned for cleartext names that cannot be stored.
var ErrInvalidName = errors.New("invalid file name")

// NameTransform is used to transform filenames.
// It is safe for concurrent use.
type NameTransform struct {
	siv    *siv.Cipher
	format vaultformat.Format
	// enc is base32 or base64url with padding, depending on the format
	enc encoding
}

type encoding interface {
	EncodeToString(src []byte) string
	DecodeString(s string) ([]byte, error)
}

// New returns a new NameTransform instance.
func New(c *siv.Cipher, format vaultformat.Format) *NameTransform {
	var enc encoding = base32.StdEncoding
	if format.NameEncoding == vaultformat.Base64URL {
		enc = base64.URLEncoding
	}
	return &NameTransform{
		siv:    c,
		format: format,
		enc:    enc,
	}
}

// Format returns the vault format.
func (n *NameTransform) Format() vaultformat.Format {
	return n.format
}

// EncryptDirectoryID maps the directory id "id" to the 32 character
// string that names its ciphertext directory:
// base32(SHA1(AES-SIV(id))). The output length does not depend on the
// input length.
func (n *NameTransform) EncryptDirectoryID(id string) string {
	ct := n.siv.Seal(nil, []byte(id))
	h := sha1.Sum(ct)
	return base32.StdEncoding.EncodeToString(h[:])
}

// EncryptFilename encrypts "name" bound to the directory id "dirID".
// The result is deterministic.
func (n *NameTransform) EncryptFilename(name string, dirID string) (string, error) {
	if err := IsValidName(name); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidName, name, err)
	}
	if n.format.NormalizeNames {
		name = norm.NFC.String(name)
	}
	ct := n.siv.Seal(nil, []byte(name), []byte(dirID))
	return n.enc.EncodeToString(ct), nil
}

// DecryptFilename decrypts "cipherName" that was encrypted in the directory
// "dirID". A name moved to another directory fails with
// cryptocore.ErrAuthenticationFailed.
func (n *NameTransform) DecryptFilename(cipherName string, dirID string) (string, error) {
	bin, err := n.enc.DecodeString(cipherName)
	if err != nil {
		tlog.Debug.Printf("DecryptFilename %q: %v", cipherName, err)
		return "", fmt.Errorf("%w: name is not valid %s", cryptocore.ErrAuthenticationFailed, n.format.NameEncoding)
	}
	bin, err = n.siv.Open(nil, bin, []byte(dirID))
	if err != nil {
		tlog.Debug.Printf("DecryptFilename %q: %v", cipherName, err)
		return "", err
	}
	plain := string(bin)
	// A corrupted vault must never hand us "/" or "..", even if the MAC
	// matches.
	if err := IsValidName(plain); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	return plain, nil
}
