// Package vaultformat holds the table of supported vault format versions
// and the behaviour each of them selects.
package vaultformat

import (
	"errors"
	"fmt"
)

const (
	// MinVersion is the oldest vault format we can read.
	MinVersion = 3
	// MaxVersion is the newest vault format we can read.
	MaxVersion = 8
	// Latest is the version new vaults are created with.
	Latest = MaxVersion
)

// ErrUnsupportedVaultFormat is returned for versions outside
// [MinVersion, MaxVersion].
var ErrUnsupportedVaultFormat = errors.New("unsupported vault format")

// NameEncoding is the text encoding applied to encrypted names.
type NameEncoding int

const (
	// Base32 is RFC 4648 base32 with padding, used up to v6.
	Base32 NameEncoding = iota
	// Base64URL is RFC 4648 URL-safe base64 with padding, used from v7 on.
	Base64URL
)

func (e NameEncoding) String() string {
	switch e {
	case Base32:
		return "base32"
	case Base64URL:
		return "base64url"
	}
	return fmt.Sprintf("NameEncoding(%d)", int(e))
}

// Layout is the on-disk arrangement of the ciphertext tree.
type Layout int

const (
	// LayoutFlat is the v3 layout. Directory marker files carry a "_"
	// suffix.
	LayoutFlat Layout = iota
	// LayoutDirPrefix is the v4-v6 layout. Directory marker files carry a
	// "0" prefix, long names are moved to "m/".
	LayoutDirPrefix
	// LayoutSharded is the v7/v8 layout using ".c9r" and ".c9s" entries.
	LayoutSharded
)

func (l Layout) String() string {
	switch l {
	case LayoutFlat:
		return "flat"
	case LayoutDirPrefix:
		return "dir-prefix"
	case LayoutSharded:
		return "sharded"
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

// Format describes one vault format version. Values are immutable once
// returned by Lookup.
type Format struct {
	Version uint32
	// NameEncoding is the alphabet for encrypted names.
	NameEncoding NameEncoding
	// SizeObfuscated means the file header embeds the cleartext size and the
	// content is followed by random padding.
	SizeObfuscated bool
	// NormalizePassphrase means passphrases are converted to Unicode NFC
	// before key derivation.
	NormalizePassphrase bool
	// NormalizeNames means cleartext file names are converted to NFC before
	// encryption.
	NormalizeNames bool
	Layout         Layout
	// ShorteningThreshold is the encrypted name length (in characters,
	// including any marker) above which names are shortened.
	ShorteningThreshold int
}

// table is built in ascending order, each entry starting as a copy of the
// previous one.
var table = func() map[uint32]Format {
	m := make(map[uint32]Format)
	f := Format{
		Version:             3,
		NameEncoding:        Base32,
		SizeObfuscated:      true,
		Layout:              LayoutFlat,
		ShorteningThreshold: 129,
	}
	m[3] = f

	f.Version = 4
	f.Layout = LayoutDirPrefix
	m[4] = f

	f.Version = 5
	f.SizeObfuscated = false
	m[5] = f

	f.Version = 6
	f.NormalizePassphrase = true
	m[6] = f

	f.Version = 7
	f.NameEncoding = Base64URL
	f.NormalizeNames = true
	f.Layout = LayoutSharded
	f.ShorteningThreshold = 220
	m[7] = f

	f.Version = 8
	m[8] = f
	return m
}()

// Lookup returns the Format for "version".
func Lookup(version uint32) (Format, error) {
	f, ok := table[version]
	if !ok {
		return Format{}, fmt.Errorf("%w: version %d (supported: %d-%d)",
			ErrUnsupportedVaultFormat, version, MinVersion, MaxVersion)
	}
	return f, nil
}

// Supported returns all known formats in ascending version order.
func Supported() []Format {
	out := make([]Format, 0, len(table))
	for v := uint32(MinVersion); v <= MaxVersion; v++ {
		out = append(out, table[v])
	}
	return out
}

// NormalizePassphrase reports whether "version" converts passphrases to
// NFC before key derivation. Unlike Lookup it also answers for versions we
// cannot otherwise handle, because the master key file codec must derive
// the same key regardless.
func NormalizePassphrase(version uint32) bool {
	return version >= 6
}
