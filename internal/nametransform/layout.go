package nametransform

import (
	"crypto/sha1"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rfjakob/vaultcryptor/internal/vaultformat"
)

// EntryKind is the type of a directory entry.
type EntryKind int

const (
	// KindFile is a regular file.
	KindFile EntryKind = iota
	// KindDir is a directory.
	KindDir
	// KindSymlink is a symbolic link.
	KindSymlink
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	}
	return fmt.Sprintf("EntryKind(%d)", int(k))
}

// Names used in the ciphertext tree
const (
	// DataDir holds the sharded directories.
	DataDir = "d"
	// MetadataDir holds the long name files of the v3-v6 layouts.
	MetadataDir = "m"

	// C9rSuffix marks regular v7 entries.
	C9rSuffix = ".c9r"
	// C9sSuffix marks shortened v7 entries.
	C9sSuffix = ".c9s"
	// NameFile holds the full name of a shortened v7 entry.
	NameFile = "name.c9s"
	// ContentsFile holds the content of a shortened v7 file.
	ContentsFile = "contents.c9r"
	// DirIDFile holds the id of a v7 directory.
	DirIDFile = "dir.c9r"
	// SymlinkFile holds the encrypted target of a v7 symlink.
	SymlinkFile = "symlink.c9r"

	// LngSuffix marks shortened v3-v6 entries.
	LngSuffix = ".lng"
	// dirPrefix marks directories in the v4-v6 layout. "0" is not part of the
	// base32 alphabet, so it can never clash with an encrypted name.
	dirPrefix = "0"
	// dirSuffix marks directories in the v3 layout.
	dirSuffix = "_"
)

// Entry describes where an encrypted name lives inside its ciphertext
// directory.
type Entry struct {
	Kind EntryKind
	// Name is the name of the entry in the ciphertext directory.
	Name string
	// FullName is the unshortened name. It equals Name unless Shortened.
	FullName string
	// Shortened is set when FullName exceeded the shortening threshold.
	Shortened bool
	// Payload is the path, relative to the ciphertext directory, of the
	// file holding the content, the directory id or the symlink target.
	Payload string
	// IsDirectory is set when Name itself is a directory on disk.
	IsDirectory bool
}

// EncryptEntry encrypts "name" in "dirID" and returns its Entry.
func (n *NameTransform) EncryptEntry(kind EntryKind, name string, dirID string) (Entry, error) {
	encName, err := n.EncryptFilename(name, dirID)
	if err != nil {
		return Entry{}, err
	}
	return n.EntryFor(kind, encName)
}

// EntryFor returns the Entry of the encrypted name "encName".
func (n *NameTransform) EntryFor(kind EntryKind, encName string) (Entry, error) {
	e := Entry{Kind: kind}
	switch n.format.Layout {
	case vaultformat.LayoutSharded:
		e.FullName = encName + C9rSuffix
		e.Name = e.FullName
		if len(e.FullName) > n.format.ShorteningThreshold {
			e.Shortened = true
			h := sha1.Sum([]byte(e.FullName))
			e.Name = base64.URLEncoding.EncodeToString(h[:]) + C9sSuffix
		}
		switch kind {
		case KindFile:
			e.Payload = e.Name
			if e.Shortened {
				e.Payload = filepath.Join(e.Name, ContentsFile)
				e.IsDirectory = true
			}
		case KindDir:
			e.Payload = filepath.Join(e.Name, DirIDFile)
			e.IsDirectory = true
		case KindSymlink:
			e.Payload = filepath.Join(e.Name, SymlinkFile)
			e.IsDirectory = true
		}
		return e, nil

	case vaultformat.LayoutDirPrefix, vaultformat.LayoutFlat:
		switch kind {
		case KindFile:
			e.FullName = encName
		case KindDir:
			if n.format.Layout == vaultformat.LayoutFlat {
				e.FullName = encName + dirSuffix
			} else {
				e.FullName = dirPrefix + encName
			}
		default:
			return Entry{}, fmt.Errorf("%v entries are not supported in vault format %d", kind, n.format.Version)
		}
		e.Name = e.FullName
		if len(e.FullName) > n.format.ShorteningThreshold {
			e.Shortened = true
			e.Name = HashLongName(e.FullName)
		}
		e.Payload = e.Name
		return e, nil
	}
	return Entry{}, fmt.Errorf("unknown layout %v", n.format.Layout)
}

// SplitFullName reverses EntryFor for an unshortened name: it strips the
// suffix or marker and returns the kind it implies. For the sharded layout
// the kind cannot be told from the name and KindFile is returned.
func (n *NameTransform) SplitFullName(fullName string) (EntryKind, string, error) {
	switch n.format.Layout {
	case vaultformat.LayoutSharded:
		enc, ok := strings.CutSuffix(fullName, C9rSuffix)
		if !ok {
			return 0, "", fmt.Errorf("%q lacks the %s suffix", fullName, C9rSuffix)
		}
		return KindFile, enc, nil
	case vaultformat.LayoutDirPrefix:
		if enc, ok := strings.CutPrefix(fullName, dirPrefix); ok {
			return KindDir, enc, nil
		}
	case vaultformat.LayoutFlat:
		if enc, ok := strings.CutSuffix(fullName, dirSuffix); ok {
			return KindDir, enc, nil
		}
	}
	return KindFile, fullName, nil
}

// HashLongName returns the shortened v3-v6 name of "fullName":
// base32(SHA1(fullName)) + ".lng".
func HashLongName(fullName string) string {
	h := sha1.Sum([]byte(fullName))
	return base32.StdEncoding.EncodeToString(h[:]) + LngSuffix
}

// IsShortened reports whether the entry name "name" is a shortened name in
// this layout.
func (n *NameTransform) IsShortened(name string) bool {
	if n.format.Layout == vaultformat.LayoutSharded {
		return strings.HasSuffix(name, C9sSuffix)
	}
	return strings.HasSuffix(name, LngSuffix)
}

// DirPath returns the path, relative to the vault root, of the ciphertext
// directory for the hashed directory id "hashedDirID":
// d/<first two characters>/<rest>.
func DirPath(hashedDirID string) string {
	if len(hashedDirID) < 3 {
		panic("DirPath: hashed directory id too short")
	}
	return filepath.Join(DataDir, hashedDirID[:2], hashedDirID[2:])
}

// LongNameMetadataPath returns the path, relative to the vault root, of the
// metadata file of the v3-v6 shortened name "lngName":
// m/<2 chars>/<2 chars>/<lngName>.
func LongNameMetadataPath(lngName string) string {
	if len(lngName) < 4 {
		panic("LongNameMetadataPath: name too short")
	}
	return filepath.Join(MetadataDir, lngName[:2], lngName[2:4], lngName)
}
