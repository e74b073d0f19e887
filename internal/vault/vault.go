// Package vault lays out encrypted files and directories on disk the way
// Cryptomator vaults do, using a cryptor.Cryptor for all cryptography.
//
// Directories are addressed by their directory id. The root has the id ""
// (nametransform.RootDirID); every other directory gets a random UUID when it
// is created. Cleartext paths are resolved one component at a time, there is
// no way to list the cleartext names of a directory.
package vault

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rfjakob/vaultcryptor/internal/configfile"
	"github.com/rfjakob/vaultcryptor/internal/contentenc"
	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
	"github.com/rfjakob/vaultcryptor/internal/cryptor"
	"github.com/rfjakob/vaultcryptor/internal/nametransform"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
)

var (
	// ErrNotEmpty is returned by Create for a directory that has content.
	ErrNotEmpty = errors.New("directory not empty")
	// ErrExists means an entry with the same cleartext name already exists.
	ErrExists = errors.New("entry exists")
	// ErrNotFound means a cleartext path does not resolve.
	ErrNotFound = errors.New("no such entry")
	// ErrWrongKind means the entry exists but is not of the requested kind.
	ErrWrongKind = errors.New("wrong entry type")
)

const (
	dirPerms  = 0700
	filePerms = 0600
)

// Vault is an unlocked vault.
type Vault struct {
	dir     string
	mkf     *configfile.MasterKeyFile
	cryptor *cryptor.Cryptor
	// mu serializes the creation of entries so two writers cannot race
	// on the same name.
	mu sync.Mutex
}

// CreateOptions controls Create. Zero values select defaults.
type CreateOptions struct {
	// Version is the vault format. 0 means vaultformat.Latest.
	Version uint32
	// ScryptCostParam is the scrypt N. 0 means configfile.ScryptDefaultN.
	ScryptCostParam uint64
	// Pepper is appended to the scrypt salt.
	Pepper []byte
	// Random supplies keys, salts and nonces. nil means cryptocore.Default.
	Random cryptocore.RandomSource
}

// checkDirEmpty returns an error unless "dir" is an empty directory.
func checkDirEmpty(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if len(entries) != 0 {
		return fmt.Errorf("%w: %s", ErrNotEmpty, dir)
	}
	return nil
}

// Create initializes the empty directory "dir" as a vault: it generates a
// master key, writes the master key file and creates the root directory.
func Create(dir string, passphrase []byte, opts CreateOptions) (*Vault, error) {
	if err := checkDirEmpty(dir); err != nil {
		return nil, err
	}
	mk, err := cryptocore.GenerateMasterKey(opts.Random, cryptocore.KeyLen)
	if err != nil {
		return nil, err
	}
	defer mk.Wipe()
	mkf, err := configfile.Lock(mk, passphrase, configfile.LockParams{
		Version:         opts.Version,
		Pepper:          opts.Pepper,
		ScryptCostParam: opts.ScryptCostParam,
		Random:          opts.Random,
	})
	if err != nil {
		return nil, err
	}
	c, err := cryptor.New(mk, mkf.Version, opts.Random)
	if err != nil {
		return nil, err
	}
	if err := mkf.WriteFile(filepath.Join(dir, configfile.DefaultName)); err != nil {
		c.Wipe()
		return nil, err
	}
	v := &Vault{dir: dir, mkf: mkf, cryptor: c}
	if err := os.MkdirAll(v.cipherDir(nametransform.RootDirID), dirPerms); err != nil {
		c.Wipe()
		return nil, err
	}
	tlog.Debug.Printf("vault.Create: %q, format %d", dir, mkf.Version)
	return v, nil
}

// Open unlocks the vault in "dir". The vault format is taken from the
// master key file.
func Open(dir string, passphrase, pepper []byte) (*Vault, error) {
	mkf, err := configfile.Load(filepath.Join(dir, configfile.DefaultName))
	if err != nil {
		return nil, err
	}
	mk, err := mkf.Unlock(passphrase, pepper, configfile.SkipVersionCheck)
	if err != nil {
		return nil, err
	}
	defer mk.Wipe()
	c, err := cryptor.New(mk, mkf.Version, nil)
	if err != nil {
		return nil, err
	}
	return &Vault{dir: dir, mkf: mkf, cryptor: c}, nil
}

// Dir returns the vault root directory.
func (v *Vault) Dir() string {
	return v.dir
}

// MasterKeyFile returns the parsed master key file.
func (v *Vault) MasterKeyFile() *configfile.MasterKeyFile {
	return v.mkf
}

// Cryptor returns the cryptor of the vault.
func (v *Vault) Cryptor() *cryptor.Cryptor {
	return v.cryptor
}

// Close wipes the key material. The Vault must not be used afterwards.
func (v *Vault) Close() {
	v.cryptor.Wipe()
}

// cipherDir returns the absolute path of the ciphertext directory of "dirID".
func (v *Vault) cipherDir(dirID string) string {
	return filepath.Join(v.dir, nametransform.DirPath(v.cryptor.EncryptDirectoryID(dirID)))
}

// lookup finds the existing entry "name" in "dirID". It returns an error
// wrapping os.ErrNotExist if there is none.
func (v *Vault) lookup(dirID, name string) (nametransform.Entry, error) {
	nt := v.cryptor.NameTransform()
	encName, err := nt.EncryptFilename(name, dirID)
	if err != nil {
		return nametransform.Entry{}, err
	}
	parent := v.cipherDir(dirID)
	if nt.Format().Version >= 7 {
		e, err := nt.EntryFor(nametransform.KindFile, encName)
		if err != nil {
			return e, err
		}
		kind, err := shardedKind(filepath.Join(parent, e.Name))
		if err != nil {
			return e, err
		}
		return nt.EntryFor(kind, encName)
	}
	for _, kind := range []nametransform.EntryKind{nametransform.KindFile, nametransform.KindDir} {
		e, err := nt.EntryFor(kind, encName)
		if err != nil {
			return e, err
		}
		fi, err := os.Lstat(filepath.Join(parent, e.Name))
		if err == nil && fi.Mode().IsRegular() {
			return e, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return e, err
		}
	}
	return nametransform.Entry{}, fmt.Errorf("%q: %w", name, os.ErrNotExist)
}

// shardedKind tells the kind of the v7 entry stored at "path" from what is
// on disk.
func shardedKind(path string) (nametransform.EntryKind, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}
	if fi.Mode().IsRegular() {
		return nametransform.KindFile, nil
	}
	if !fi.IsDir() {
		return 0, fmt.Errorf("%s: unexpected file type %v", path, fi.Mode().Type())
	}
	for _, probe := range []struct {
		kind nametransform.EntryKind
		file string
	}{
		{nametransform.KindDir, nametransform.DirIDFile},
		{nametransform.KindSymlink, nametransform.SymlinkFile},
		{nametransform.KindFile, nametransform.ContentsFile},
	} {
		if _, err := os.Lstat(filepath.Join(path, probe.file)); err == nil {
			return probe.kind, nil
		}
	}
	return 0, fmt.Errorf("%s: cannot tell the entry type", path)
}

// exists reports whether "name" exists in "dirID".
func (v *Vault) exists(dirID, name string) (bool, error) {
	_, err := v.lookup(dirID, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// prepareEntry creates whatever an entry needs besides its payload: the
// v7 entry directory, name.c9s for shortened v7 names and the .lng metadata
// for shortened v3-v6 names. Existing pieces are reused.
func (v *Vault) prepareEntry(parent string, e nametransform.Entry) error {
	if e.IsDirectory {
		p := filepath.Join(parent, e.Name)
		if err := os.Mkdir(p, dirPerms); err != nil && !os.IsExist(err) {
			return err
		}
		if e.Shortened {
			return nametransform.WriteLongName(filepath.Join(p, nametransform.NameFile), e.FullName)
		}
		return nil
	}
	if e.Shortened {
		return nametransform.WriteLongName(filepath.Join(v.dir, nametransform.LongNameMetadataPath(e.Name)), e.FullName)
	}
	return nil
}

// Mkdir creates the directory "name" in "parentID" and returns its new
// directory id.
func (v *Vault) Mkdir(parentID, name string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mkdirLocked(parentID, name)
}

func (v *Vault) mkdirLocked(parentID, name string) (string, error) {
	exists, err := v.exists(parentID, name)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: %q", ErrExists, name)
	}
	e, err := v.cryptor.NameTransform().EncryptEntry(nametransform.KindDir, name, parentID)
	if err != nil {
		return "", err
	}
	parent := v.cipherDir(parentID)
	if err := v.prepareEntry(parent, e); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := nametransform.WriteDirID(filepath.Join(parent, e.Payload), id); err != nil {
		return "", err
	}
	if err := os.MkdirAll(v.cipherDir(id), dirPerms); err != nil {
		return "", err
	}
	tlog.Debug.Printf("Mkdir: %q in %q -> %s", name, parentID, e.Name)
	return id, nil
}

// mkdirOrGet returns the id of the directory "name" in "parentID", creating
// it if it does not exist yet.
func (v *Vault) mkdirOrGet(parentID, name string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, err := v.lookup(parentID, name)
	if errors.Is(err, os.ErrNotExist) {
		return v.mkdirLocked(parentID, name)
	}
	if err != nil {
		return "", err
	}
	if e.Kind != nametransform.KindDir {
		return "", fmt.Errorf("%w: %q is a %v", ErrWrongKind, name, e.Kind)
	}
	return nametransform.ReadDirID(filepath.Join(v.cipherDir(parentID), e.Payload))
}

// fileEntry returns the entry for writing the file "name" in "parentID". An
// existing file is replaced, any other existing entry is an error.
func (v *Vault) fileEntry(parentID, name string, kind nametransform.EntryKind) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fileEntryLocked(parentID, name, kind, true)
}

// fileEntryLocked is fileEntry for callers holding v.mu. Without "replace",
// any existing entry is an error.
func (v *Vault) fileEntryLocked(parentID, name string, kind nametransform.EntryKind, replace bool) (string, error) {
	old, err := v.lookup(parentID, name)
	if err == nil && (old.Kind != kind || !replace) {
		return "", fmt.Errorf("%w: %q", ErrExists, name)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	e, err := v.cryptor.NameTransform().EncryptEntry(kind, name, parentID)
	if err != nil {
		return "", err
	}
	parent := v.cipherDir(parentID)
	if err := v.prepareEntry(parent, e); err != nil {
		return "", err
	}
	return filepath.Join(parent, e.Payload), nil
}

// WriteFile encrypts "size" bytes from "src" into the file "name" in
// "parentID", replacing an existing file of that name.
func (v *Vault) WriteFile(parentID, name string, src io.Reader, size int64, progress contentenc.ProgressFunc) error {
	path, err := v.fileEntry(parentID, name, nametransform.KindFile)
	if err != nil {
		return err
	}
	return cryptor.WriteAtomic(path, filePerms, func(w io.Writer) error {
		return v.cryptor.ContentEnc().EncryptStream(w, src, size, progress)
	})
}

// Symlink creates the symlink "name" in "parentID" pointing to "target".
// The target is stored encrypted like file content. Only the v7 layout
// knows symlinks.
func (v *Vault) Symlink(parentID, name, target string) error {
	if v.cryptor.Format().Version < 7 {
		return fmt.Errorf("symlinks are not supported in vault format %d", v.cryptor.Format().Version)
	}
	// The entry only becomes recognizable once symlink.c9r is written, so
	// the lock covers the write.
	v.mu.Lock()
	defer v.mu.Unlock()
	path, err := v.fileEntryLocked(parentID, name, nametransform.KindSymlink, false)
	if err != nil {
		return err
	}
	return cryptor.WriteAtomic(path, filePerms, func(w io.Writer) error {
		return v.cryptor.ContentEnc().EncryptStream(w, strings.NewReader(target), int64(len(target)), nil)
	})
}

// splitPath splits a cleartext path into its components. "", "." and "/"
// denote the root.
func splitPath(p string) []string {
	p = filepath.ToSlash(filepath.Clean("/" + p))
	if p == "/" {
		return nil
	}
	return strings.Split(p[1:], "/")
}

// resolveEntry returns the directory id of the parent of "p" and the entry
// of its last component.
func (v *Vault) resolveEntry(p string) (string, nametransform.Entry, error) {
	parts := splitPath(p)
	if len(parts) == 0 {
		return "", nametransform.Entry{}, fmt.Errorf("%w: the root is not an entry", ErrWrongKind)
	}
	parentID, err := v.resolveParts(parts[:len(parts)-1])
	if err != nil {
		return "", nametransform.Entry{}, err
	}
	e, err := v.lookup(parentID, parts[len(parts)-1])
	if errors.Is(err, os.ErrNotExist) {
		return "", e, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return parentID, e, err
}

func (v *Vault) resolveParts(parts []string) (string, error) {
	id := nametransform.RootDirID
	for i, name := range parts {
		e, err := v.lookup(id, name)
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, strings.Join(parts[:i+1], "/"))
		}
		if err != nil {
			return "", err
		}
		if e.Kind != nametransform.KindDir {
			return "", fmt.Errorf("%w: %s is a %v", ErrWrongKind, strings.Join(parts[:i+1], "/"), e.Kind)
		}
		id, err = nametransform.ReadDirID(filepath.Join(v.cipherDir(id), e.Payload))
		if err != nil {
			return "", err
		}
	}
	return id, nil
}

// ResolveDir returns the directory id of the cleartext directory path "p".
func (v *Vault) ResolveDir(p string) (string, error) {
	return v.resolveParts(splitPath(p))
}

// ResolveFile returns the absolute path of the ciphertext file that holds
// the content of the cleartext file "p".
func (v *Vault) ResolveFile(p string) (string, error) {
	parentID, e, err := v.resolveEntry(p)
	if err != nil {
		return "", err
	}
	if e.Kind != nametransform.KindFile {
		return "", fmt.Errorf("%w: %s is a %v", ErrWrongKind, p, e.Kind)
	}
	return filepath.Join(v.cipherDir(parentID), e.Payload), nil
}

// ReadFile decrypts the cleartext file "p" into "dst".
func (v *Vault) ReadFile(p string, dst io.Writer, progress contentenc.ProgressFunc) error {
	path, err := v.ResolveFile(p)
	if err != nil {
		return err
	}
	return v.cryptor.DecryptTo(path, dst, progress)
}

// Readlink returns the target of the cleartext symlink "p".
func (v *Vault) Readlink(p string) (string, error) {
	parentID, e, err := v.resolveEntry(p)
	if err != nil {
		return "", err
	}
	if e.Kind != nametransform.KindSymlink {
		return "", fmt.Errorf("%w: %s is a %v", ErrWrongKind, p, e.Kind)
	}
	return v.readSymlink(filepath.Join(v.cipherDir(parentID), e.Payload))
}

func (v *Vault) readSymlink(path string) (string, error) {
	var buf bytes.Buffer
	if err := v.cryptor.DecryptTo(path, &buf, nil); err != nil {
		return "", err
	}
	return buf.String(), nil
}
