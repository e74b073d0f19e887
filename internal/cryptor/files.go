package cryptor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rfjakob/vaultcryptor/internal/contentenc"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
)

// WriteAtomic calls "fill" with a temporary file next to "path" and renames
// it over "path" once "fill" succeeds. On any error the temporary file is
// removed and "path" is left untouched.
func WriteAtomic(path string, perm os.FileMode, fill func(w io.Writer) error) (err error) {
	fd, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := fd.Name()
	defer func() {
		if err != nil {
			fd.Close()
			if err2 := os.Remove(tmp); err2 != nil && !os.IsNotExist(err2) {
				tlog.Warn.Printf("WriteAtomic: removing %q: %v", tmp, err2)
			}
		}
	}()
	if err = fill(fd); err != nil {
		return err
	}
	if err = fd.Chmod(perm); err != nil {
		return err
	}
	if err = fd.Sync(); err != nil {
		return err
	}
	if err = fd.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func openWithSize(path string) (*os.File, int64, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	fi, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, 0, err
	}
	if !fi.Mode().IsRegular() {
		fd.Close()
		return nil, 0, fmt.Errorf("%q is not a regular file", path)
	}
	return fd, fi.Size(), nil
}

// EncryptFile encrypts the cleartext file "inPath" into "outPath".
func (c *Cryptor) EncryptFile(inPath, outPath string, progress contentenc.ProgressFunc) error {
	in, size, err := openWithSize(inPath)
	if err != nil {
		return err
	}
	defer in.Close()
	return WriteAtomic(outPath, 0600, func(w io.Writer) error {
		return c.ce.EncryptStream(w, in, size, progress)
	})
}

// DecryptFile decrypts the encrypted file "inPath" into "outPath". If any
// chunk fails authentication, "outPath" is not created.
func (c *Cryptor) DecryptFile(inPath, outPath string, progress contentenc.ProgressFunc) error {
	in, size, err := openWithSize(inPath)
	if err != nil {
		return err
	}
	defer in.Close()
	return WriteAtomic(outPath, 0600, func(w io.Writer) error {
		return c.ce.DecryptStream(w, in, size, progress)
	})
}

// AuthenticateFile checks the header and all chunk MACs of "path".
func (c *Cryptor) AuthenticateFile(path string, progress contentenc.ProgressFunc) error {
	in, size, err := openWithSize(path)
	if err != nil {
		return err
	}
	defer in.Close()
	return c.ce.AuthenticateStream(in, size, progress)
}

// DecryptRange decrypts "length" cleartext bytes at "offset" of the encrypted
// file "inPath" into "dst" and returns the number of bytes written. Only the
// chunks overlapping the range are authenticated. A zero "length" means up to
// the end of the file.
func (c *Cryptor) DecryptRange(inPath string, dst io.Writer, offset, length uint64) (uint64, error) {
	in, size, err := openWithSize(inPath)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	if length == 0 {
		plainSize, err := contentenc.CleartextSizeFromCiphertextSize(uint64(size))
		if err != nil {
			return 0, err
		}
		if offset >= plainSize {
			return 0, nil
		}
		length = plainSize - offset
	}
	return c.ce.DecryptRange(dst, in, offset, length)
}

// DecryptTo decrypts the encrypted file "inPath" into "dst". Unlike
// DecryptFile, data written to "dst" before an authentication failure is not
// taken back.
func (c *Cryptor) DecryptTo(inPath string, dst io.Writer, progress contentenc.ProgressFunc) error {
	in, size, err := openWithSize(inPath)
	if err != nil {
		return err
	}
	defer in.Close()
	return c.ce.DecryptStream(dst, in, size, progress)
}
