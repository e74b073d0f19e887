package nametransform

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rfjakob/vaultcryptor/internal/tlog"
)

const (
	// RootDirID is the id of the vault root directory.
	RootDirID = ""
	// MaxDirIDLen is the longest directory id we accept. New ids are
	// 36 character UUIDs.
	MaxDirIDLen = 36
)

// ReadDirID reads the directory id stored in the file "path".
func ReadDirID(path string) (string, error) {
	fd, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fd.Close()
	return fdReadDirID(fd)
}

// fdReadDirID reads and verifies the directory id from an opened dir id file.
func fdReadDirID(fd io.Reader) (string, error) {
	// We want to detect if the file is bigger than MaxDirIDLen, so
	// make the buffer 1 byte bigger than necessary.
	buf := make([]byte, MaxDirIDLen+1)
	n, err := io.ReadFull(fd, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("read failed: %v", err)
	}
	buf = buf[:n]
	if len(buf) > MaxDirIDLen {
		return "", fmt.Errorf("directory id longer than %d bytes", MaxDirIDLen)
	}
	if len(buf) == 0 {
		return "", fmt.Errorf("empty directory id file")
	}
	return string(buf), nil
}

// WriteDirID creates the file "path" holding "id". It fails if the file
// already exists.
func WriteDirID(path string, id string) error {
	if len(id) == 0 || len(id) > MaxDirIDLen {
		return fmt.Errorf("invalid directory id length %d", len(id))
	}
	return writeExclusive(path, []byte(id), dirIDPerms)
}

// ReadLongName reads the full name of a shortened entry from the file
// "path" (name.c9s or a .lng metadata file).
func ReadLongName(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		tlog.Warn.Printf("ReadLongName: %v", err)
		return "", err
	}
	return string(content), nil
}

// WriteLongName stores the full name "fullName" in "path", creating parent
// directories as needed. An existing file with identical content is left
// alone, since metadata files are shared by all entries with the same name.
func WriteLongName(path string, fullName string) error {
	if old, err := os.ReadFile(path); err == nil {
		if string(old) == fullName {
			return nil
		}
		return fmt.Errorf("%s exists with different content", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	err := writeExclusive(path, []byte(fullName), namePerms)
	if err != nil {
		tlog.Warn.Printf("WriteLongName: %v", err)
	}
	return err
}

func writeExclusive(path string, content []byte, perm os.FileMode) error {
	fd, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	_, err = fd.Write(content)
	if err2 := fd.Close(); err == nil {
		err = err2
	}
	if err != nil {
		os.Remove(path)
	}
	return err
}
