// Package exitcodes contains all well-defined exit codes that vaultcryptor
// can return.
package exitcodes

import (
	"errors"
	"fmt"
	"os"
)

const (
	// Usage - usage error like wrong cli syntax, wrong number of parameters.
	Usage = 1
	// 2 is reserved because it is used by Go panic

	// VaultDir means that the vault directory does not exist, is not empty
	// (on init), or is not a directory.
	VaultDir = 6
	// Init is an error on vault init
	Init = 7
	// LoadConf is an error while loading masterkey.cryptomator
	LoadConf = 8
	// ReadPassword means something went wrong reading the password
	ReadPassword = 9
	// Other error - please inspect the message
	Other = 11
	// PasswordIncorrect - the password was incorrect when unlocking or when
	// changing the password.
	PasswordIncorrect = 12
	// ScryptParams means that scrypt was called with invalid parameters
	ScryptParams = 13
	// UnauthenticVersion means the version MAC in the master key file does
	// not match the unwrapped key material.
	UnauthenticVersion = 14
	// UnsupportedFormat means the vault format version is outside the
	// implemented range.
	UnsupportedFormat = 15
	// AuthFailed means a header, chunk or name failed authentication.
	AuthFailed = 16
	// CorruptHeader means a file header could not be parsed.
	CorruptHeader = 17
	// PasswordEmpty - we received an empty password
	PasswordEmpty = 22
	// OpenConf - the was an error opening the masterkey.cryptomator file for reading
	OpenConf = 23
	// WriteConf - could not write the masterkey.cryptomator
	WriteConf = 24
	// Profiler means that setting up the profiler has failed
	Profiler = 25
	// FsckErrors - the vault check found errors
	FsckErrors = 26
	// ExcludeError - an error occurred while processing "--exclude"
	ExcludeError = 29
)

// Err wraps an error with an associated numeric exit code
type Err struct {
	error
	code int
}

// NewErr returns an error containing "msg" and the exit code "code".
func NewErr(msg string, code int) Err {
	return Err{
		error: errors.New(msg),
		code:  code,
	}
}

// Wrap attaches the exit code "code" to "err".
func Wrap(err error, code int) Err {
	return Err{
		error: err,
		code:  code,
	}
}

// Unwrap gives errors.Is and errors.As access to the wrapped error.
func (e Err) Unwrap() error {
	return e.error
}

// Code returns the exit code stored in "e".
func (e Err) Code() int {
	return e.code
}

func (e Err) String() string {
	return fmt.Sprintf("%v (exit code %d)", e.error, e.code)
}

// CodeOf extracts the numeric exit code from "err". Errors that do not carry
// an exit code map to Other.
func CodeOf(err error) int {
	var err2 Err
	if !errors.As(err, &err2) {
		return Other
	}
	return err2.code
}

// Exit extracts the numeric exit code from "err" (if available) and exits the
// application.
func Exit(err error) {
	os.Exit(CodeOf(err))
}
