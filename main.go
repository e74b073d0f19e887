// vaultcryptor creates and works with Cryptomator-compatible encrypted vaults.
package main

import (
	"errors"

	"github.com/rfjakob/vaultcryptor/internal/configfile"
	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
	"github.com/rfjakob/vaultcryptor/internal/exitcodes"
	"github.com/rfjakob/vaultcryptor/internal/readpassword"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
	"github.com/rfjakob/vaultcryptor/internal/vaultformat"
)

// errorCodes maps library errors to exit codes. The first match wins.
var errorCodes = []struct {
	err  error
	code int
}{
	{configfile.ErrInvalidPassphrase, exitcodes.PasswordIncorrect},
	{configfile.ErrUnauthenticVersion, exitcodes.UnauthenticVersion},
	{configfile.ErrVersionMismatch, exitcodes.LoadConf},
	{configfile.ErrMalformed, exitcodes.LoadConf},
	{configfile.ErrKeyDerivationFailed, exitcodes.ScryptParams},
	{vaultformat.ErrUnsupportedVaultFormat, exitcodes.UnsupportedFormat},
	{cryptocore.ErrCorruptedHeader, exitcodes.CorruptHeader},
	{cryptocore.ErrAuthenticationFailed, exitcodes.AuthFailed},
	{readpassword.ErrEmpty, exitcodes.PasswordEmpty},
	{readpassword.ErrMismatch, exitcodes.ReadPassword},
}

// exitCode returns the exit code for "err". An exit code attached with
// exitcodes.Wrap takes precedence.
func exitCode(err error) int {
	var e exitcodes.Err
	if errors.As(err, &e) {
		return e.Code()
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return exitcodes.Other
}

func main() {
	c := newCLI()
	err := c.rootCommand().Execute()
	c.stopProfiling()
	if err != nil {
		tlog.Fatal.Println(err)
		exitcodes.Exit(exitcodes.Wrap(err, exitCode(err)))
	}
}
