package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"

	"github.com/rfjakob/vaultcryptor/internal/configfile"
	"github.com/rfjakob/vaultcryptor/internal/exitcodes"
	"github.com/rfjakob/vaultcryptor/internal/readpassword"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
	"github.com/rfjakob/vaultcryptor/internal/vault"
)

// readPassphrase gets a passphrase from the source the user asked for. With
// "twice" set, a terminal user has to enter it twice.
func (c *cli) readPassphrase(twice bool, prompt string) ([]byte, error) {
	var pw []byte
	var err error
	if twice {
		pw, err = readpassword.Twice(c.args.extpass, c.args.passfile)
	} else {
		pw, err = readpassword.Once(c.args.extpass, c.args.passfile, prompt)
	}
	if errors.Is(err, readpassword.ErrEmpty) {
		return nil, exitcodes.Wrap(err, exitcodes.PasswordEmpty)
	}
	if err != nil {
		return nil, exitcodes.Wrap(err, exitcodes.ReadPassword)
	}
	return pw, nil
}

// masterKeyPath returns the master key file of the vault "dir" after making
// sure it exists, so we do not prompt for a password in vain.
func masterKeyPath(dir string) (string, error) {
	if err := checkDir(dir); err != nil {
		return "", exitcodes.Wrap(err, exitcodes.VaultDir)
	}
	filename := filepath.Join(dir, configfile.DefaultName)
	if _, err := os.Stat(filename); err != nil {
		return "", exitcodes.Wrap(err, exitcodes.OpenConf)
	}
	return filename, nil
}

// loadMasterKeyFile loads the master key file of the vault "dir".
func loadMasterKeyFile(dir string) (string, *configfile.MasterKeyFile, error) {
	filename, err := masterKeyPath(dir)
	if err != nil {
		return "", nil, err
	}
	mkf, err := configfile.Load(filename)
	if err != nil {
		return "", nil, err
	}
	return filename, mkf, nil
}

// openVault prompts for the password and unlocks the vault in "dir".
func (c *cli) openVault(dir string) (*vault.Vault, error) {
	if _, err := masterKeyPath(dir); err != nil {
		return nil, err
	}
	pw, err := c.readPassphrase(false, "")
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(pw)
	tlog.Info.Println("Decrypting master key")
	return vault.Open(dir, pw, c.args._pepper)
}
