package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rfjakob/vaultcryptor/internal/configfile"
	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
	"github.com/rfjakob/vaultcryptor/internal/exitcodes"
	"github.com/rfjakob/vaultcryptor/internal/readpassword"
	"github.com/rfjakob/vaultcryptor/internal/vaultformat"
)

func TestExitCode(t *testing.T) {
	testcases := []struct {
		err  error
		code int
	}{
		{configfile.ErrInvalidPassphrase, exitcodes.PasswordIncorrect},
		{fmt.Errorf("open: %w", configfile.ErrUnauthenticVersion), exitcodes.UnauthenticVersion},
		{vaultformat.ErrUnsupportedVaultFormat, exitcodes.UnsupportedFormat},
		{fmt.Errorf("chunk 3: %w", cryptocore.ErrAuthenticationFailed), exitcodes.AuthFailed},
		{cryptocore.ErrCorruptedHeader, exitcodes.CorruptHeader},
		{readpassword.ErrEmpty, exitcodes.PasswordEmpty},
		{errors.Join(errors.New("a"), cryptocore.ErrAuthenticationFailed), exitcodes.AuthFailed},
		// An explicit exit code wins over the error classification
		{exitcodes.Wrap(configfile.ErrInvalidPassphrase, exitcodes.Init), exitcodes.Init},
		{errors.New("something else"), exitcodes.Other},
	}
	for _, tc := range testcases {
		if c := exitCode(tc.err); c != tc.code {
			t.Errorf("%v: want %d, have %d", tc.err, tc.code, c)
		}
	}
}

func TestParsePepper(t *testing.T) {
	c := newCLI()
	c.v.Set("pepper", "00ff10")
	if err := c.parse(); err != nil {
		t.Fatal(err)
	}
	if string(c.args._pepper) != "\x00\xff\x10" {
		t.Errorf("wrong pepper %x", c.args._pepper)
	}
	c.v.Set("pepper", "xyz")
	if err := c.parse(); err == nil {
		t.Error("invalid hex should fail")
	}
}

// Every flag can be set through a VAULTCRYPTOR_ environment variable.
func TestEnvBinding(t *testing.T) {
	t.Setenv("VAULTCRYPTOR_SCRYPT_COST", "2048")
	t.Setenv("VAULTCRYPTOR_EXCLUDE_FROM", "a b")
	t.Setenv("VAULTCRYPTOR_QUIET", "true")
	c := newCLI()
	if err := c.parse(); err != nil {
		t.Fatal(err)
	}
	if c.args.scryptCost != 2048 {
		t.Errorf("scryptCost=%d", c.args.scryptCost)
	}
	if len(c.args.excludeFrom) != 2 {
		t.Errorf("excludeFrom=%q", c.args.excludeFrom)
	}
	if !c.args.quiet {
		t.Error("quiet not set")
	}
}
