// Package readpassword reads a passphrase from the terminal, from an external
// program, from files or from stdin.
package readpassword

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"

	"github.com/rfjakob/vaultcryptor/internal/tlog"
)

const (
	// 2kB limit like EncFS
	maxPasswordLen = 2048
)

var (
	// ErrEmpty is returned for an empty passphrase.
	ErrEmpty = errors.New("password is empty")
	// ErrMismatch is returned by Twice when the two entries differ.
	ErrMismatch = errors.New("passwords do not match")
)

// stdin is replaced in tests.
var stdin io.Reader = os.Stdin

// Once tries to get a password from the user, either from the terminal,
// extpass, passfile or stdin. Leave "prompt" empty to use the default
// "Password: " prompt.
func Once(extpass []string, passfile []string, prompt string) ([]byte, error) {
	if len(passfile) != 0 {
		return readPassFileConcatenate(passfile)
	}
	if len(extpass) != 0 {
		return readPasswordExtpass(extpass)
	}
	if prompt == "" {
		prompt = "Password"
	}
	if !isTerminal() {
		return readPasswordStdin(prompt)
	}
	return readPasswordTerminal(prompt + ": ")
}

// Twice is the same as Once but will prompt twice if we get the password from
// the terminal.
func Twice(extpass []string, passfile []string) ([]byte, error) {
	if len(passfile) != 0 || len(extpass) != 0 || !isTerminal() {
		return Once(extpass, passfile, "")
	}
	p1, err := readPasswordTerminal("Password: ")
	if err != nil {
		return nil, err
	}
	p2, err := readPasswordTerminal("Repeat: ")
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(p1, p2) {
		return nil, ErrMismatch
	}
	return p1, nil
}

func isTerminal() bool {
	f, ok := stdin.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readPasswordTerminal reads a line from the terminal.
func readPasswordTerminal(prompt string) ([]byte, error) {
	fd := int(stdin.(*os.File).Fd())
	fmt.Fprint(os.Stderr, prompt)
	// term.ReadPassword removes the trailing newline
	p, err := term.ReadPassword(fd)
	fmt.Fprintf(os.Stderr, "\n")
	if err != nil {
		return nil, fmt.Errorf("could not read password from terminal: %w", err)
	}
	if len(p) == 0 {
		return nil, ErrEmpty
	}
	return p, nil
}

// readPasswordStdin reads a line from stdin.
func readPasswordStdin(prompt string) ([]byte, error) {
	tlog.Info.Printf("Reading %s from stdin", strings.ToLower(prompt))
	p, err := readLineUnbuffered(stdin)
	if err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("stdin: %w", ErrEmpty)
	}
	return p, nil
}

// readPasswordExtpass executes the "extpass" program and returns the first
// line of the output. A single element is split on spaces.
func readPasswordExtpass(extpass []string) ([]byte, error) {
	tlog.Info.Println("Reading password from extpass program")
	args := extpass
	if len(args) == 1 {
		args = strings.Fields(args[0])
	}
	if len(args) == 0 {
		return nil, errors.New("extpass: empty command")
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stderr = os.Stderr
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("extpass pipe setup failed: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("extpass cmd start failed: %w", err)
	}
	p, err := readLineUnbuffered(pipe)
	pipe.Close()
	if err2 := cmd.Wait(); err == nil && err2 != nil {
		tlog.Warn.Printf("extpass program returned an error: %v", err2)
	}
	if err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("extpass: %w", ErrEmpty)
	}
	return p, nil
}

// readLineUnbuffered reads single bytes from "r" until it gets "\n" or EOF.
// The returned slice does NOT contain the trailing "\n".
func readLineUnbuffered(r io.Reader) (l []byte, err error) {
	b := make([]byte, 1)
	for {
		if len(l) > maxPasswordLen {
			return nil, fmt.Errorf("maximum password length of %d bytes exceeded", maxPasswordLen)
		}
		n, err := r.Read(b)
		if err == io.EOF {
			return l, nil
		}
		if err != nil {
			return nil, fmt.Errorf("readLineUnbuffered: %w", err)
		}
		if n == 0 {
			continue
		}
		if b[0] == '\n' {
			return l, nil
		}
		l = append(l, b...)
	}
}
