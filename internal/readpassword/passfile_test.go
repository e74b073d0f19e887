package readpassword

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePassfile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPassfile(t *testing.T) {
	testcases := []struct {
		file    string
		content string
		want    string
	}{
		{"mypassword.txt", "mypassword\n", "mypassword"},
		{"mypassword_garbage.txt", "mypassword\nfoo\nbar\n", "mypassword"},
		{"mypassword_missing_newline.txt", "mypassword", "mypassword"},
		{"file with spaces.txt", "mypassword\n", "mypassword"},
	}
	for _, tc := range testcases {
		p := writePassfile(t, tc.file, tc.content)
		pw, err := readPassFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if string(pw) != tc.want {
			t.Errorf("Wrong result: want=%q have=%q", tc.want, pw)
		}
		// Calling readPassFileConcatenate with only one element should give the
		// same result
		pw, err = readPassFileConcatenate([]string{p})
		if err != nil {
			t.Fatal(err)
		}
		if string(pw) != tc.want {
			t.Errorf("Wrong result: want=%q have=%q", tc.want, pw)
		}
	}
}

func TestPassfileEmpty(t *testing.T) {
	if _, err := readPassFile(writePassfile(t, "empty.txt", "")); err == nil {
		t.Error("empty file should fail")
	}
	if _, err := readPassFile(writePassfile(t, "empty_first_line.txt", "\nfoo\n")); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty first line: %v", err)
	}
}

func TestPassfileMissing(t *testing.T) {
	if _, err := readPassFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("should have failed")
	}
}

func TestPassfileMaxLen(t *testing.T) {
	ok := strings.Repeat("x", maxPasswordLen)
	pw, err := readPassFile(writePassfile(t, "max.txt", ok+"\n"))
	if err != nil || string(pw) != ok {
		t.Errorf("%d bytes should work: %v", maxPasswordLen, err)
	}
	if _, err := readPassFile(writePassfile(t, "toolong.txt", ok+"x\n")); err == nil {
		t.Error("overlong password should fail")
	}
}

func TestPassfileConcatenate(t *testing.T) {
	f1 := writePassfile(t, "1", "foo\n")
	f2 := writePassfile(t, "2", "bar")
	pw, err := Once(nil, []string{f1, f2}, "")
	if err != nil {
		t.Fatal(err)
	}
	if string(pw) != "foobar" {
		t.Errorf("got %q", pw)
	}
}
