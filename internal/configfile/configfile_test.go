package configfile

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
	"github.com/rfjakob/vaultcryptor/internal/keywrap"
	"github.com/rfjakob/vaultcryptor/internal/vaultformat"
)

var testPw = []byte("test")

// Use the lowest accepted cost to keep the tests fast.
const testN = 1 << scryptMinLogN

type failingRandom struct{}

func (failingRandom) RandBytes(int) ([]byte, error) {
	return nil, cryptocore.ErrRandomGenerationFailed
}

func testMasterKey(t *testing.T) *cryptocore.MasterKey {
	t.Helper()
	mk, err := cryptocore.NewMasterKey(bytes.Repeat([]byte{0xaa}, 32), bytes.Repeat([]byte{0xbb}, 32))
	if err != nil {
		t.Fatal(err)
	}
	return mk
}

func lockTest(t *testing.T, mk *cryptocore.MasterKey, pw []byte, version uint32, pepper []byte) *MasterKeyFile {
	t.Helper()
	f, err := Lock(mk, pw, LockParams{Version: version, Pepper: pepper, ScryptCostParam: testN})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestLockUnlock(t *testing.T) {
	mk := testMasterKey(t)
	for v := uint32(3); v <= 8; v++ {
		f := lockTest(t, mk, testPw, v, nil)
		if f.Version != v || f.ScryptCostParam != testN || f.ScryptBlockSize != ScryptDefaultR {
			t.Errorf("v%d: unexpected parameters %+v", v, f)
		}
		if len(f.ScryptSalt) != ScryptSaltLen {
			t.Errorf("v%d: salt length %d", v, len(f.ScryptSalt))
		}
		if len(f.PrimaryMasterKey) != 32+keywrap.Overhead {
			t.Errorf("v%d: wrapped key length %d", v, len(f.PrimaryMasterKey))
		}
		mk2, err := f.Unlock(testPw, nil, v)
		if err != nil {
			t.Fatalf("v%d: %v", v, err)
		}
		if !mk.Equal(mk2) {
			t.Errorf("v%d: unlocked key differs", v)
		}
	}
}

func TestLockDefaults(t *testing.T) {
	rs := cryptocore.ReaderRandom{R: bytes.NewReader(bytes.Repeat([]byte{7}, 64))}
	f, err := Lock(testMasterKey(t), testPw, LockParams{ScryptCostParam: testN, Random: rs})
	if err != nil {
		t.Fatal(err)
	}
	if f.Version != 8 {
		t.Errorf("default version is %d", f.Version)
	}
	if !bytes.Equal(f.ScryptSalt, bytes.Repeat([]byte{7}, ScryptSaltLen)) {
		t.Errorf("salt not drawn from the supplied source: %x", []byte(f.ScryptSalt))
	}
}

func TestLockRandomFailure(t *testing.T) {
	_, err := Lock(testMasterKey(t), testPw, LockParams{Random: failingRandom{}})
	if !errors.Is(err, ErrKeyDerivationFailed) {
		t.Errorf("got %v", err)
	}
	if !errors.Is(err, cryptocore.ErrRandomGenerationFailed) {
		t.Errorf("cause lost: %v", err)
	}
}

func TestLockBadCost(t *testing.T) {
	_, err := Lock(testMasterKey(t), testPw, LockParams{ScryptCostParam: 1000})
	if !errors.Is(err, ErrKeyDerivationFailed) {
		t.Errorf("got %v", err)
	}
}

func TestLockUnsupportedVersion(t *testing.T) {
	for _, v := range []uint32{1, 2, 9, 99} {
		_, err := Lock(testMasterKey(t), testPw, LockParams{Version: v, ScryptCostParam: testN})
		if !errors.Is(err, vaultformat.ErrUnsupportedVaultFormat) {
			t.Errorf("v%d: got %v", v, err)
		}
	}
}

func TestWrongPassphrase(t *testing.T) {
	f := lockTest(t, testMasterKey(t), testPw, 7, nil)
	_, err := f.Unlock([]byte("wrong"), nil, 7)
	if !errors.Is(err, ErrInvalidPassphrase) {
		t.Errorf("got %v", err)
	}
}

func TestPepper(t *testing.T) {
	mk := testMasterKey(t)
	f := lockTest(t, mk, testPw, 7, []byte("pepper"))
	if _, err := f.Unlock(testPw, nil, 7); !errors.Is(err, ErrInvalidPassphrase) {
		t.Errorf("missing pepper: got %v", err)
	}
	mk2, err := f.Unlock(testPw, []byte("pepper"), 7)
	if err != nil {
		t.Fatal(err)
	}
	if !mk.Equal(mk2) {
		t.Error("key differs")
	}
}

func TestTamperedVersionMac(t *testing.T) {
	f := lockTest(t, testMasterKey(t), testPw, 7, nil)
	if _, err := f.Unlock(testPw, nil, 7); err != nil {
		t.Fatal(err)
	}
	f2 := *f
	f2.VersionMac = append([]byte{}, f.VersionMac...)
	f2.VersionMac[0] ^= 1
	if _, err := f2.Unlock(testPw, nil, 7); !errors.Is(err, ErrUnauthenticVersion) {
		t.Errorf("got %v", err)
	}
}

// Downgrading the version field without the MAC key must be detected.
func TestDowngrade(t *testing.T) {
	f := lockTest(t, testMasterKey(t), testPw, 7, nil)
	f2 := *f
	f2.Version = 6
	if _, err := f2.Unlock(testPw, nil, SkipVersionCheck); !errors.Is(err, ErrUnauthenticVersion) {
		t.Errorf("got %v", err)
	}
}

func TestVersionMismatch(t *testing.T) {
	f := lockTest(t, testMasterKey(t), testPw, 7, nil)
	// The version check comes first, so even a wrong passphrase yields a
	// version mismatch.
	if _, err := f.Unlock([]byte("wrong"), nil, 8); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("got %v", err)
	}
	if _, err := f.Unlock(testPw, nil, SkipVersionCheck); err != nil {
		t.Errorf("SkipVersionCheck: %v", err)
	}
}

func TestPassphraseNormalization(t *testing.T) {
	composed := []byte("caf\u00e9")
	decomposed := []byte("cafe\u0301")
	mk := testMasterKey(t)

	f6 := lockTest(t, mk, composed, 6, nil)
	if _, err := f6.Unlock(decomposed, nil, 6); err != nil {
		t.Errorf("v6 should normalize: %v", err)
	}
	f5 := lockTest(t, mk, composed, 5, nil)
	if _, err := f5.Unlock(decomposed, nil, 5); !errors.Is(err, ErrInvalidPassphrase) {
		t.Errorf("v5 should not normalize: %v", err)
	}
	if _, err := f5.Unlock(composed, nil, 5); err != nil {
		t.Error(err)
	}
}

func TestVersionMac(t *testing.T) {
	key := make([]byte, 32)
	a := VersionMac(key, 7)
	b := VersionMac(key, 8)
	if len(a) != 32 || bytes.Equal(a, b) {
		t.Errorf("bad version MACs %x %x", a, b)
	}
}

func TestMarshalParse(t *testing.T) {
	f := lockTest(t, testMasterKey(t), testPw, 7, nil)
	js, err := f.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(js, &fields); err != nil {
		t.Fatal(err)
	}
	want := []string{"version", "scryptSalt", "scryptCostParam",
		"scryptBlockSize", "primaryMasterKey", "macMasterKey", "versionMac"}
	if len(fields) != len(want) {
		t.Errorf("unexpected fields in %s", js)
	}
	for _, field := range want {
		if _, ok := fields[field]; !ok {
			t.Errorf("field %q missing in %s", field, js)
		}
	}
	// Binary fields are URL-safe base64 with padding
	binary := map[string][]byte{
		"scryptSalt":       f.ScryptSalt,
		"primaryMasterKey": f.PrimaryMasterKey,
		"macMasterKey":     f.MacMasterKey,
		"versionMac":       f.VersionMac,
	}
	for field, val := range binary {
		s, _ := fields[field].(string)
		d, err := base64.URLEncoding.Strict().DecodeString(s)
		if err != nil || !bytes.Equal(d, val) {
			t.Errorf("%s: %q is not base64url of %x: %v", field, s, val, err)
		}
		if strings.ContainsAny(s, "+/") {
			t.Errorf("%s: %q uses the standard alphabet", field, s)
		}
	}
	f2, err := Parse(js)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f2.Unlock(testPw, nil, 7); err != nil {
		t.Error(err)
	}
}

// Files written by Cryptomator use the standard alphabet and call the MAC
// key "hmacMasterKey".
func TestParseAlternativeEncodings(t *testing.T) {
	f := lockTest(t, testMasterKey(t), testPw, 6, nil)
	enc := base64.RawStdEncoding.EncodeToString
	m := map[string]interface{}{
		"version":          f.Version,
		"scryptSalt":       enc(f.ScryptSalt),
		"scryptCostParam":  f.ScryptCostParam,
		"scryptBlockSize":  f.ScryptBlockSize,
		"primaryMasterKey": enc(f.PrimaryMasterKey),
		"hmacMasterKey":    enc(f.MacMasterKey),
		"versionMac":       enc(f.VersionMac),
	}
	js, _ := json.Marshal(m)
	f2, err := Parse(js)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f2.Unlock(testPw, nil, 6); err != nil {
		t.Error(err)
	}
}

func TestParseMalformed(t *testing.T) {
	good := lockTest(t, testMasterKey(t), testPw, 7, nil)
	js, _ := good.Marshal()
	testCases := []string{
		"",
		"{",
		"[]",
		`{"version": -1}`,
		`{"version": 7, "scryptSalt": "!!!"}`,
		`{"version": 7}`,
		strings.Replace(string(js), `"versionMac"`, `"somethingElse"`, 1),
	}
	for _, tc := range testCases {
		if _, err := Parse([]byte(tc)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%q: got %v", tc, err)
		}
	}
}

func TestUnlockRejectsBadParams(t *testing.T) {
	good := lockTest(t, testMasterKey(t), testPw, 7, nil)
	testCases := []struct {
		name   string
		modify func(f *MasterKeyFile)
	}{
		{"N not power of two", func(f *MasterKeyFile) { f.ScryptCostParam = testN + 1 }},
		{"N too low", func(f *MasterKeyFile) { f.ScryptCostParam = 2 }},
		{"N too high", func(f *MasterKeyFile) { f.ScryptCostParam = 1 << 40 }},
		{"r zero", func(f *MasterKeyFile) { f.ScryptBlockSize = 0 }},
		{"short salt", func(f *MasterKeyFile) { f.ScryptSalt = f.ScryptSalt[:4] }},
		{"short key", func(f *MasterKeyFile) { f.PrimaryMasterKey = f.PrimaryMasterKey[:20] }},
		{"short mac", func(f *MasterKeyFile) { f.VersionMac = f.VersionMac[:31] }},
	}
	for _, tc := range testCases {
		f := *good
		tc.modify(&f)
		if _, err := f.Unlock(testPw, nil, 7); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: got %v", tc.name, err)
		}
	}
}

func TestWriteFileLoad(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, DefaultName)
	mk := testMasterKey(t)
	f := lockTest(t, mk, testPw, 7, nil)
	if err := f.WriteFile(fn); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(fn)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0400 {
		t.Errorf("wrong permissions %o", fi.Mode().Perm())
	}
	if _, err := os.Stat(fn + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
	f2, err := Load(fn)
	if err != nil {
		t.Fatal(err)
	}
	mk2, err := f2.Unlock(testPw, nil, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !mk.Equal(mk2) {
		t.Error("key differs")
	}
	if _, err := Load(filepath.Join(dir, "nonexistent")); err == nil {
		t.Error("loading a missing file should fail")
	}
}

func TestChangePassphrase(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, DefaultName)
	mk := testMasterKey(t)
	f := lockTest(t, mk, testPw, 6, nil)
	if err := f.WriteFile(fn); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ChangePassphrase([]byte("wrong"), []byte("new"), nil, 0); !errors.Is(err, ErrInvalidPassphrase) {
		t.Errorf("got %v", err)
	}
	f2, err := f.ChangePassphrase(testPw, []byte("new"), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if f2.Version != 6 || f2.ScryptCostParam != testN {
		t.Errorf("parameters not carried over: %+v", f2)
	}
	if bytes.Equal(f2.ScryptSalt, f.ScryptSalt) {
		t.Error("salt was not refreshed")
	}
	// Replace the read-only file, like "vaultcryptor passwd" does
	if err := f2.WriteFile(fn); err != nil {
		t.Fatal(err)
	}
	f3, err := Load(fn)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f3.Unlock(testPw, nil, 6); !errors.Is(err, ErrInvalidPassphrase) {
		t.Errorf("old passphrase still works: %v", err)
	}
	mk2, err := f3.Unlock([]byte("new"), nil, 6)
	if err != nil {
		t.Fatal(err)
	}
	if !mk.Equal(mk2) {
		t.Error("key differs")
	}
}
