package nametransform

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEntryForSharded(t *testing.T) {
	n := newTestInstance(t, 7)
	short := "ABCD"
	e, err := n.EntryFor(KindFile, short)
	if err != nil {
		t.Fatal(err)
	}
	if e.Name != "ABCD.c9r" || e.Payload != "ABCD.c9r" || e.Shortened || e.IsDirectory {
		t.Errorf("short file: %+v", e)
	}
	e, _ = n.EntryFor(KindDir, short)
	if e.Name != "ABCD.c9r" || e.Payload != filepath.Join("ABCD.c9r", DirIDFile) || !e.IsDirectory {
		t.Errorf("short dir: %+v", e)
	}
	e, _ = n.EntryFor(KindSymlink, short)
	if e.Payload != filepath.Join("ABCD.c9r", SymlinkFile) {
		t.Errorf("short symlink: %+v", e)
	}

	// 216 + 4 = 220 characters is still allowed, 221 is not
	e, _ = n.EntryFor(KindFile, strings.Repeat("A", 216))
	if e.Shortened {
		t.Error("220 characters should not be shortened")
	}
	long := strings.Repeat("A", 217)
	e, _ = n.EntryFor(KindFile, long)
	if !e.Shortened || !strings.HasSuffix(e.Name, C9sSuffix) || e.FullName != long+C9rSuffix {
		t.Errorf("long file: %+v", e)
	}
	if len(e.Name) != 28+len(C9sSuffix) {
		t.Errorf("shortened name %q has wrong length", e.Name)
	}
	if e.Payload != filepath.Join(e.Name, ContentsFile) || !e.IsDirectory {
		t.Errorf("long file payload: %+v", e)
	}
	if !n.IsShortened(e.Name) || n.IsShortened("ABCD.c9r") {
		t.Error("IsShortened")
	}
}

func TestEntryForLegacy(t *testing.T) {
	n4 := newTestInstance(t, 4)
	e, _ := n4.EntryFor(KindDir, "ABCD")
	if e.Name != "0ABCD" {
		t.Errorf("v4 dir: %+v", e)
	}
	n3 := newTestInstance(t, 3)
	e, _ = n3.EntryFor(KindDir, "ABCD")
	if e.Name != "ABCD_" {
		t.Errorf("v3 dir: %+v", e)
	}
	e, _ = n3.EntryFor(KindFile, "ABCD")
	if e.Name != "ABCD" || e.Payload != "ABCD" {
		t.Errorf("v3 file: %+v", e)
	}
	if _, err := n4.EntryFor(KindSymlink, "ABCD"); err == nil {
		t.Error("symlinks should need v7")
	}

	long := strings.Repeat("A", 129)
	e, _ = n4.EntryFor(KindFile, long)
	if e.Shortened {
		t.Error("129 characters should not be shortened")
	}
	e, _ = n4.EntryFor(KindDir, long)
	if !e.Shortened || e.FullName != "0"+long || e.Name != HashLongName("0"+long) {
		t.Errorf("v4 long dir: %+v", e)
	}
	if !strings.HasSuffix(e.Name, LngSuffix) || !n4.IsShortened(e.Name) {
		t.Errorf("bad .lng name %q", e.Name)
	}
}

func TestSplitFullName(t *testing.T) {
	testCases := []struct {
		version  uint32
		fullName string
		kind     EntryKind
		enc      string
	}{
		{3, "ABCD_", KindDir, "ABCD"},
		{3, "ABCD", KindFile, "ABCD"},
		{5, "0ABCD", KindDir, "ABCD"},
		{5, "ABCD", KindFile, "ABCD"},
		{7, "ab-c.c9r", KindFile, "ab-c"},
	}
	for _, tc := range testCases {
		kind, enc, err := newTestInstance(t, tc.version).SplitFullName(tc.fullName)
		if err != nil || kind != tc.kind || enc != tc.enc {
			t.Errorf("v%d %q: got %v %q %v", tc.version, tc.fullName, kind, enc, err)
		}
	}
	if _, _, err := newTestInstance(t, 7).SplitFullName("nosuffix"); err == nil {
		t.Error("missing suffix accepted")
	}
}

func TestPaths(t *testing.T) {
	h := "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	if p := DirPath(h); p != filepath.Join("d", "AB", "CDEFGHIJKLMNOPQRSTUVWXYZ234567") {
		t.Errorf("DirPath: %q", p)
	}
	if p := LongNameMetadataPath("ABCDEF.lng"); p != filepath.Join("m", "AB", "CD", "ABCDEF.lng") {
		t.Errorf("LongNameMetadataPath: %q", p)
	}
}

func TestDirIDFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, DirIDFile)
	id := "9a2b9bb6-4e5a-4bd2-8f8c-b7b7a56c5b0d"
	if err := WriteDirID(p, id); err != nil {
		t.Fatal(err)
	}
	if err := WriteDirID(p, id); err == nil {
		t.Error("overwriting a dir id file should fail")
	}
	got, err := ReadDirID(p)
	if err != nil || got != id {
		t.Errorf("got %q %v", got, err)
	}
	tooLong := filepath.Join(dir, "long")
	os.WriteFile(tooLong, []byte(strings.Repeat("x", MaxDirIDLen+1)), 0600)
	if _, err := ReadDirID(tooLong); err == nil {
		t.Error("oversized dir id accepted")
	}
	empty := filepath.Join(dir, "empty")
	os.WriteFile(empty, nil, 0600)
	if _, err := ReadDirID(empty); err == nil {
		t.Error("empty dir id accepted")
	}
}

func TestLongNameFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "m", "AB", "CD", "ABCD.lng")
	if err := WriteLongName(p, "0LONG"); err != nil {
		t.Fatal(err)
	}
	// Idempotent for the same content
	if err := WriteLongName(p, "0LONG"); err != nil {
		t.Error(err)
	}
	if err := WriteLongName(p, "OTHER"); err == nil {
		t.Error("conflicting content accepted")
	}
	got, err := ReadLongName(p)
	if err != nil || got != "0LONG" {
		t.Errorf("got %q %v", got, err)
	}
}
