package vault

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rfjakob/vaultcryptor/internal/workqueue"
)

func makeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestImport(t *testing.T) {
	src := makeTree(t, map[string]string{
		"a.txt":         "a",
		"dir1/b.txt":    "b",
		"dir1/b.txt~":   "backup",
		"dir1/c/d.txt":  "d",
		"build/out.o":   "object",
		"dir1/c/keep.o": "kept",
	})
	if err := os.Symlink("a.txt", filepath.Join(src, "link")); err != nil {
		t.Fatal(err)
	}
	v := newTestVault(t, 8)
	events := make(chan workqueue.Event)
	done := map[string]bool{}
	finished := make(chan struct{})
	go func() {
		for ev := range events {
			if ev.Done {
				done[ev.Job] = true
			}
		}
		close(finished)
	}()
	stats, err := v.Import(context.Background(), src, ImportOptions{
		Exclude: []string{"*~", "/build"},
		Workers: 2,
		Events:  events,
	})
	<-finished
	if err != nil {
		t.Fatal(err)
	}
	want := ImportStats{Dirs: 2, Files: 4, Symlinks: 1, Skipped: 2}
	if stats != want {
		t.Errorf("stats: want %+v, got %+v", want, stats)
	}
	if len(done) != 4 {
		t.Errorf("done events: %v", done)
	}
	for p, content := range map[string]string{
		"a.txt":         "a",
		"dir1/b.txt":    "b",
		"dir1/c/d.txt":  "d",
		"dir1/c/keep.o": "kept",
	} {
		if got := readString(t, v, p); got != content {
			t.Errorf("%s: got %q", p, got)
		}
	}
	if _, err := v.ResolveFile("dir1/b.txt~"); err == nil {
		t.Error("excluded file was imported")
	}
	if _, err := v.ResolveDir("build"); err == nil {
		t.Error("excluded dir was imported")
	}
	if target, err := v.Readlink("link"); err != nil || target != "a.txt" {
		t.Errorf("link: %q %v", target, err)
	}

	// A second import reuses the directories and replaces the files.
	os.WriteFile(filepath.Join(src, "dir1/b.txt"), []byte("b2"), 0600)
	os.Remove(filepath.Join(src, "link"))
	if _, err := v.Import(context.Background(), src, ImportOptions{Exclude: []string{"*~", "/build"}}); err != nil {
		t.Fatal(err)
	}
	if got := readString(t, v, "dir1/b.txt"); got != "b2" {
		t.Errorf("got %q", got)
	}
}

func TestImportSkipsSymlinksBeforeV7(t *testing.T) {
	src := makeTree(t, map[string]string{"a": "a"})
	os.Symlink("a", filepath.Join(src, "link"))
	v := newTestVault(t, 6)
	stats, err := v.Import(context.Background(), src, ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Files != 1 || stats.Symlinks != 0 || stats.Skipped != 1 {
		t.Errorf("stats %+v", stats)
	}
}

func TestImportMissingSource(t *testing.T) {
	v := newTestVault(t, 8)
	events := make(chan workqueue.Event, 1)
	_, err := v.Import(context.Background(), filepath.Join(t.TempDir(), "nope"), ImportOptions{Events: events})
	if err == nil {
		t.Error("expected an error")
	}
	if _, ok := <-events; ok {
		t.Error("events channel not closed")
	}
}

func TestReadPatternFiles(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "1")
	f2 := filepath.Join(dir, "2")
	os.WriteFile(f1, []byte("file1.1\nfile1.2\n"), 0600)
	os.WriteFile(f2, []byte("file2.1"), 0600)
	// An empty string is returned for the last empty line. It's ignored
	// when the patterns are compiled.
	expected := []string{"file1.1", "file1.2", "", "file2.1"}
	patterns, err := ReadPatternFiles(f1, f2)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(patterns, expected) {
		t.Errorf("expected %q, got %q", expected, patterns)
	}
	if _, err := ReadPatternFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected an error")
	}
}
