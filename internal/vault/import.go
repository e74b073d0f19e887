package vault

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/rfjakob/vaultcryptor/internal/nametransform"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
	"github.com/rfjakob/vaultcryptor/internal/workqueue"
)

// ImportOptions controls Import.
type ImportOptions struct {
	// Exclude holds gitignore-style patterns, matched against the path
	// relative to the source root.
	Exclude []string
	// Workers is the number of files encrypted in parallel. <= 0 means
	// one per CPU.
	Workers int
	// Events receives per-file progress. Import closes it when done.
	Events chan<- workqueue.Event
}

// ImportStats counts what Import did.
type ImportStats struct {
	Dirs     int
	Files    int
	Symlinks int
	Skipped  int
}

// ReadPatternFiles reads exclusion patterns from "files", one per line.
func ReadPatternFiles(files ...string) ([]string, error) {
	var patterns []string
	for _, file := range files {
		buffer, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, strings.Split(string(buffer), "\n")...)
	}
	return patterns, nil
}

// Import copies the cleartext tree "srcRoot" into the root of the vault.
// Directories and symlinks are created while walking, the files are then
// encrypted by a workqueue. Existing directories are reused and existing
// files replaced.
func (v *Vault) Import(ctx context.Context, srcRoot string, opts ImportOptions) (ImportStats, error) {
	var stats ImportStats
	var excluder *ignore.GitIgnore
	if len(opts.Exclude) > 0 {
		excluder = ignore.CompileIgnoreLines(opts.Exclude...)
	}
	dirIDs := map[string]string{".": nametransform.RootDirID}
	var jobs []workqueue.Job

	walkErr := filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if excluder != nil && excluder.MatchesPath(filepath.ToSlash(rel)) {
			tlog.Debug.Printf("Import: excluding %q", rel)
			stats.Skipped++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		parentID, ok := dirIDs[filepath.Dir(rel)]
		if !ok {
			return errors.New("Import: parent of " + rel + " was not created")
		}
		name := d.Name()
		switch {
		case d.IsDir():
			id, err := v.mkdirOrGet(parentID, name)
			if err != nil {
				return err
			}
			dirIDs[rel] = id
			stats.Dirs++
		case d.Type()&fs.ModeSymlink != 0:
			if v.cryptor.Format().Version < 7 {
				tlog.Warn.Printf("Import: skipping symlink %q, vault format %d has no symlinks",
					rel, v.cryptor.Format().Version)
				stats.Skipped++
				return nil
			}
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := v.Symlink(parentID, name, target); err != nil {
				return err
			}
			stats.Symlinks++
		case d.Type().IsRegular():
			jobs = append(jobs, v.importJob(path, rel, parentID, name))
			stats.Files++
		default:
			tlog.Warn.Printf("Import: skipping %q of type %v", rel, d.Type())
			stats.Skipped++
		}
		return nil
	})
	if walkErr != nil {
		if opts.Events != nil {
			close(opts.Events)
		}
		return stats, walkErr
	}
	return stats, workqueue.Run(ctx, jobs, opts.Workers, opts.Events)
}

func (v *Vault) importJob(path, rel, parentID, name string) workqueue.Job {
	return workqueue.Job{
		Name: rel,
		Run: func(ctx context.Context, progress func(float64)) error {
			fd, err := os.Open(path)
			if err != nil {
				return err
			}
			defer fd.Close()
			fi, err := fd.Stat()
			if err != nil {
				return err
			}
			return v.WriteFile(parentID, name, fd, fi.Size(), progress)
		},
	}
}
