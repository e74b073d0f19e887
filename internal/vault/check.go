package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rfjakob/vaultcryptor/internal/nametransform"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
	"github.com/rfjakob/vaultcryptor/internal/workqueue"
)

// Report is the result of Check.
type Report struct {
	Dirs     int
	Files    int
	Symlinks int
	// Errors holds one entry per problem found.
	Errors []error

	mu sync.Mutex
}

func (r *Report) add(err error) {
	r.mu.Lock()
	r.Errors = append(r.Errors, err)
	r.mu.Unlock()
	tlog.Warn.Printf("fsck: %v", err)
}

type checker struct {
	v       *Vault
	report  *Report
	jobs    []workqueue.Job
	visited map[string]bool
}

// Check walks the whole vault starting at the root directory. It decrypts
// every name, reads every directory id and authenticates every file and
// symlink. Contents are checked by "workers" goroutines, progress goes to
// "events" (may be nil, closed when Check returns).
//
// Problems end up in Report.Errors. The returned error is only set when the
// check could not run to the end.
func (v *Vault) Check(ctx context.Context, workers int, events chan<- workqueue.Event) (*Report, error) {
	ck := &checker{
		v:       v,
		report:  &Report{},
		visited: map[string]bool{},
	}
	ck.dir(ctx, nametransform.RootDirID, "/")
	if err := ctx.Err(); err != nil {
		if events != nil {
			close(events)
		}
		return ck.report, err
	}
	err := workqueue.Run(ctx, ck.jobs, workers, events)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ck.report, ctxErr
	}
	tlog.Debug.Printf("Check: %v", err)
	return ck.report, nil
}

// dir checks the directory "dirID" whose cleartext path is "path".
func (ck *checker) dir(ctx context.Context, dirID string, path string) {
	if ctx.Err() != nil {
		return
	}
	if ck.visited[dirID] {
		ck.report.add(fmt.Errorf("%s: directory id %q is used twice", path, dirID))
		return
	}
	ck.visited[dirID] = true
	ck.report.Dirs++

	cdir := ck.v.cipherDir(dirID)
	entries, err := os.ReadDir(cdir)
	if err != nil {
		ck.report.add(fmt.Errorf("%s: error opening dir: %w", path, err))
		return
	}
	for _, entry := range entries {
		ck.entry(ctx, dirID, path, cdir, entry.Name())
	}
}

// entry checks the ciphertext entry "cName" in the directory "dirID".
func (ck *checker) entry(ctx context.Context, dirID, path, cdir, cName string) {
	nt := ck.v.cryptor.NameTransform()
	cPath := filepath.Join(cdir, cName)
	fullName := cName
	if nt.IsShortened(cName) {
		var lngPath string
		if nt.Format().Version >= 7 {
			lngPath = filepath.Join(cPath, nametransform.NameFile)
		} else {
			lngPath = filepath.Join(ck.v.dir, nametransform.LongNameMetadataPath(cName))
		}
		var err error
		fullName, err = nametransform.ReadLongName(lngPath)
		if err != nil {
			ck.report.add(fmt.Errorf("%s: %s: error reading long name: %w", path, cName, err))
			return
		}
	}
	kind, encName, err := nt.SplitFullName(fullName)
	if err != nil {
		ck.report.add(fmt.Errorf("%s: %s: %w", path, cName, err))
		return
	}
	if nt.Format().Version >= 7 {
		kind, err = shardedKind(cPath)
		if err != nil {
			ck.report.add(fmt.Errorf("%s: %w", path, err))
			return
		}
	}
	name, err := nt.DecryptFilename(encName, dirID)
	if err != nil {
		ck.report.add(fmt.Errorf("%s: %s: name: %w", path, cName, err))
		return
	}
	next := filepath.Join(path, name)
	e, err := nt.EntryFor(kind, encName)
	if err != nil {
		ck.report.add(fmt.Errorf("%s: %w", next, err))
		return
	}
	if e.Name != cName {
		ck.report.add(fmt.Errorf("%s: stored as %s, expected %s", next, cName, e.Name))
		return
	}
	payload := filepath.Join(cdir, e.Payload)

	switch kind {
	case nametransform.KindDir:
		id, err := nametransform.ReadDirID(payload)
		if err != nil {
			ck.report.add(fmt.Errorf("%s: directory id: %w", next, err))
			return
		}
		ck.dir(ctx, id, next)
	case nametransform.KindFile:
		ck.report.Files++
		ck.jobs = append(ck.jobs, workqueue.Job{
			Name: next,
			Run: func(ctx context.Context, progress func(float64)) error {
				err := ck.v.cryptor.AuthenticateFile(payload, progress)
				if err != nil {
					ck.report.add(fmt.Errorf("%s: %w", next, err))
				}
				return err
			},
		})
	case nametransform.KindSymlink:
		ck.report.Symlinks++
		ck.jobs = append(ck.jobs, workqueue.Job{
			Name: next,
			Run: func(ctx context.Context, progress func(float64)) error {
				_, err := ck.v.readSymlink(payload)
				if err != nil {
					ck.report.add(fmt.Errorf("%s: symlink: %w", next, err))
				}
				return err
			},
		})
	}
}
