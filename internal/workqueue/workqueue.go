// Package workqueue runs whole-file jobs on a bounded pool of goroutines and
// reports their progress over a channel. The codecs themselves stay
// synchronous; concurrency lives here.
package workqueue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rfjakob/vaultcryptor/internal/tlog"
)

// Job is one unit of work, usually one file.
type Job struct {
	// Name identifies the job in events and errors.
	Name string
	// Run does the work. It should call "progress" with the fraction done.
	Run func(ctx context.Context, progress func(fraction float64)) error
}

// Event is a notification about a job.
type Event struct {
	// Job is the Name of the job.
	Job string
	// Progress is the fraction done, in [0, 1].
	Progress float64
	// Done is set on the final event of a job.
	Done bool
	// Err is the job's result, only meaningful when Done is set.
	Err error
}

// Run executes "jobs" with at most "workers" running at the same time
// (runtime.NumCPU() if workers <= 0) and waits for all of them.
//
// Events are sent to "events" if it is not nil; Run closes the channel when
// it returns. After "ctx" is cancelled no new jobs are started, but jobs
// already running are not interrupted.
//
// The returned error joins the errors of all failed jobs and the context
// error, if any.
func Run(ctx context.Context, jobs []Job, workers int, events chan<- Event) error {
	if events != nil {
		defer close(events)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	send := func(ev Event) {
		if events != nil {
			events <- ev
		}
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	group := errgroup.Group{}
	group.SetLimit(workers)
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			// The job may have waited for a free slot while the context was
			// cancelled.
			if ctx.Err() != nil {
				return nil
			}
			err := job.Run(ctx, func(f float64) {
				send(Event{Job: job.Name, Progress: f})
			})
			if err != nil {
				tlog.Debug.Printf("workqueue: %s: %v", job.Name, err)
				err = fmt.Errorf("%s: %w", job.Name, err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			send(Event{Job: job.Name, Progress: 1, Done: true, Err: err})
			return nil
		})
	}
	group.Wait()
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
