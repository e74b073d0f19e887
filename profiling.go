package main

import (
	"fmt"
	"os"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/rfjakob/vaultcryptor/internal/exitcodes"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
)

// startProfiling handles --cpuprofile, --memprofile and --trace. The stop
// functions are collected in c.stopProfiling.
func (c *cli) startProfiling() error {
	var stops []func()
	for _, p := range []struct {
		arg   string
		setup func(string) (func(), error)
	}{
		{c.args.cpuprofile, setupCpuprofile},
		{c.args.memprofile, setupMemprofile},
		{c.args.trace, setupTrace},
	} {
		if p.arg == "" {
			continue
		}
		stop, err := p.setup(p.arg)
		if err != nil {
			for _, s := range stops {
				s()
			}
			return exitcodes.Wrap(err, exitcodes.Profiler)
		}
		stops = append(stops, stop)
	}
	c.stopProfiling = func() {
		for _, s := range stops {
			s()
		}
	}
	return nil
}

// setupCpuprofile is called to handle a non-empty "--cpuprofile" cli argument
func setupCpuprofile(cpuprofileArg string) (func(), error) {
	tlog.Info.Printf("Writing CPU profile to %s", cpuprofileArg)
	f, err := os.Create(cpuprofileArg)
	if err != nil {
		return nil, err
	}
	err = pprof.StartCPUProfile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cpuprofile: %w", err)
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}, nil
}

// setupMemprofile is called to handle a non-empty "--memprofile" cli argument
func setupMemprofile(memprofileArg string) (func(), error) {
	tlog.Info.Printf("Will write memory profile to %q", memprofileArg)
	f, err := os.Create(memprofileArg)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	// Write the memory profile to disk every 60 seconds to get the in-use
	// memory stats of long imports.
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			if _, err := f.Seek(0, 0); err != nil {
				tlog.Warn.Printf("memprofile: Seek failed: %v", err)
				return
			}
			if err := f.Truncate(0); err != nil {
				tlog.Warn.Printf("memprofile: Truncate failed: %v", err)
				return
			}
			if err := pprof.WriteHeapProfile(f); err != nil {
				tlog.Warn.Printf("memprofile: periodic WriteHeapProfile failed: %v", err)
				return
			}
			tlog.Info.Printf("memprofile: periodic write to %q succeeded", memprofileArg)
		}
	}()
	// Final write on exit.
	return func() {
		close(done)
		if err := pprof.WriteHeapProfile(f); err != nil {
			tlog.Warn.Printf("memprofile: on-exit WriteHeapProfile failed: %v", err)
		}
		f.Close()
	}, nil
}

// setupTrace is called to handle a non-empty "--trace" cli argument
func setupTrace(traceArg string) (func(), error) {
	tlog.Info.Printf("Writing execution trace to %s", traceArg)
	f, err := os.Create(traceArg)
	if err != nil {
		return nil, err
	}
	if err := trace.Start(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("trace: %w", err)
	}
	return func() {
		trace.Stop()
		f.Close()
	}, nil
}
