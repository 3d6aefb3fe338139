package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"
	"time"

	"github.com/golang/glog"
)

const (
	memProfileRate = 4096
	timeFormat     = "20060102_150405"
)

// profile starts writing one kind of profile to f and returns the func that finishes it.
type profile struct {
	kind  string
	start func(f *os.File) (stop func(), err error)
}

func lookupProfile(name string, setup, reset func()) func(f *os.File) (func(), error) {
	return func(f *os.File) (func(), error) {
		setup()
		return func() {
			if p := pprof.Lookup(name); p != nil {
				p.WriteTo(f, 0)
			}
			reset()
		}, nil
	}
}

func noop() {}

var profiles = []profile{
	{"cpu", func(f *os.File) (func(), error) {
		if err := pprof.StartCPUProfile(f); err != nil {
			return nil, err
		}
		return pprof.StopCPUProfile, nil
	}},
	{"mem", func(f *os.File) (func(), error) {
		old := runtime.MemProfileRate
		runtime.MemProfileRate = memProfileRate
		return func() {
			pprof.Lookup("heap").WriteTo(f, 0)
			runtime.MemProfileRate = old
		}, nil
	}},
	{"mutex", lookupProfile("mutex",
		func() { runtime.SetMutexProfileFraction(1) },
		func() { runtime.SetMutexProfileFraction(0) })},
	{"block", lookupProfile("block",
		func() { runtime.SetBlockProfileRate(1) },
		func() { runtime.SetBlockProfileRate(0) })},
	{"threadcreate", lookupProfile("threadcreate", noop, noop)},
	{"trace", func(f *os.File) (func(), error) {
		if err := trace.Start(f); err != nil {
			return nil, err
		}
		return trace.Stop, nil
	}},
}

// Profiler is a profiling session toggled by SIGUSR2.
type Profiler struct {
	dataDir  string
	stopOnce sync.Once
	closers  []func()
}

// StartProfiler starts every profile kind; a kind that fails to start is logged and skipped.
func StartProfiler(dataDir string) *Profiler {
	p := &Profiler{dataDir: dataDir}
	for _, prof := range profiles {
		fn := p.dumpFile(prof.kind, "pprof")
		f, err := os.Create(fn)
		if err != nil {
			glog.Errorf("pprof: could not create %s profile %q: %v", prof.kind, fn, err)
			continue
		}
		stop, err := prof.start(f)
		if err != nil {
			f.Close()
			glog.Errorf("pprof: could not start %s profile: %v", prof.kind, err)
			continue
		}
		glog.Infof("pprof: %s profiling enabled, %s", prof.kind, fn)

		kind := prof.kind
		p.closers = append(p.closers, func() {
			stop()
			f.Close()
			glog.Infof("pprof: %s profiling disabled, %s", kind, fn)
		})
	}
	return p
}

// Stop flushes and closes every profile.
func (p *Profiler) Stop() {
	p.stopOnce.Do(func() {
		for _, c := range p.closers {
			c()
		}
	})
}

func (p *Profiler) dumpFile(kind, ext string) string {
	return filepath.Join(p.dataDir, fmt.Sprintf("%s-%s.%s", kind, time.Now().Format(timeFormat), ext))
}

func dumpGoroutines(dataDir string) {
	fn := filepath.Join(dataDir, fmt.Sprintf("goroutines-%s.dump", time.Now().Format(timeFormat)))
	glog.Infof("dumping goroutines to %s", fn)
	f, err := os.Create(fn)
	if err != nil {
		glog.Errorf("dump goroutines: %v", err)
		return
	}
	defer f.Close()
	if err := pprof.Lookup("goroutine").WriteTo(f, 2); err != nil {
		glog.Errorf("dump goroutines to %s: %v", fn, err)
	}
}
