// Package sorter orchestrates a single sort run: it walks a source
// directory, builds FileFacts per file, evaluates the ruleset through
// the matcher, runs matched actions through the executor, and merges
// per-file outcomes into a Report.
package sorter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/foldsort/foldsort/internal/executor"
	"github.com/foldsort/foldsort/internal/facts"
	"github.com/foldsort/foldsort/internal/matcher"
	"github.com/foldsort/foldsort/internal/rules"
)

// BadSourceError is returned when source is not a readable directory.
type BadSourceError struct {
	Path string
	Err  error
}

func (e *BadSourceError) Error() string {
	return fmt.Sprintf("sorter: bad source %q: %v", e.Path, e.Err)
}
func (e *BadSourceError) Unwrap() error { return e.Err }

// Observer receives progress events during a run. Implementations must
// be cheap and safe to call concurrently from multiple workers; any
// contention is the observer's own responsibility to manage.
type Observer interface {
	OnProgress(scanned, matched int, currentPath string)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) OnProgress(int, int, string) {}

// Options configures a single run.
type Options struct {
	RuleIDs  []string // optional allow-list; nil/empty means all enabled rules
	DryRun   bool
	Workers  int // default: runtime.NumCPU()
	Observer Observer

	// Cancel, if non-nil, is polled between files as a cooperative
	// cancellation flag.
	Cancel *atomic.Bool
}

// FileRecord is one file's outcome.
type FileRecord struct {
	Path     string
	RuleID   string // empty if no rule matched
	Outcomes []executor.Outcome
	Error    error
}

// Report aggregates every FileRecord from a run.
type Report struct {
	ScannedN  int
	MatchedN  int
	PerRule   map[string]int
	PerAction map[rules.ActionKind]int
	Files     []FileRecord
	Cancelled bool
	DryRun    bool
}

// Sort walks source and applies ruleset's enabled rules to every regular
// file found.
func Sort(ctx context.Context, source string, ruleset rules.Ruleset, opts Options) (*Report, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, &BadSourceError{Path: source, Err: err}
	}
	if !info.IsDir() {
		return nil, &BadSourceError{Path: source, Err: fmt.Errorf("not a directory")}
	}

	sortedRules := ruleset.Sorted(opts.RuleIDs)

	paths, err := collectFiles(source)
	if err != nil {
		return nil, &BadSourceError{Path: source, Err: err}
	}

	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}

	exec := executor.New(source, opts.DryRun)

	report := &Report{
		PerRule:   make(map[string]int),
		PerAction: make(map[rules.ActionKind]int),
		DryRun:    opts.DryRun,
	}

	var (
		mu        sync.Mutex
		scanned   int32
		matched   int32
		jobs      = make(chan string)
		wg        sync.WaitGroup
		cancelled atomic.Bool
	)

	worker := func() {
		defer wg.Done()
		for path := range jobs {
			if opts.Cancel != nil && opts.Cancel.Load() {
				cancelled.Store(true)
				continue
			}

			rec := processFile(ctx, exec, sortedRules, path)

			n := atomic.AddInt32(&scanned, 1)
			var m int32
			if rec.RuleID != "" {
				m = atomic.AddInt32(&matched, 1)
			} else {
				m = atomic.LoadInt32(&matched)
			}
			observer.OnProgress(int(n), int(m), path)

			mu.Lock()
			report.Files = append(report.Files, rec)
			if rec.RuleID != "" {
				report.PerRule[rec.RuleID]++
			}
			for _, o := range rec.Outcomes {
				report.PerAction[o.Kind]++
			}
			mu.Unlock()
		}
	}

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go worker()
	}
	for _, p := range paths {
		jobs <- p
	}
	close(jobs)
	wg.Wait()

	report.ScannedN = len(report.Files)
	report.MatchedN = int(matched)
	report.Cancelled = cancelled.Load()
	return report, nil
}

// processFile builds facts for path, walks sortedRules for the first
// match, and runs its action sequence.
func processFile(ctx context.Context, exec *executor.Executor, sortedRules []rules.Rule, path string) FileRecord {
	f, err := facts.Build(path)
	if err != nil {
		return FileRecord{Path: path, Error: err}
	}

	for _, r := range sortedRules {
		if !matcher.Matches(r.When, f) {
			continue
		}
		outcomes, runErr := exec.RunSequence(ctx, r.Then, f)
		return FileRecord{Path: path, RuleID: r.ID, Outcomes: outcomes, Error: runErr}
	}

	return FileRecord{Path: path}
}

// collectFiles recursively walks root, returning every regular file.
// Symlinks are reported via FileFacts.IsSymlink but not followed during
// recursion: a symlink to a directory is left as a leaf, never descended
// into.
func collectFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			out = append(out, path)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		out = append(out, path)
		return nil
	})
	return out, err
}
