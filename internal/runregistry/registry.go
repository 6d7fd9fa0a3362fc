// Package runregistry tracks in-progress and historical Sort runs and
// mediates cooperative cancellation between the CLI and a running
// Sorter. It is adapted from the agent identity/kill-switch model: a
// Sort run takes the place of an agent, and Cancel takes the place of a
// kill. Runs are registered explicitly by Start, the whole run history
// is persisted on Start and Finish, and cancel flags are held in memory
// only; the file is not watched for out-of-process changes.
package runregistry

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Status is a run's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Run is a single tracked Sort invocation.
type Run struct {
	ID         string     `yaml:"-" json:"id"`
	Source     string     `yaml:"source" json:"source"`
	DryRun     bool       `yaml:"dry_run" json:"dry_run"`
	Status     Status     `yaml:"status" json:"status"`
	StartedAt  time.Time  `yaml:"started_at" json:"started_at"`
	FinishedAt *time.Time `yaml:"finished_at,omitempty" json:"finished_at,omitempty"`
	ScannedN   int        `yaml:"scanned_n" json:"scanned_n"`
	MatchedN   int        `yaml:"matched_n" json:"matched_n"`
	Error      string     `yaml:"error,omitempty" json:"error,omitempty"`
}

// Registry tracks runs and persists them to runs.yaml. Thread-safe: the
// CLI's `sort` command touches it from the run's own goroutine while
// other goroutines of the same process (the signal handler, the
// dashboard API) read runs or flip cancel flags.
type Registry struct {
	mu      sync.RWMutex
	runs    map[string]*Run
	cancels map[string]*atomic.Bool
	path    string
}

type registryFile struct {
	Runs map[string]*Run `yaml:"runs"`
}

// NewRegistry loads run history from path. A missing file yields an
// empty registry, not an error.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{
		runs:    make(map[string]*Run),
		cancels: make(map[string]*atomic.Bool),
		path:    path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("reading run registry %s: %w", path, err)
	}
	if len(data) == 0 {
		return r, nil
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing run registry %s: %w", path, err)
	}
	for id, run := range file.Runs {
		if run == nil {
			continue
		}
		run.ID = id
		r.runs[id] = run
	}
	return r, nil
}

// Start registers a new run as StatusRunning and returns a cancel flag
// the Sorter should poll via sorter.Options.Cancel.
func (r *Registry) Start(id, source string, dryRun bool) *atomic.Bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[id] = &Run{
		ID:        id,
		Source:    source,
		DryRun:    dryRun,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	flag := &atomic.Bool{}
	r.cancels[id] = flag
	if err := r.save(); err != nil {
		slog.Warn("failed to persist run registry on start", "run", id, "error", err)
	}
	slog.Info("sort run started", "run", id, "source", source, "dry_run", dryRun)
	return flag
}

// Finish records a run's terminal state and persists the registry.
func (r *Registry) Finish(id string, scannedN, matchedN int, cancelled bool, runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return &RunNotFoundError{ID: id}
	}

	now := time.Now().UTC()
	run.FinishedAt = &now
	run.ScannedN = scannedN
	run.MatchedN = matchedN

	switch {
	case runErr != nil:
		run.Status = StatusFailed
		run.Error = runErr.Error()
	case cancelled:
		run.Status = StatusCancelled
	default:
		run.Status = StatusCompleted
	}

	delete(r.cancels, id)
	slog.Info("sort run finished", "run", id, "status", run.Status, "scanned", scannedN, "matched", matchedN)
	return r.save()
}

// Cancel flips the cooperative cancel flag for a running run. A run that
// has already finished, or was never started in this process, returns
// RunNotFoundError.
func (r *Registry) Cancel(id string) error {
	r.mu.RLock()
	flag, ok := r.cancels[id]
	r.mu.RUnlock()
	if !ok {
		return &RunNotFoundError{ID: id}
	}
	flag.Store(true)
	slog.Info("sort run cancel requested", "run", id)
	return nil
}

// Get returns a copy of the tracked run, if any.
func (r *Registry) Get(id string) (Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, &RunNotFoundError{ID: id}
	}
	return *run, nil
}

// List returns every tracked run, most recently started first.
func (r *Registry) List() []Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// save persists the registry to its YAML file. Caller must hold mu.
func (r *Registry) save() error {
	file := registryFile{Runs: r.runs}
	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("marshaling run registry: %w", err)
	}
	return os.WriteFile(r.path, data, 0o644)
}

// RunNotFoundError is returned by Cancel/Get for an unknown run id.
type RunNotFoundError struct{ ID string }

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("run %q not found", e.ID)
}
