// Package executor performs a single action against a single file,
// handling path templating, directory creation, trash-vs-permanent
// delete, rename collision policy, and dry-run short-circuit.
package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/Bios-Marcel/wastebasket/v2"

	"github.com/foldsort/foldsort/internal/facts"
	"github.com/foldsort/foldsort/internal/rules"
	"github.com/foldsort/foldsort/internal/template"
)

// Outcome records a single action's attempt against a single file.
type Outcome struct {
	Kind    rules.ActionKind
	Target  string // resolved target path, if any
	Success bool
	Skipped bool // true when the action was Skip
	Error   error
}

// Runner dispatches Execute actions to an external process through a
// pluggable interface — command-line safety policy lives with the
// caller, not this package.
type Runner interface {
	Run(ctx context.Context, command string, args []string) (exitCode int, err error)
}

// execRunner is the default Runner, backed by os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, command string, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

// Executor runs actions against files. The zero value uses the default
// os/exec-backed Runner.
type Executor struct {
	SourceRoot string
	DryRun     bool
	Runner     Runner
}

// New creates an Executor rooted at sourceRoot.
func New(sourceRoot string, dryRun bool) *Executor {
	return &Executor{SourceRoot: sourceRoot, DryRun: dryRun, Runner: execRunner{}}
}

// RunSequence attempts each action in order. On the first failure, the
// remaining actions are not attempted. Skip terminates the sequence
// successfully.
func (e *Executor) RunSequence(ctx context.Context, actions []rules.Action, f *facts.FileFacts) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(actions))
	for _, a := range actions {
		out := e.run(ctx, a, f)
		outcomes = append(outcomes, out)
		if out.Skipped {
			return outcomes, nil
		}
		if !out.Success {
			return outcomes, out.Error
		}
	}
	return outcomes, nil
}

func (e *Executor) run(ctx context.Context, a rules.Action, f *facts.FileFacts) Outcome {
	switch a.Kind {
	case rules.ActionMove:
		return e.move(a.Move, f)
	case rules.ActionCopy:
		return e.copy(a.Copy, f)
	case rules.ActionRename:
		return e.rename(a.Rename, f)
	case rules.ActionDelete:
		return e.delete(a.Delete, f)
	case rules.ActionSkip:
		return Outcome{Kind: rules.ActionSkip, Success: true, Skipped: true}
	case rules.ActionExecute:
		return e.execute(ctx, a.Execute, f)
	default:
		return Outcome{Kind: a.Kind, Success: false, Error: fmt.Errorf("executor: unhandled action kind %q", a.Kind)}
	}
}

func (e *Executor) move(a *rules.MoveAction, f *facts.FileFacts) Outcome {
	return e.moveOrCopy(rules.ActionMove, a.To, a.PreserveStructure, f, os.Rename)
}

func (e *Executor) copy(a *rules.CopyAction, f *facts.FileFacts) Outcome {
	return e.moveOrCopy(rules.ActionCopy, a.To, a.PreserveStructure, f, copyFile)
}

func (e *Executor) moveOrCopy(kind rules.ActionKind, to string, preserveStructure bool, f *facts.FileFacts, apply func(src, dst string) error) Outcome {
	expandedTo, err := template.Expand(to, variablesFromFacts(f))
	if err != nil {
		return Outcome{Kind: kind, Success: false, Error: err}
	}

	dir, err := resolveDestDir(expandedTo, e.SourceRoot, f.Path, preserveStructure)
	if err != nil {
		return Outcome{Kind: kind, Success: false, Error: &ActionError{Kind: ErrIoFailed, Path: f.Path, Cause: err}}
	}
	target := filepath.Join(dir, f.Basename)

	if e.DryRun {
		return Outcome{Kind: kind, Target: target, Success: true}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Outcome{Kind: kind, Success: false, Error: &ActionError{Kind: ErrIoFailed, Path: f.Path, Cause: err}}
	}

	finalTarget, err := resolveCollision(target)
	if err != nil {
		return Outcome{Kind: kind, Target: target, Success: false, Error: err}
	}

	if err := apply(f.Path, finalTarget); err != nil {
		return Outcome{Kind: kind, Target: finalTarget, Success: false, Error: &ActionError{Kind: ErrIoFailed, Path: f.Path, Cause: err}}
	}
	return Outcome{Kind: kind, Target: finalTarget, Success: true}
}

func (e *Executor) rename(a *rules.RenameAction, f *facts.FileFacts) Outcome {
	expanded, err := template.Expand(a.To, variablesFromFacts(f))
	if err != nil {
		return Outcome{Kind: rules.ActionRename, Success: false, Error: err}
	}
	newBase := finalSegment(expanded)
	target := filepath.Join(filepath.Dir(f.Path), newBase)

	if e.DryRun {
		return Outcome{Kind: rules.ActionRename, Target: target, Success: true}
	}
	if target == f.Path {
		return Outcome{Kind: rules.ActionRename, Target: target, Success: true}
	}

	finalTarget, err := resolveCollision(target)
	if err != nil {
		return Outcome{Kind: rules.ActionRename, Target: target, Success: false, Error: err}
	}
	if err := os.Rename(f.Path, finalTarget); err != nil {
		return Outcome{Kind: rules.ActionRename, Target: finalTarget, Success: false, Error: &ActionError{Kind: ErrIoFailed, Path: f.Path, Cause: err}}
	}
	return Outcome{Kind: rules.ActionRename, Target: finalTarget, Success: true}
}

func (e *Executor) delete(a *rules.DeleteAction, f *facts.FileFacts) Outcome {
	if e.DryRun {
		return Outcome{Kind: rules.ActionDelete, Target: f.Path, Success: true}
	}

	if a.Trash {
		if err := wastebasket.Trash(f.Path); err != nil {
			return Outcome{Kind: rules.ActionDelete, Target: f.Path, Success: false,
				Error: &ActionError{Kind: ErrTrashUnavailable, Path: f.Path, Cause: err}}
		}
		return Outcome{Kind: rules.ActionDelete, Target: f.Path, Success: true}
	}

	if err := os.Remove(f.Path); err != nil {
		return Outcome{Kind: rules.ActionDelete, Target: f.Path, Success: false,
			Error: &ActionError{Kind: ErrIoFailed, Path: f.Path, Cause: err}}
	}
	return Outcome{Kind: rules.ActionDelete, Target: f.Path, Success: true}
}

func (e *Executor) execute(ctx context.Context, a *rules.ExecuteAction, f *facts.FileFacts) Outcome {
	vars := variablesFromFacts(f)
	args := make([]string, len(a.Args))
	for i, raw := range a.Args {
		expanded, err := template.Expand(raw, vars)
		if err != nil {
			return Outcome{Kind: rules.ActionExecute, Success: false, Error: err}
		}
		args[i] = expanded
	}

	if e.DryRun {
		return Outcome{Kind: rules.ActionExecute, Target: a.Command, Success: true}
	}

	runner := e.Runner
	if runner == nil {
		runner = execRunner{}
	}
	exitCode, err := runner.Run(ctx, a.Command, args)
	if err != nil {
		return Outcome{Kind: rules.ActionExecute, Target: a.Command, Success: false,
			Error: &ActionError{Kind: ErrIoFailed, Path: f.Path, Cause: err}}
	}
	if exitCode != 0 {
		return Outcome{Kind: rules.ActionExecute, Target: a.Command, Success: false,
			Error: &ActionError{Kind: ErrExecuteFailed, Path: f.Path, ExitCode: exitCode}}
	}
	return Outcome{Kind: rules.ActionExecute, Target: a.Command, Success: true}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
