package command

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// ExecRunner runs programs on the local host via os/exec.
type ExecRunner struct {
	// Dir is the working directory; empty means the caller's directory.
	Dir string
}

// Compile-time interface guard.
var _ Runner = (*ExecRunner)(nil)

// NewExecRunner returns a Runner for the local host.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// InDir returns a copy of the runner that executes in dir.
func (e *ExecRunner) InDir(dir string) *ExecRunner {
	cp := *e
	cp.Dir = dir
	return &cp
}

// Run executes name with args and waits for it to finish.
func (e *ExecRunner) Run(ctx context.Context, name string, args ...string) Result {
	res := Result{Name: name, Args: args}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if err == nil {
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.Exited() {
		res.ExitCode = exitErr.ExitCode()
		return res
	}

	// Not started, or terminated by a signal or the context.
	res.ExitCode = -1
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Err = ctxErr
	} else {
		res.Err = err
	}
	return res
}
