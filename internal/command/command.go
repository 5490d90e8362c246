// Package command runs external programs and reports each invocation as a
// typed Result instead of relying on ambient exit-code checks.
package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result captures the outcome of a single external invocation.
type Result struct {
	Name     string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	// Err is set when the program could not be started or was killed by a
	// signal or context. A plain non-zero exit leaves Err nil.
	Err error
}

// Runner executes a program and returns its Result. Implementations never
// return a nil-equivalent: a program that cannot be started yields a Result
// with Err set and ExitCode -1.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) Result
}

// OK reports whether the program started and exited with status zero.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// NotFound reports whether the program binary could not be located.
func (r Result) NotFound() bool {
	return errors.Is(r.Err, exec.ErrNotFound)
}

// Error converts a failed Result into an error, or nil when OK.
func (r Result) Error() error {
	if r.OK() {
		return nil
	}
	if r.Err != nil {
		return fmt.Errorf("%s: %w", r.Command(), r.Err)
	}
	msg := strings.TrimSpace(r.Stderr)
	if msg == "" {
		return fmt.Errorf("%s: exit status %d", r.Command(), r.ExitCode)
	}
	return fmt.Errorf("%s: exit status %d: %s", r.Command(), r.ExitCode, msg)
}

// Command returns the invocation as a single printable line.
func (r Result) Command() string {
	if len(r.Args) == 0 {
		return r.Name
	}
	return r.Name + " " + strings.Join(r.Args, " ")
}
