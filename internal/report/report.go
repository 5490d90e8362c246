// Package report records the ordered steps of one monitor or restart run.
package report

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies which procedure produced a report.
type Kind string

const (
	KindHealthCheck Kind = "healthcheck"
	KindWebRestart  Kind = "restart-web"
)

// Outcome is the terminal classification of a run.
type Outcome string

const (
	OutcomeDisabled      Outcome = "disabled"
	OutcomeHealthy       Outcome = "healthy"
	OutcomeRestarted     Outcome = "restarted"
	OutcomeSuppressed    Outcome = "suppressed"
	OutcomeRelaunched    Outcome = "relaunched"
	OutcomeStopped       Outcome = "stopped"
	OutcomeNotTerminated Outcome = "not_terminated"
	OutcomeFailed        Outcome = "failed"
)

// Step is one action taken during a run.
type Step struct {
	Name     string        `json:"name" yaml:"name"`
	OK       bool          `json:"ok" yaml:"ok"`
	Detail   string        `json:"detail,omitempty" yaml:"detail,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Report is the full account of a run.
type Report struct {
	ID         string    `json:"id" yaml:"id"`
	Kind       Kind      `json:"kind" yaml:"kind"`
	Outcome    Outcome   `json:"outcome" yaml:"outcome"`
	ExitCode   int       `json:"exit_code" yaml:"exit_code"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Detail     string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	Steps      []Step    `json:"steps" yaml:"steps"`

	now func() time.Time
}

// New starts a report for kind. now defaults to time.Now.
func New(kind Kind, now func() time.Time) *Report {
	if now == nil {
		now = time.Now
	}
	return &Report{
		ID:        uuid.New().String(),
		Kind:      kind,
		StartedAt: now().UTC(),
		now:       now,
	}
}

// Add appends a completed step.
func (r *Report) Add(name string, ok bool, detail string, d time.Duration) {
	r.Steps = append(r.Steps, Step{Name: name, OK: ok, Detail: detail, Duration: d})
}

// Track runs fn as a named step and records its result and timing. A failed
// step's detail always carries the error text.
func (r *Report) Track(name string, fn func() (detail string, err error)) error {
	start := r.now()
	detail, err := fn()
	switch {
	case err == nil:
	case detail == "":
		detail = err.Error()
	default:
		detail += ": " + err.Error()
	}
	r.Add(name, err == nil, detail, r.now().Sub(start))
	return err
}

// Finish stamps the outcome and exit code.
func (r *Report) Finish(outcome Outcome, exitCode int, detail string) {
	r.Outcome = outcome
	r.ExitCode = exitCode
	r.Detail = detail
	r.FinishedAt = r.now().UTC()
}

// StepNames lists step names in execution order.
func (r *Report) StepNames() []string {
	names := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		names[i] = s.Name
	}
	return names
}

// Failed returns the steps that did not succeed.
func (r *Report) Failed() []Step {
	var out []Step
	for _, s := range r.Steps {
		if !s.OK {
			out = append(out, s)
		}
	}
	return out
}
