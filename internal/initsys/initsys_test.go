//go:build !windows

package initsys

import (
	"context"
	"errors"
	"testing"

	"github.com/HerbHall/cellwatch/internal/command"
	"github.com/HerbHall/cellwatch/internal/testutil"
)

func TestDetect_ReturnsNonNil(t *testing.T) {
	c, err := Detect(testutil.NewRunner(), "")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if c == nil {
		t.Fatal("Detect() returned nil, expected a Controller")
	}
	t.Logf("detected init system: %s", c.Name())
}

func TestDetect_Forced(t *testing.T) {
	tests := []string{"systemd", "openrc", "sysv"}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			c, err := Detect(testutil.NewRunner(), name)
			if err != nil {
				t.Fatalf("Detect(%q) error = %v", name, err)
			}
			if got := c.Name(); got != name {
				t.Errorf("Name() = %q, want %q", got, name)
			}
		})
	}
}

func TestDetect_Unknown(t *testing.T) {
	if _, err := Detect(testutil.NewRunner(), "upstart"); err == nil {
		t.Fatal("expected error for unknown init system")
	}
}

func TestControllers_Commands(t *testing.T) {
	tests := []struct {
		name   string
		stop   string
		start  string
		status string
	}{
		{"systemd", "systemctl stop sagecell", "systemctl start sagecell", "systemctl is-active --quiet sagecell"},
		{"openrc", "rc-service sagecell stop", "rc-service sagecell start", "rc-service sagecell status"},
		{"sysv", "service sagecell stop", "service sagecell start", "service sagecell status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testutil.NewRunner()
			c, err := Detect(r, tt.name)
			if err != nil {
				t.Fatal(err)
			}
			ctx := context.Background()
			if err := c.Stop(ctx, "sagecell"); err != nil {
				t.Fatalf("Stop: %v", err)
			}
			if err := c.Start(ctx, "sagecell"); err != nil {
				t.Fatalf("Start: %v", err)
			}
			if _, err := c.Active(ctx, "sagecell"); err != nil {
				t.Fatalf("Active: %v", err)
			}
			calls := r.Calls()
			want := []string{tt.stop, tt.start, tt.status}
			if len(calls) != len(want) {
				t.Fatalf("calls = %v, want %v", calls, want)
			}
			for i := range want {
				if calls[i] != want[i] {
					t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
				}
			}
		})
	}
}

func TestActive_ExitCodes(t *testing.T) {
	tests := []struct {
		name    string
		res     command.Result
		want    bool
		wantErr bool
	}{
		{"running", testutil.Exit(0), true, false},
		{"inactive", testutil.Exit(3), false, false},
		{"probe failed to start", command.Result{ExitCode: -1, Err: errors.New("exec: not found")}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testutil.NewRunner().On("systemctl is-active", tt.res)
			c, _ := Detect(r, "systemd")
			got, err := c.Active(context.Background(), "sagecell")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Active() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStop_PropagatesFailure(t *testing.T) {
	r := testutil.NewRunner().On("systemctl stop", command.Result{ExitCode: 5, Stderr: "Unit sagecell.service not loaded."})
	c, _ := Detect(r, "systemd")
	err := c.Stop(context.Background(), "sagecell")
	if err == nil {
		t.Fatal("expected error from failed stop")
	}
}
