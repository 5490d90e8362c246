package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/cellwatch/internal/command"
	"github.com/HerbHall/cellwatch/internal/testutil"
)

func TestFlagFile(t *testing.T) {
	f := &FlagFile{Path: filepath.Join(t.TempDir(), "state", "healthcheck")}
	ctx := context.Background()

	on, _ := f.Enabled(ctx)
	assert.True(t, on, "missing flag file means enabled")

	require.NoError(t, f.Set(false))
	on, reason := f.Enabled(ctx)
	assert.False(t, on)
	assert.Contains(t, reason, "off")

	require.NoError(t, f.Set(true))
	on, _ = f.Enabled(ctx)
	assert.True(t, on)
}

func TestFlagFile_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healthcheck")
	require.NoError(t, os.WriteFile(path, []byte("maybe\n"), 0o644))

	on, reason := (&FlagFile{Path: path}).Enabled(context.Background())
	assert.False(t, on, "unreadable gate disables monitoring")
	assert.Contains(t, reason, "maybe")
}

func TestCommandFacility(t *testing.T) {
	tests := []struct {
		name string
		res  command.Result
		want bool
	}{
		{"enabled", testutil.Exit(0), true},
		{"disabled", testutil.Exit(1), false},
		{"missing binary", command.Result{ExitCode: -1, Err: os.ErrNotExist}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testutil.NewRunner().On("/root/healthcheck status", tt.res)
			f, err := NewCommandFacility(r, []string{"/root/healthcheck", "status"})
			require.NoError(t, err)
			got, _ := f.Enabled(context.Background())
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NewCommandFacility(testutil.NewRunner(), nil)
	assert.Error(t, err)
}
