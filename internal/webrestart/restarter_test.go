package webrestart

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/cellwatch/internal/command"
	"github.com/HerbHall/cellwatch/internal/proc"
	"github.com/HerbHall/cellwatch/internal/report"
	"github.com/HerbHall/cellwatch/internal/testutil"
	"github.com/HerbHall/cellwatch/internal/wait"
)

type fakeTmux struct {
	mu       sync.Mutex
	sessions map[string]bool
	stubborn map[string]bool
	events   *[]string
	listErr  error
	noLaunch bool
}

func (f *fakeTmux) record(e string) {
	*f.events = append(*f.events, e)
}

func (f *fakeTmux) ListSessions(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []string
	for s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeTmux) HasSession(ctx context.Context, name string) (bool, error) {
	sessions, err := f.ListSessions(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range sessions {
		if s == name {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTmux) Interrupt(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("interrupt " + name)
	if !f.stubborn[name] {
		delete(f.sessions, name)
	}
	return nil
}

func (f *fakeTmux) NewDetached(_ context.Context, name, _ string, _ ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("launch " + name)
	if !f.noLaunch {
		f.sessions[name] = true
	}
	return nil
}

type fakeProcs struct {
	procs   []proc.Process
	killed  []int
	killErr error
}

func (f *fakeProcs) List(context.Context) ([]proc.Process, error) { return f.procs, nil }

func (f *fakeProcs) Kill(pid int) error {
	if f.killErr != nil {
		return f.killErr
	}
	f.killed = append(f.killed, pid)
	return nil
}

type fixture struct {
	events []string
	tmux   *fakeTmux
	build  *testutil.Runner
	remote *testutil.Runner
	procs  *fakeProcs
	cfg    Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	f.tmux = &fakeTmux{
		sessions: map[string]bool{"sagecell": true, "sagecell-router": true, "scratch": true},
		stubborn: map[string]bool{},
		events:   &f.events,
	}
	f.build = testutil.NewRunner().OnFunc("make", func(call string) command.Result {
		f.events = append(f.events, call)
		return command.Result{}
	})
	f.remote = testutil.NewRunner()
	f.procs = &fakeProcs{procs: []proc.Process{
		{PID: 10, Cmdline: "python web_server.py -p 8888"},
		{PID: 11, Cmdline: "bash"},
	}}

	f.cfg = *DefaultConfig()
	f.cfg.SessionTimeout = 50 * time.Millisecond
	f.cfg.SocketGlobs = []string{filepath.Join(t.TempDir(), "ipc-*")}
	f.cfg.Remote.Host = "cell2"
	f.cfg.Launch.Timeout = 50 * time.Millisecond
	return f
}

func (f *fixture) restarter(t *testing.T) *Restarter {
	t.Helper()
	r, err := New(f.cfg, Deps{
		Sessions: f.tmux,
		Build:    f.build,
		Table:    f.procs,
		Killer:   f.procs,
		Remote:   f.remote,
		Now:      testutil.NewClock().Now,
	}, zap.NewNop())
	require.NoError(t, err)
	r.backoff = wait.Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond}
	return r
}

func indexOf(events []string, e string) int {
	for i, v := range events {
		if v == e {
			return i
		}
	}
	return -1
}

func TestRun_FullRestart(t *testing.T) {
	f := newFixture(t)
	sock := filepath.Join(filepath.Dir(f.cfg.SocketGlobs[0]), "ipc-1")
	require.NoError(t, os.WriteFile(sock, nil, 0o600))

	rep, err := f.restarter(t).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, report.OutcomeRelaunched, rep.Outcome)
	assert.Equal(t, 0, rep.ExitCode)

	// Sessions are interrupted web server first, then router.
	assert.Less(t, indexOf(f.events, "interrupt sagecell"), indexOf(f.events, "interrupt sagecell-router"))
	// Build happens before the new session is launched.
	buildAt := indexOf(f.events, "make -B")
	launchAt := indexOf(f.events, "launch sagecell")
	require.GreaterOrEqual(t, buildAt, 0)
	assert.Less(t, buildAt, launchAt)

	assert.Equal(t, []string{"pkill -KILL -f web_server.py"}, f.remote.Calls())
	assert.Equal(t, []int{10}, f.procs.killed)
	_, statErr := os.Stat(sock)
	assert.True(t, os.IsNotExist(statErr), "stale socket removed")
	assert.True(t, f.tmux.sessions["scratch"], "unrelated sessions untouched")

	assert.Equal(t, []string{
		"interrupt:sagecell", "interrupt:sagecell-router",
		StepRemoteKill, StepLocalKill, StepRemoveSockets,
		StepVerify, StepBuild, StepLaunch,
	}, rep.StepNames())
}

func TestRun_SessionPersists_NoBuild(t *testing.T) {
	f := newFixture(t)
	f.tmux.stubborn["sagecell-router"] = true

	rep, err := f.restarter(t).Run(context.Background(), Options{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionsPersist)
	assert.Contains(t, err.Error(), "sagecell-router")
	assert.Equal(t, report.OutcomeNotTerminated, rep.Outcome)
	assert.Equal(t, 1, rep.ExitCode)
	assert.Empty(t, f.build.Calls(), "build tool must not run")
	assert.Equal(t, -1, indexOf(f.events, "launch sagecell"))
}

func TestRun_VerifyOnly(t *testing.T) {
	f := newFixture(t)

	rep, err := f.restarter(t).Run(context.Background(), Options{VerifyOnly: true})

	assert.ErrorIs(t, err, ErrVerifyOnly)
	assert.Equal(t, report.OutcomeStopped, rep.Outcome)
	assert.Equal(t, 1, rep.ExitCode)
	assert.Empty(t, f.build.Calls())
	assert.Equal(t, StepVerify, rep.StepNames()[len(rep.Steps)-1], "stops right after verification")
}

func TestRun_ListFailureFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.tmux.listErr = errors.New("tmux: permission denied")

	rep, err := f.restarter(t).Run(context.Background(), Options{})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionsPersist)
	assert.Equal(t, 1, rep.ExitCode)
	assert.Empty(t, f.build.Calls())
}

func TestRun_BuildFailure(t *testing.T) {
	f := newFixture(t)
	f.build = testutil.NewRunner().On("make", command.Result{ExitCode: 2, Stderr: "make: *** [all] Error 1"})

	rep, err := f.restarter(t).Run(context.Background(), Options{})

	require.Error(t, err)
	assert.Equal(t, report.OutcomeFailed, rep.Outcome)
	assert.Equal(t, 1, rep.ExitCode)
	assert.Equal(t, -1, indexOf(f.events, "launch sagecell"), "no launch after failed build")
}

func TestRun_LaunchedSessionDies(t *testing.T) {
	f := newFixture(t)
	f.tmux.noLaunch = true

	rep, err := f.restarter(t).Run(context.Background(), Options{})

	require.Error(t, err)
	assert.ErrorIs(t, err, wait.ErrTimeout)
	assert.Equal(t, report.OutcomeFailed, rep.Outcome)
}

func TestRun_RemoteFailureIsBestEffort(t *testing.T) {
	f := newFixture(t)
	f.remote = testutil.NewRunner().On("pkill", command.Result{ExitCode: -1, Err: errors.New("dial cell2:22: connection refused")})

	rep, err := f.restarter(t).Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 0, rep.ExitCode)
	failed := rep.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, StepRemoteKill, failed[0].Name)
}

func TestRun_LocalKillFailureKeepsCause(t *testing.T) {
	f := newFixture(t)
	f.procs.killErr = errors.New("operation not permitted")

	rep, err := f.restarter(t).Run(context.Background(), Options{})

	require.NoError(t, err, "local kill is best effort")
	failed := rep.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, StepLocalKill, failed[0].Name)
	assert.Contains(t, failed[0].Detail, `killed 0 processes matching "web_server.py"`)
	assert.Contains(t, failed[0].Detail, "operation not permitted")
}

func TestRun_SettleBeforeVerify(t *testing.T) {
	f := newFixture(t)
	f.cfg.Settle = 5 * time.Millisecond

	rep, err := f.restarter(t).Run(context.Background(), Options{VerifyOnly: true})

	assert.ErrorIs(t, err, ErrVerifyOnly)
	names := rep.StepNames()
	require.Len(t, names, 7)
	assert.Equal(t, []string{StepRemoveSockets, StepSettle, StepVerify}, names[4:])
}

func TestRun_SettleCancelled(t *testing.T) {
	f := newFixture(t)
	f.cfg.Settle = time.Hour
	r := f.restarter(t)

	ctx, cancel := context.WithCancel(context.Background())
	r.deps.Killer = cancelKiller{cancel: cancel}

	rep, err := r.Run(ctx, Options{})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, report.OutcomeNotTerminated, rep.Outcome)
	assert.Equal(t, 1, rep.ExitCode)
	assert.Empty(t, f.build.Calls())
}

// cancelKiller cancels the run the moment cleanup starts killing.
type cancelKiller struct{ cancel context.CancelFunc }

func (k cancelKiller) Kill(int) error {
	k.cancel()
	return nil
}

type downPinger struct{}

func (downPinger) Reachable(context.Context, string) (bool, error) { return false, nil }

func TestRun_RemoteUnreachableSkipped(t *testing.T) {
	f := newFixture(t)
	r := f.restarter(t)
	r.deps.Pinger = downPinger{}

	_, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Empty(t, f.remote.Calls())
}

func TestRun_NoRemoteConfigured(t *testing.T) {
	f := newFixture(t)
	r := f.restarter(t)
	r.deps.Remote = nil

	rep, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.NotContains(t, rep.StepNames(), StepRemoteKill)
}

func TestRemoveGlobs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"ipc-1", "ipc-2", "keep"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "ipc-dir"), 0o755))

	n, err := RemoveGlobs([]string{filepath.Join(dir, "ipc-*"), filepath.Join(dir, "absent-*")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, filepath.Join(dir, "keep"))
	assert.DirExists(t, filepath.Join(dir, "ipc-dir"))

	_, err = RemoveGlobs([]string{"[bad"})
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t)
	deps := Deps{Sessions: f.tmux, Build: f.build, Table: f.procs, Killer: f.procs}

	bad := f.cfg
	bad.Sessions = nil
	_, err := New(bad, deps, zap.NewNop())
	assert.Error(t, err)

	bad = f.cfg
	bad.Build.Command = nil
	_, err = New(bad, deps, zap.NewNop())
	assert.Error(t, err)

	_, err = New(f.cfg, Deps{}, zap.NewNop())
	assert.Error(t, err)
}
