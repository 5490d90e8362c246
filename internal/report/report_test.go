package report

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/cellwatch/internal/testutil"
)

func TestReport_TrackAndFinish(t *testing.T) {
	clock := testutil.NewClock()
	r := New(KindHealthCheck, clock.Now)
	require.NotEmpty(t, r.ID)
	assert.Equal(t, clock.Now(), r.StartedAt)

	err := r.Track("stop", func() (string, error) {
		clock.Advance(2 * time.Second)
		return "systemctl stop sagecell", nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = r.Track("start", func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	r.Finish(OutcomeRestarted, 1, "service probe failed")

	assert.Equal(t, []string{"stop", "start"}, r.StepNames())
	assert.Equal(t, 2*time.Second, r.Steps[0].Duration)
	assert.True(t, r.Steps[0].OK)
	require.Len(t, r.Failed(), 1)
	assert.Equal(t, "boom", r.Failed()[0].Detail)
	assert.Equal(t, OutcomeRestarted, r.Outcome)
	assert.Equal(t, 1, r.ExitCode)
	assert.Equal(t, clock.Now(), r.FinishedAt)
}

func TestNew_DefaultClock(t *testing.T) {
	r := New(KindWebRestart, nil)
	assert.False(t, r.StartedAt.IsZero())
	assert.NotEqual(t, New(KindWebRestart, nil).ID, r.ID)
}

func TestTrack_DurationFromAutoClock(t *testing.T) {
	clock := testutil.NewClock().AutoAdvance(250 * time.Millisecond)
	r := New(KindWebRestart, clock.Now)
	require.NoError(t, r.Track("build", func() (string, error) { return "make -B", nil }))
	assert.Equal(t, 250*time.Millisecond, r.Steps[0].Duration)
	assert.Equal(t, "make -B", r.Steps[0].Detail)
}

func TestTrack_FailureKeepsDetailAndError(t *testing.T) {
	r := New(KindHealthCheck, testutil.NewClock().Now)
	eperm := errors.New("kill 4242: operation not permitted")
	err := r.Track("kill-account", func() (string, error) {
		return "killed 0 processes of sc_work", eperm
	})
	require.ErrorIs(t, err, eperm)
	require.Len(t, r.Failed(), 1)
	assert.Equal(t, "killed 0 processes of sc_work: kill 4242: operation not permitted", r.Failed()[0].Detail)
}
