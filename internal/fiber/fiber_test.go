package fiber

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResumeRunsToCompletion(t *testing.T) {
	ran := false
	f, err := New(func() { ran = true }, 0, true)
	require.NoError(t, err)

	require.NoError(t, f.Resume())
	require.True(t, ran)
	require.Equal(t, StateTerminated, f.State())
}

func TestYieldSuspendsAndResumeContinues(t *testing.T) {
	var steps []int
	f, err := New(func() {
		steps = append(steps, 1)
		Current().Yield()
		steps = append(steps, 2)
	}, 0, true)
	require.NoError(t, err)

	require.NoError(t, f.Resume())
	require.Equal(t, []int{1}, steps)
	require.Equal(t, StateReady, f.State())

	require.NoError(t, f.Resume())
	require.Equal(t, []int{1, 2}, steps)
	require.Equal(t, StateTerminated, f.State())
}

func TestResumeOnNonReadyFiberErrors(t *testing.T) {
	f, err := New(func() {}, 0, true)
	require.NoError(t, err)
	require.NoError(t, f.Resume())
	require.ErrorIs(t, f.Resume(), ErrNotReady)
}

func TestPanicRecoveredAsFailed(t *testing.T) {
	boom := errors.New("boom")
	f, err := New(func() { panic(boom) }, 0, true)
	require.NoError(t, err)

	require.NoError(t, f.Resume())
	require.Equal(t, StateFailed, f.State())
	require.Equal(t, boom, f.Err())
}

func TestResetReusesRegion(t *testing.T) {
	f, err := New(func() {}, 0, true)
	require.NoError(t, err)
	region := f.StackRegion()
	require.NoError(t, f.Resume())
	require.Equal(t, StateTerminated, f.State())

	ran := false
	require.NoError(t, f.Reset(func() { ran = true }))
	require.Same(t, region, f.StackRegion())
	require.NoError(t, f.Resume())
	require.True(t, ran)
}

func TestCurrentFiberBoundDuringCallback(t *testing.T) {
	var seen *Fiber
	f, err := New(func() { seen = Current() }, 0, true)
	require.NoError(t, err)
	require.NoError(t, f.Resume())
	require.Same(t, f, seen)
	require.Nil(t, Current())
}

func TestPrimordialCannotBeResumed(t *testing.T) {
	p := NewPrimordial(false)
	require.Error(t, p.Resume())
}
