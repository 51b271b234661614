package cthread

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBlocksUntilStartedAndRuns(t *testing.T) {
	ran := make(chan struct{})
	th := New(Options{Name: "worker-0", CPUID: -1}, func() {
		close(ran)
	})
	th.Join()
	select {
	case <-ran:
	default:
		t.Fatalf("fn never ran")
	}
	require.Equal(t, "worker-0", th.Name())
}

func TestNameTruncated(t *testing.T) {
	th := New(Options{Name: "a-name-that-is-definitely-too-long", CPUID: -1}, func() {})
	th.Join()
	require.LessOrEqual(t, len(th.Name()), maxNameLen)
}

func TestCurrentThreadNameObservableFromInsideFn(t *testing.T) {
	seen := make(chan string, 1)
	th := New(Options{Name: "observed", CPUID: -1}, func() {
		seen <- CurrentThreadName()
	})
	th.Join()
	require.Equal(t, "observed", <-seen)
}

func TestPinFailureIsWarningNotFatal(t *testing.T) {
	var warnErr error
	ran := make(chan struct{})
	th := New(Options{Name: "pinned", CPUID: 1 << 30, OnPinFailure: func(err error) {
		warnErr = err
	}}, func() { close(ran) })
	th.Join()
	<-ran
	require.Error(t, warnErr)
}
