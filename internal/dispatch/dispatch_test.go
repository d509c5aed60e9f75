package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracewell-dev/tracewell/internal/targeting"
	"github.com/tracewell-dev/tracewell/internal/types"
)

func newDispatcher(t *testing.T, cfg types.TargetingPolicy) *Dispatcher {
	t.Helper()
	c, err := targeting.New(cfg)
	require.NoError(t, err)
	return New(c)
}

func TestOnEvent_CachesFrameDecision(t *testing.T) {
	d := newDispatcher(t, types.TargetingPolicy{ExcludeFunctions: map[string]bool{"noisy": true}})

	action, decision := d.OnEvent(RawEvent{ThreadID: 1, Frame: 10, Path: "a.py", FunctionName: "noisy"})
	require.Equal(t, ActionDisableLineEvents, action)
	require.Equal(t, types.DecisionSkip, decision)
	require.True(t, d.IsPoison(10))

	// Second event for the same frame short-circuits without re-classifying.
	action, decision = d.OnEvent(RawEvent{ThreadID: 1, Frame: 10, Path: "a.py", FunctionName: "noisy", Line: 2})
	require.Equal(t, ActionDisableLineEvents, action)
	require.Equal(t, types.DecisionSkip, decision)
}

func TestOnEvent_CalleeInIncludedPathStillTraced(t *testing.T) {
	d := newDispatcher(t, types.TargetingPolicy{ExcludeFunctions: map[string]bool{"noisy": true}})

	_, decision := d.OnEvent(RawEvent{ThreadID: 1, Frame: 1, Path: "a.py", FunctionName: "outer"})
	require.Equal(t, types.DecisionTrace, decision)

	_, decision = d.OnEvent(RawEvent{ThreadID: 1, Frame: 2, Path: "a.py", FunctionName: "noisy"})
	require.Equal(t, types.DecisionSkip, decision)
	d.ClearFrame(2) // noisy() returns before quiet() is called

	// quiet() is a sibling of noisy() under the same caller, not nested
	// inside it, so it is classified on its own merits.
	_, decision = d.OnEvent(RawEvent{ThreadID: 1, Frame: 3, Path: "a.py", FunctionName: "quiet"})
	require.Equal(t, types.DecisionTrace, decision)
}

func TestOnEvent_CalleeOfExcludedFunctionSuppressed(t *testing.T) {
	d := newDispatcher(t, types.TargetingPolicy{ExcludeFunctions: map[string]bool{"noisy": true}})

	_, decision := d.OnEvent(RawEvent{ThreadID: 1, Frame: 1, Path: "a.py", FunctionName: "outer"})
	require.Equal(t, types.DecisionTrace, decision)

	_, decision = d.OnEvent(RawEvent{ThreadID: 1, Frame: 2, Path: "a.py", FunctionName: "noisy"})
	require.Equal(t, types.DecisionSkip, decision)

	// helper() is called from inside noisy(), still on an otherwise traced
	// path, but must inherit noisy()'s suppression rather than being
	// classified independently.
	_, decision = d.OnEvent(RawEvent{ThreadID: 1, Frame: 3, Path: "a.py", FunctionName: "helper"})
	require.Equal(t, types.DecisionSkip, decision)
	require.False(t, d.IsPoison(3)) // suppressed via ancestry, not an explicit exclusion match

	// Once noisy() and helper() both return, a later sibling call is
	// classified normally again.
	d.ClearFrame(3)
	d.ClearFrame(2)
	_, decision = d.OnEvent(RawEvent{ThreadID: 1, Frame: 4, Path: "a.py", FunctionName: "quiet"})
	require.Equal(t, types.DecisionTrace, decision)
}

func TestOnEvent_SiblingThreadsDoNotShareAncestry(t *testing.T) {
	d := newDispatcher(t, types.TargetingPolicy{ExcludeFunctions: map[string]bool{"noisy": true}})

	_, decision := d.OnEvent(RawEvent{ThreadID: 1, Frame: 1, Path: "a.py", FunctionName: "noisy"})
	require.Equal(t, types.DecisionSkip, decision)

	// A different thread's root call is unaffected by thread 1's ancestry.
	_, decision = d.OnEvent(RawEvent{ThreadID: 2, Frame: 2, Path: "a.py", FunctionName: "quiet"})
	require.Equal(t, types.DecisionTrace, decision)
}

func TestStartFunctionGate_PerThread(t *testing.T) {
	d := newDispatcher(t, types.TargetingPolicy{
		StartFunction: &types.StartPoint{File: "a.py", Line: 5},
	})

	_, decision := d.OnEvent(RawEvent{ThreadID: 1, Frame: 1, Path: "a.py", FunctionName: "f", Line: 1})
	require.Equal(t, types.DecisionSkip, decision)

	_, decision = d.OnEvent(RawEvent{ThreadID: 1, Frame: 2, Path: "a.py", FunctionName: "f", Line: 5})
	require.Equal(t, types.DecisionTrace, decision)

	// Thread 2 has not crossed its own gate yet.
	_, decision = d.OnEvent(RawEvent{ThreadID: 2, Frame: 3, Path: "a.py", FunctionName: "f", Line: 1})
	require.Equal(t, types.DecisionSkip, decision)

	// Thread 1 stays lifted for the remainder of the session.
	_, decision = d.OnEvent(RawEvent{ThreadID: 1, Frame: 4, Path: "a.py", FunctionName: "f", Line: 1})
	require.Equal(t, types.DecisionTrace, decision)
}

func TestClearFrameReleasesCache(t *testing.T) {
	d := newDispatcher(t, types.TargetingPolicy{ExcludeFunctions: map[string]bool{"noisy": true}})
	d.OnEvent(RawEvent{ThreadID: 1, Frame: 10, Path: "a.py", FunctionName: "noisy"})
	require.True(t, d.IsPoison(10))

	d.ClearFrame(10)
	require.False(t, d.IsPoison(10))

	_, found := d.cache.lookupFrame(10)
	require.False(t, found)
}
