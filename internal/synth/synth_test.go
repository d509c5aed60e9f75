package synth

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracewell-dev/tracewell/internal/container"
	"github.com/tracewell-dev/tracewell/internal/observe"
	"github.com/tracewell-dev/tracewell/internal/types"
	"github.com/tracewell-dev/tracewell/session"
)

func startSession(t *testing.T, policy types.TargetingPolicy) (*session.Controller, string) {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "session.trcebin")
	c, err := session.Start(session.Options{
		Policy:      policy,
		OutputPath:  out,
		ObserverCfg: observe.Config{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Stop() })
	return c, out
}

func readAll(t *testing.T, path string) ([]types.Event, types.SessionMeta) {
	t.Helper()
	r, err := container.Open(path)
	require.NoError(t, err)
	defer r.Close()

	var events []types.Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		events = append(events, e)
	}
	return events, r.SessionMeta()
}

func kindsOf(events []types.Event) []types.Kind {
	out := make([]types.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestArithmeticFunction(t *testing.T) {
	c, out := startSession(t, types.TargetingPolicy{IncludeGlobs: []string{"**/*.py"}, EnableVarTrace: true})
	Arithmetic(c, 1, "/src/a.py")
	require.NoError(t, c.Stop())

	events, _ := readAll(t, out)
	require.Equal(t, []types.Kind{types.KindCall, types.KindLine, types.KindReturn}, kindsOf(events))

	line := events[1].Payload.(types.LinePayload)
	require.Len(t, line.Stores, 1)
	require.Equal(t, "c", line.Stores[0].Name)
	require.Equal(t, "5", line.Stores[0].ValueRepr)

	ret := events[2].Payload.(types.ReturnPayload)
	require.Equal(t, "5", ret.ValueRepr)
	require.False(t, ret.Unwound)
}

func TestExceptionPropagation(t *testing.T) {
	c, out := startSession(t, types.TargetingPolicy{IncludeGlobs: []string{"**/*.py"}})
	ExceptionPropagation(c, 1, "/src/a.py")
	require.NoError(t, c.Stop())

	events, meta := readAll(t, out)
	require.Equal(t, []types.Kind{types.KindCall, types.KindCall, types.KindLine, types.KindException, types.KindException}, kindsOf(events))

	for _, idx := range []int{3, 4} {
		p := events[idx].Payload.(types.ExceptionPayload)
		require.Equal(t, "ValueError", p.TypeName)
		require.Equal(t, "x", p.Message)
	}
	require.Equal(t, types.OutcomeClean, meta.Outcome)
}

func TestGenerator(t *testing.T) {
	c, out := startSession(t, types.TargetingPolicy{IncludeGlobs: []string{"**/*.py"}})
	Generator(c, 1, "/src/a.py")
	require.NoError(t, c.Stop())

	events, _ := readAll(t, out)
	require.Equal(t, []types.Kind{
		types.KindCall, types.KindLine, types.KindYield, types.KindResume,
		types.KindLine, types.KindYield, types.KindResume, types.KindReturn,
	}, kindsOf(events))
}

func TestExcludedFunctionTransitively(t *testing.T) {
	c, out := startSession(t, types.TargetingPolicy{
		IncludeGlobs:     []string{"**/*.py"},
		ExcludeGlobs:     []string{"**/vendor/**"},
		ExcludeFunctions: map[string]bool{"noisy": true},
	})
	ExcludedFunctionTransitively(c, 1, "app/main.py", "app/vendor/noisy.py")
	require.NoError(t, c.Stop())

	events, _ := readAll(t, out)
	for _, e := range events {
		if p, ok := e.Payload.(types.CallPayload); ok {
			require.NotEqual(t, "noisy", p.QualifiedName)
			require.NotEqual(t, "helper", p.QualifiedName)
		}
	}

	var calls []string
	for _, e := range events {
		if p, ok := e.Payload.(types.CallPayload); ok {
			calls = append(calls, p.QualifiedName)
		}
	}
	require.Equal(t, []string{"outer", "quiet"}, calls)
}

func TestBackpressureDrop(t *testing.T) {
	c, out := startSession(t, types.TargetingPolicy{IncludeGlobs: []string{"**/*.py"}})
	BackpressureLoop(c, 1, "/src/loop.py", 100000)
	require.NoError(t, c.Stop())

	events, meta := readAll(t, out)
	require.Greater(t, meta.BackpressureDrops, int64(0))
	require.Equal(t, types.OutcomeLossyDegraded, meta.Outcome)

	kinds := kindsOf(events)
	require.Equal(t, types.KindCall, kinds[0])
	require.Equal(t, types.KindReturn, kinds[len(kinds)-1])

	lineCount := 0
	for _, k := range kinds {
		if k == types.KindLine {
			lineCount++
		}
	}
	require.Greater(t, lineCount, 0)
	require.Less(t, lineCount, 100000)
}

func TestCrossThreadInterleave(t *testing.T) {
	c, out := startSession(t, types.TargetingPolicy{IncludeGlobs: []string{"**/*.py"}})
	CrossThreadInterleave(c, 1, 2, "/src/a.py")
	require.NoError(t, c.Stop())

	events, _ := readAll(t, out)

	callsByThread := map[types.ThreadID]int{}
	returnsByThread := map[types.ThreadID]int{}
	lastTSByThread := map[types.ThreadID]int64{}
	for _, e := range events {
		switch e.Kind {
		case types.KindCall:
			callsByThread[e.ThreadID]++
		case types.KindReturn:
			returnsByThread[e.ThreadID]++
		}
		require.GreaterOrEqual(t, e.Timestamp, lastTSByThread[e.ThreadID])
		lastTSByThread[e.ThreadID] = e.Timestamp
	}

	require.Equal(t, 3, callsByThread[1])
	require.Equal(t, 3, callsByThread[2])
	require.Equal(t, 3, returnsByThread[1])
	require.Equal(t, 3, returnsByThread[2])
}
