package cabi

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracewell-dev/tracewell/internal/container"
	"github.com/tracewell-dev/tracewell/internal/observe"
	"github.com/tracewell-dev/tracewell/internal/types"
)

func testConfig(t *testing.T) AttachConfig {
	t.Helper()
	dir := t.TempDir()
	return AttachConfig{
		Policy:      types.TargetingPolicy{IncludeGlobs: []string{"**/*.py"}},
		OutputPath:  filepath.Join(dir, "session.trcebin"),
		ObserverCfg: observe.Config{},
	}
}

func TestAttachDetachLifecycle(t *testing.T) {
	cfg := testConfig(t)

	var diagnostics []error
	status := Attach(cfg, func(err error) { diagnostics = append(diagnostics, err) })
	require.Equal(t, StatusOK, status)

	second := Attach(cfg, nil)
	require.Equal(t, StatusAlreadyActive, second)

	require.Equal(t, StatusOK, Detach())
	require.Equal(t, StatusNotActive, Detach())
	require.Empty(t, diagnostics)
}

func TestCallbacksNoopWhenNotAttached(t *testing.T) {
	action := OnCall(1, 1, "a.py", "f", 1, 1, false, nil, nil)
	require.Equal(t, ActionSkipLineEvents, action)
	require.Equal(t, StatusNotActive, AddManualTarget(1))
}

func TestOnCallRoundTripsThroughController(t *testing.T) {
	cfg := testConfig(t)
	require.Equal(t, StatusOK, Attach(cfg, nil))

	action := OnCall(1, 1, filepath.Join(t.TempDir(), "a.py"), "f", 1, 1, false, nil, nil)
	require.Equal(t, ActionKeepLineEvents, action)

	OnLine(1, 1, "a.py", 2)
	OnReturn(1, 1, "a.py", 3, "None")

	require.Equal(t, StatusOK, Detach())

	r, err := container.Open(cfg.OutputPath)
	require.NoError(t, err)
	defer r.Close()

	kinds := []types.Kind{}
	for {
		e, err := r.Next()
		if err != nil {
			break
		}
		kinds = append(kinds, e.Kind)
	}
	require.Contains(t, kinds, types.KindCall)
	require.Contains(t, kinds, types.KindReturn)
}

func TestAttachRejectsInvalidPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Policy = types.TargetingPolicy{IncludeGlobs: []string{"["}}

	status := Attach(cfg, nil)
	require.Equal(t, StatusPolicyError, status)
	require.Equal(t, StatusNotActive, Detach())
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "ok", StatusString(StatusOK))
	require.Equal(t, "already_active", StatusString(StatusAlreadyActive))
	require.Equal(t, "policy_error", StatusString(StatusPolicyError))
}
