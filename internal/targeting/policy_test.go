package targeting

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracewell-dev/tracewell/internal/types"
)

func TestClassify_IncludeExclude(t *testing.T) {
	c, err := New(types.TargetingPolicy{
		IncludeGlobs: []string{"**/*.py"},
		ExcludeGlobs: []string{"**/vendor/**"},
	})
	require.NoError(t, err)

	require.Equal(t, types.DecisionTrace, c.Classify("app/main.py", "main", 0))
	require.Equal(t, types.DecisionSkip, c.Classify("app/vendor/lib.py", "helper", 0))
	require.Equal(t, types.DecisionSkip, c.Classify("app/main.txt", "main", 0))
}

func TestClassify_ExcludeBeatsInclude(t *testing.T) {
	c, err := New(types.TargetingPolicy{
		IncludeGlobs: []string{"**/*.py"},
		ExcludeGlobs: []string{"**/noisy.py"},
	})
	require.NoError(t, err)

	require.Equal(t, types.DecisionSkip, c.Classify("pkg/noisy.py", "f", 0))
}

func TestClassify_ExcludeFunctions(t *testing.T) {
	c, err := New(types.TargetingPolicy{
		ExcludeFunctions: map[string]bool{"noisy": true},
	})
	require.NoError(t, err)

	require.Equal(t, types.DecisionSkip, c.Classify("app/main.py", "noisy", 0))
	require.Equal(t, types.DecisionTrace, c.Classify("app/main.py", "quiet", 0))
}

func TestClassify_SystemPaths(t *testing.T) {
	c, err := New(types.TargetingPolicy{
		IgnoreSystemPaths: true,
		IncludeStdlibs:    []string{"json"},
	})
	require.NoError(t, err)

	require.Equal(t, types.DecisionSkip, c.Classify("/usr/lib/python3.12/os.py", "f", 0))
	require.Equal(t, types.DecisionTrace, c.Classify("/usr/lib/python3.12/json/__init__.py", "f", 0))
}

func TestClassify_LineRange(t *testing.T) {
	c, err := New(types.TargetingPolicy{
		LineRanges: map[string]types.LineRange{
			"app/main.py": {Lo: 10, Hi: 20},
		},
	})
	require.NoError(t, err)

	require.Equal(t, types.DecisionConditional, c.Classify("app/main.py", "f", 15))
	require.Equal(t, types.DecisionSkip, c.Classify("app/main.py", "f", 25))
}

func TestClassify_Idempotent(t *testing.T) {
	c, err := New(types.TargetingPolicy{IncludeGlobs: []string{"**/*.py"}})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.Equal(t, types.DecisionTrace, c.Classify("a.py", "f", 1))
	}
}

func TestNew_InvalidGlob(t *testing.T) {
	_, err := New(types.TargetingPolicy{IncludeGlobs: []string{"[unterminated"}})
	require.Error(t, err)
}
