package frame

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracewell-dev/tracewell/internal/types"
)

func TestPushTopPop(t *testing.T) {
	tr := New()
	const tid = types.ThreadID(1)

	lf := tr.Push(tid, 100, "pkg.add", 1, 1, 1000, false)
	require.Equal(t, lf, tr.Top(tid))
	require.Equal(t, 1, tr.Depth(tid))
	require.Equal(t, types.FrameHandle(0), lf.Parent)

	child := tr.Push(tid, 101, "pkg.helper", 1, 5, 1001, false)
	require.Equal(t, types.FrameHandle(100), child.Parent)
	require.Equal(t, 1, child.Depth)
	require.Equal(t, 2, tr.Depth(tid))

	popped := tr.Pop(tid, types.FrameReturned)
	require.Equal(t, child, popped)
	require.Equal(t, types.FrameReturned, popped.State)
	require.Equal(t, 1, tr.Depth(tid))
}

func TestPopToUnwindsMultipleFrames(t *testing.T) {
	tr := New()
	const tid = types.ThreadID(1)

	g := tr.Push(tid, 1, "g", 1, 1, 0, false)
	tr.Push(tid, 2, "f", 1, 2, 1, false)

	popped := tr.PopTo(tid, g.Handle, types.FrameUnwound)
	require.Len(t, popped, 2)
	require.Equal(t, types.FrameHandle(2), popped[0].Handle)
	require.Equal(t, types.FrameHandle(1), popped[1].Handle)
	require.Equal(t, 0, tr.Depth(tid))
}

func TestDrainAllEmitsSyntheticUnwind(t *testing.T) {
	tr := New()
	tr.Push(types.ThreadID(1), 1, "outer", 1, 1, 0, false)
	tr.Push(types.ThreadID(2), 2, "other", 1, 1, 0, false)

	drained := tr.DrainAll()
	require.Len(t, drained, 2)
	require.Equal(t, types.FrameUnwound, drained[types.ThreadID(1)][0].State)
	require.Equal(t, 0, tr.Depth(types.ThreadID(1)))
}

func TestResolveLineCachesResolverCall(t *testing.T) {
	tr := New()
	calls := 0
	resolver := func() map[uint32]uint32 {
		calls++
		return map[uint32]uint32{0: 10, 4: 11}
	}

	line := tr.ResolveLine(types.ThreadID(1), 1, 1, 4, resolver)
	require.Equal(t, uint32(11), line)
	line = tr.ResolveLine(types.ThreadID(1), 1, 1, 0, resolver)
	require.Equal(t, uint32(10), line)
	require.Equal(t, 1, calls, "resolver must only run once per code object")
}

func TestFindLocatesNonTopFrame(t *testing.T) {
	tr := New()
	const tid = types.ThreadID(1)
	tr.Push(tid, 1, "outer", 1, 1, 0, false)
	tr.Push(tid, 2, "inner", 1, 2, 1, false)

	found := tr.Find(tid, 1)
	require.NotNil(t, found)
	require.Equal(t, "outer", found.QualifiedName)
	require.Nil(t, tr.Find(tid, 999))
}
