// Package frame implements the Frame Tracker (§4.3): a per-thread stack of
// active logical frames, reconciled against CALL/RETURN/EXCEPTION/YIELD/
// RESUME under arbitrary control flow.
package frame

import (
	"sync"

	"github.com/tracewell-dev/tracewell/internal/types"
)

// stack is a single thread's logical call stack. Per §3's ownership rule,
// a stack is exclusively mutated by the thread that owns it; Tracker only
// takes its top-level mutex to look the stack up or create it.
type stack struct {
	frames []*types.LogicalFrame
	// lastiCache maps a code object identity (approximated here by the
	// FileID+FirstLine pair the frame was created with) to a resolver for
	// "instruction offset -> source line", populated lazily the first time
	// a LINE event needs it. Kept per-thread because evaluation of a
	// recursive function on two threads must not race on the same cache.
	lastiCache map[codeKey]map[uint32]uint32
}

type codeKey struct {
	fileID    types.FileID
	firstLine uint32
}

// Tracker owns the set of per-thread stacks.
type Tracker struct {
	mu      sync.Mutex
	threads map[types.ThreadID]*stack
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{threads: make(map[types.ThreadID]*stack)}
}

func (t *Tracker) stackFor(tid types.ThreadID) *stack {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.threads[tid]
	if !ok {
		s = &stack{lastiCache: make(map[codeKey]map[uint32]uint32)}
		t.threads[tid] = s
	}
	return s
}

// Push creates a new LogicalFrame for a CALL event and pushes it onto the
// thread's stack. The frame's Parent is the current top of stack, if any.
func (t *Tracker) Push(tid types.ThreadID, handle types.FrameHandle, qualifiedName string, fileID types.FileID, firstLine uint32, ts int64, isGenerator bool) *types.LogicalFrame {
	s := t.stackFor(tid)
	var parent types.FrameHandle
	depth := 0
	if n := len(s.frames); n > 0 {
		parent = s.frames[n-1].Handle
		depth = n
	}
	lf := &types.LogicalFrame{
		Handle:        handle,
		QualifiedName: qualifiedName,
		FileID:        fileID,
		FirstLine:     firstLine,
		Parent:        parent,
		Depth:         depth,
		CreatedAt:     ts,
		State:         types.FrameActive,
		IsGenerator:   isGenerator,
	}
	s.frames = append(s.frames, lf)
	return lf
}

// Top returns the thread's current innermost frame, or nil if the stack is
// empty.
func (t *Tracker) Top(tid types.ThreadID) *types.LogicalFrame {
	s := t.stackFor(tid)
	if n := len(s.frames); n > 0 {
		return s.frames[n-1]
	}
	return nil
}

// Find locates a frame anywhere on the thread's stack by handle, returning
// nil if absent. Used when a RETURN/EXCEPTION arrives for a frame that is
// not necessarily the top of stack (defensive against out-of-order
// delivery from re-entrant instrumentation).
func (t *Tracker) Find(tid types.ThreadID, handle types.FrameHandle) *types.LogicalFrame {
	s := t.stackFor(tid)
	for _, f := range s.frames {
		if f.Handle == handle {
			return f
		}
	}
	return nil
}

// Pop removes and returns the thread's innermost frame, transitioning it to
// the given terminal state. Returns nil if the stack is empty.
func (t *Tracker) Pop(tid types.ThreadID, terminal types.FrameState) *types.LogicalFrame {
	s := t.stackFor(tid)
	n := len(s.frames)
	if n == 0 {
		return nil
	}
	lf := s.frames[n-1]
	s.frames = s.frames[:n-1]
	lf.State = terminal
	return lf
}

// PopTo pops and terminates every frame from the top of the thread's stack
// down to and including handle. Used when an EXCEPTION unwinds through
// several frames between one LINE event and the next. Returns the popped
// frames, innermost first.
func (t *Tracker) PopTo(tid types.ThreadID, handle types.FrameHandle, terminal types.FrameState) []*types.LogicalFrame {
	s := t.stackFor(tid)
	var popped []*types.LogicalFrame
	for len(s.frames) > 0 {
		n := len(s.frames)
		lf := s.frames[n-1]
		s.frames = s.frames[:n-1]
		lf.State = terminal
		popped = append(popped, lf)
		if lf.Handle == handle {
			break
		}
	}
	return popped
}

// DrainAll pops every remaining frame on every thread, in innermost-first
// order per thread. Used by the Session Controller at Stop to emit
// synthetic RETURNs for frames still open when the session ends (§4.1).
func (t *Tracker) DrainAll() map[types.ThreadID][]*types.LogicalFrame {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[types.ThreadID][]*types.LogicalFrame, len(t.threads))
	for tid, s := range t.threads {
		var popped []*types.LogicalFrame
		for len(s.frames) > 0 {
			n := len(s.frames)
			lf := s.frames[n-1]
			s.frames = s.frames[:n-1]
			lf.State = types.FrameUnwound
			popped = append(popped, lf)
		}
		if len(popped) > 0 {
			out[tid] = popped
		}
	}
	return out
}

// Depth returns the current stack depth for a thread.
func (t *Tracker) Depth(tid types.ThreadID) int {
	return len(t.stackFor(tid).frames)
}

// ResolveLine looks up the source line for an instruction offset within a
// code object, using the per-thread lasti cache. The resolver function is
// invoked only on a cache miss; its result (the full offset->line table)
// is cached for the lifetime of the session so repeated LINE events inside
// a hot loop never recompute it.
func (t *Tracker) ResolveLine(tid types.ThreadID, fileID types.FileID, firstLine uint32, lasti uint32, resolver func() map[uint32]uint32) uint32 {
	s := t.stackFor(tid)
	key := codeKey{fileID: fileID, firstLine: firstLine}
	table, ok := s.lastiCache[key]
	if !ok {
		table = resolver()
		s.lastiCache[key] = table
	}
	if line, ok := table[lasti]; ok {
		return line
	}
	return firstLine
}
