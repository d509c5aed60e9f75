// Package dispatch implements the Event Dispatcher fast path (§4.2): for
// every raw event delivered by the host runtime, decide in O(1) amortized
// time whether the event is of interest, using a two-tier decision cache
// (by source path, then by frame handle) so steady-state frames never
// re-run glob matching.
package dispatch

import (
	"sync"

	"github.com/tracewell-dev/tracewell/internal/targeting"
	"github.com/tracewell-dev/tracewell/internal/types"
)

// NextAction tells the host runtime whether to keep delivering LINE/OPCODE
// events for the frame this decision was made for.
type NextAction uint8

const (
	// ActionKeepLineEvents: continue delivering all events for this frame.
	ActionKeepLineEvents NextAction = iota
	// ActionDisableLineEvents: the frame is not a target; the runtime may
	// stop sending LINE/OPCODE callbacks for it (CALL/RETURN still arrive
	// so the Frame Tracker can keep the stack balanced).
	ActionDisableLineEvents
)

// RawEvent describes the location a frame's current event sits at, as
// delivered by the host runtime through the one O(1) callback. Path and
// FunctionName are resolved from the frame's code object by the caller
// (the Session Controller) before calling OnEvent, so the dispatcher
// itself never needs access to the runtime's frame introspection.
type RawEvent struct {
	ThreadID     types.ThreadID
	Frame        types.FrameHandle
	Path         string
	FunctionName string
	Line         uint32
}

// ancestorEntry is one live frame on a thread's call stack as seen by the
// dispatcher, recorded for every CALL regardless of its own target status
// (unlike the Frame Tracker, which only ever learns about target frames).
type ancestorEntry struct {
	handle types.FrameHandle
	target bool
}

// Dispatcher is the Event Dispatcher fast path.
type Dispatcher struct {
	classifier *targeting.Classifier
	cache      *decisionCache

	mu            sync.Mutex
	poisonFrames  map[types.FrameHandle]bool
	liftedThreads map[types.ThreadID]bool

	// ancestors and frameThread implement ancestor-aware suppression (§4.2
	// tie-break): a callee's own path/function may be a traced target, but
	// if its direct caller was itself suppressed, the callee is suppressed
	// too. frameThread lets ClearFrame find which thread's ancestor stack a
	// frame handle belongs to without the caller having to pass ThreadID.
	ancestors   map[types.ThreadID][]ancestorEntry
	frameThread map[types.FrameHandle]types.ThreadID
}

// New creates a Dispatcher backed by the given Classifier (the constructed
// Source & Filter Policy).
func New(classifier *targeting.Classifier) *Dispatcher {
	return &Dispatcher{
		classifier:    classifier,
		cache:         newDecisionCache(),
		poisonFrames:  make(map[types.FrameHandle]bool),
		liftedThreads: make(map[types.ThreadID]bool),
		ancestors:     make(map[types.ThreadID][]ancestorEntry),
		frameThread:   make(map[types.FrameHandle]types.ThreadID),
	}
}

// OnEvent classifies a raw event per the §4.2 algorithm:
//  1. frame already tagged non-target -> disable line events immediately.
//  2. frame already tagged target -> dispatch (decision returned for the
//     caller to act on; line-range conditionals are re-evaluated per line
//     since they depend on the current line, not just the frame).
//  3. otherwise, check the direct caller on this thread: a frame whose
//     caller was itself suppressed is suppressed too, without consulting
//     the Targeting Policy at all (exclusion propagates down the call
//     stack even into an otherwise-traced path).
//  4. otherwise classify once: path decision cache, then the Targeting
//     Policy, then the excluded-function set; cache both the path and the
//     frame outcome.
//
// Every first-encounter outcome, target or not, is pushed onto the calling
// thread's ancestor stack so its own callees can be tie-broken the same
// way; ClearFrame pops it back off once the frame returns or unwinds.
func (d *Dispatcher) OnEvent(evt RawEvent) (NextAction, types.Decision) {
	if target, found := d.cache.lookupFrame(evt.Frame); found {
		if !target {
			return ActionDisableLineEvents, types.DecisionSkip
		}
		return ActionKeepLineEvents, d.resolveLineDecision(evt)
	}

	var decision types.Decision
	suppressedByCaller := d.callerSuppressed(evt.ThreadID)
	if suppressedByCaller {
		decision = types.DecisionSkip
	} else {
		decision = d.resolveLineDecision(evt)
	}
	isTarget := decision != types.DecisionSkip
	d.cache.setFrame(evt.Frame, isTarget)
	// A frame skipped only because its thread has not reached the starting
	// point yet does not suppress its callees: the gate frame is one of them.
	gateClosed := d.classifier.StartFunction() != nil && !d.gateLifted(evt.ThreadID)
	d.pushAncestor(evt.ThreadID, evt.Frame, isTarget || gateClosed)

	if !isTarget {
		// Poison marks an explicit function-name exclusion: the same location
		// classified without the function name would not have been skipped.
		if !suppressedByCaller && !gateClosed && d.classifier.Classify(evt.Path, "", evt.Line) != types.DecisionSkip {
			d.mu.Lock()
			d.poisonFrames[evt.Frame] = true
			d.mu.Unlock()
		}
		return ActionDisableLineEvents, decision
	}
	return ActionKeepLineEvents, decision
}

// callerSuppressed reports whether the thread's innermost still-open frame
// was itself classified as non-target, meaning any new callee on that
// thread is a descendant of a suppressed frame rather than a sibling of it.
func (d *Dispatcher) callerSuppressed(tid types.ThreadID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	stack := d.ancestors[tid]
	if len(stack) == 0 {
		return false
	}
	return !stack[len(stack)-1].target
}

// pushAncestor records a frame's outcome as the new top of its thread's
// ancestor stack.
func (d *Dispatcher) pushAncestor(tid types.ThreadID, h types.FrameHandle, target bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ancestors[tid] = append(d.ancestors[tid], ancestorEntry{handle: h, target: target})
	d.frameThread[h] = tid
}

// popAncestorTo removes ancestor-stack entries for tid from the top down to
// and including h. Call/return nesting means this normally removes exactly
// one entry; a multi-frame exception unwind that names a deeper handle may
// remove several, sweeping up any still-open descendants along the way.
// Must be called with d.mu held.
func (d *Dispatcher) popAncestorTo(tid types.ThreadID, h types.FrameHandle) {
	stack := d.ancestors[tid]
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		delete(d.frameThread, top.handle)
		if top.handle == h {
			break
		}
	}
	d.ancestors[tid] = stack
}

// resolveLineDecision consults the path-level decision cache before
// falling through to the Targeting Policy's classify function, applying
// the starting-point gate first.
func (d *Dispatcher) resolveLineDecision(evt RawEvent) types.Decision {
	if gate := d.classifier.StartFunction(); gate != nil && !d.gateLifted(evt.ThreadID) {
		if evt.Path == gate.File && evt.Line == gate.Line {
			d.liftGate(evt.ThreadID)
		} else {
			return types.DecisionSkip
		}
	}

	target, found := d.cache.lookupPath(evt.Path)
	if found && !target {
		return types.DecisionSkip
	}

	decision := d.classifier.Classify(evt.Path, evt.FunctionName, evt.Line)
	if !found {
		// The path-level entry records what the path alone decides, without
		// the function name or the current line. A line-ranged path classifies
		// as conditional here and is never cached at the path level.
		if pathDecision := d.classifier.Classify(evt.Path, "", 0); pathDecision != types.DecisionConditional {
			d.cache.setPath(evt.Path, pathDecision != types.DecisionSkip)
		}
	}
	return decision
}

// gateLifted reports whether the starting-point gate has already been
// crossed on this thread. Per the spec's adopted per-thread semantics
// (see SPEC_FULL.md §4), lifting is scoped to the thread that crossed it;
// other threads still wait for their own crossing.
func (d *Dispatcher) gateLifted(tid types.ThreadID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liftedThreads[tid]
}

func (d *Dispatcher) liftGate(tid types.ThreadID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.liftedThreads[tid] = true
}

// IsPoison reports whether a frame was marked non-target via an explicit
// function-name exclusion (as opposed to a path/glob decision). Exposed
// for tests and for the Session Controller's diagnostics.
func (d *Dispatcher) IsPoison(h types.FrameHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.poisonFrames[h]
}

// ForceTarget marks a frame as a trace target regardless of what the
// Targeting Policy would have decided, bypassing classification for the
// rest of the frame's lifetime. Used for manually-attached targets (§4.1).
// It also flips the frame's own ancestor-stack entry (if it has one) so
// its callees aren't wrongly suppressed as descendants of a non-target.
func (d *Dispatcher) ForceTarget(h types.FrameHandle) {
	d.cache.setFrame(h, true)
	d.mu.Lock()
	delete(d.poisonFrames, h)
	if tid, ok := d.frameThread[h]; ok {
		stack := d.ancestors[tid]
		for i := range stack {
			if stack[i].handle == h {
				stack[i].target = true
				break
			}
		}
	}
	d.mu.Unlock()
}

// ClearFrame releases the decision-cache, poison-tracking, and ancestor-
// stack entries for a frame once it has returned or unwound. Called by the
// Session Controller when the Frame Tracker reports a frame as terminal, or
// directly for a frame the Frame Tracker never saw (an excluded frame that
// was still the origin of an exception unwind).
func (d *Dispatcher) ClearFrame(h types.FrameHandle) {
	d.cache.clearFrame(h)
	d.mu.Lock()
	delete(d.poisonFrames, h)
	if tid, ok := d.frameThread[h]; ok {
		d.popAncestorTo(tid, h)
	}
	d.mu.Unlock()
}
