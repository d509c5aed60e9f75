// Package synth is a synthetic interpreter event source: it drives a
// session.Controller's callback surface exactly as a real host runtime
// would, without depending on a live interpreter. It exists to exercise the
// scenarios in §8 (S1-S6) against the real dispatcher/tracker/observer/
// container stack end to end.
package synth

import (
	"fmt"

	"github.com/tracewell-dev/tracewell/internal/dispatch"
	"github.com/tracewell-dev/tracewell/internal/types"
	"github.com/tracewell-dev/tracewell/session"
)

// frames hands out monotonically increasing opaque frame handles, mimicking
// a runtime's activation-record addresses closely enough that two handles
// are never equal while both are live.
type frames struct{ next uint64 }

func (f *frames) alloc() types.FrameHandle {
	f.next++
	return types.FrameHandle(f.next)
}

// Arithmetic drives S1: a two-argument function that stores its sum into a
// local and returns it.
//
//	def add(a, b): c = a + b; return c
//	add(2, 3)
func Arithmetic(c *session.Controller, tid types.ThreadID, path string) {
	var fr frames
	h := fr.alloc()
	rf := session.RawFrame{ThreadID: tid, Frame: h, Path: path, FunctionName: "add", Line: 1, FirstLine: 1}

	action := c.OnCall(rf, []string{"a", "b"}, []any{2, 3})
	if action == dispatch.ActionDisableLineEvents {
		return
	}
	c.OnOpcodeStore(rf, types.Store{Kind: types.StoreLocal, Name: "c", ValueRepr: "5"})
	c.OnLine(rf)
	c.OnReturn(rf, "5")
}

// ExceptionPropagation drives S2: g calls f, f raises, the exception
// unwinds through both frames one boundary at a time, exactly as a runtime
// would report it as it crosses each frame on its way out.
//
//	def f(): raise ValueError("x")
//	def g(): f()
//	g()
func ExceptionPropagation(c *session.Controller, tid types.ThreadID, path string) {
	var fr frames
	hg := fr.alloc()
	hf := fr.alloc()

	rfG := session.RawFrame{ThreadID: tid, Frame: hg, Path: path, FunctionName: "g", Line: 2, FirstLine: 2}
	c.OnCall(rfG, nil, nil)

	rfF := session.RawFrame{ThreadID: tid, Frame: hf, Path: path, FunctionName: "f", Line: 1, FirstLine: 1}
	c.OnCall(rfF, nil, nil)
	c.OnLine(rfF)

	c.OnException(rfF, "ValueError", "x", "f raised at line 1")
	c.OnException(rfG, "ValueError", "x", "propagated through g")
}

// Generator drives S3: a two-value generator consumed to exhaustion. The
// CALL/RETURN pair brackets the whole generator lifetime; YIELD/RESUME
// bracket each suspension (§4.3).
//
//	def gen(): yield 1; yield 2
//	list(gen())
func Generator(c *session.Controller, tid types.ThreadID, path string) {
	var fr frames
	h := fr.alloc()
	rf := session.RawFrame{ThreadID: tid, Frame: h, Path: path, FunctionName: "gen", Line: 1, FirstLine: 1, IsGenerator: true}

	c.OnCall(rf, nil, nil)
	c.OnLine(rf)
	c.OnYield(rf, "1")
	c.OnResume(rf)
	c.OnLine(rf)
	c.OnYield(rf, "2")
	c.OnResume(rf)
	c.OnReturn(rf, "None")
}

// ExcludedFunctionTransitively drives S4. noisy is excluded by name and
// lives in the excluded vendor path, but the helper it calls lives in
// app.py, a path the targeting policy otherwise traces in full. Per §4.2's
// tie-break, exclusion propagates down the call stack: helper is called
// from inside noisy's suppressed frame, so it must stay suppressed even
// though its own path/function would be traced if called directly. quiet,
// a sibling call under outer made after noisy has already returned, is
// traced normally.
//
//	def outer(): noisy(); quiet()   # app.py, traced
//	def noisy(): helper()           # vendor.py, excluded by name
//	def helper(): pass              # app.py, traced on its own merits
//	def quiet(): pass               # app.py, traced
//	outer()
func ExcludedFunctionTransitively(c *session.Controller, tid types.ThreadID, appPath, vendorPath string) {
	var fr frames
	hOuter := fr.alloc()
	hNoisy := fr.alloc()
	hHelper := fr.alloc()
	hQuiet := fr.alloc()

	rfOuter := session.RawFrame{ThreadID: tid, Frame: hOuter, Path: appPath, FunctionName: "outer", Line: 1, FirstLine: 1}
	c.OnCall(rfOuter, nil, nil)

	rfNoisy := session.RawFrame{ThreadID: tid, Frame: hNoisy, Path: vendorPath, FunctionName: "noisy", Line: 1, FirstLine: 1}
	c.OnCall(rfNoisy, nil, nil)

	rfHelper := session.RawFrame{ThreadID: tid, Frame: hHelper, Path: appPath, FunctionName: "helper", Line: 2, FirstLine: 2}
	c.OnCall(rfHelper, nil, nil)
	c.OnReturn(rfHelper, "None")
	c.OnReturn(rfNoisy, "None")

	rfQuiet := session.RawFrame{ThreadID: tid, Frame: hQuiet, Path: appPath, FunctionName: "quiet", Line: 4, FirstLine: 4}
	c.OnCall(rfQuiet, nil, nil)
	c.OnReturn(rfQuiet, "None")

	c.OnReturn(rfOuter, "None")
}

// BackpressureLoop drives S5: a tight loop emitting far more LINE events
// than the writer can drain, forcing the session into lossy mode. The
// surrounding CALL/RETURN for the loop's containing function are
// structural and always delivered (§4.1); only the LINE events in between
// are subject to drop.
func BackpressureLoop(c *session.Controller, tid types.ThreadID, path string, iterations int) {
	var fr frames
	h := fr.alloc()
	rf := session.RawFrame{ThreadID: tid, Frame: h, Path: path, FunctionName: "spin", Line: 1, FirstLine: 1}

	c.OnCall(rf, nil, nil)
	for i := 0; i < iterations; i++ {
		c.OnOpcodeStore(rf, types.Store{Kind: types.StoreLocal, Name: "i", ValueRepr: fmt.Sprintf("%d", i)})
		c.OnLine(rf)
	}
	c.OnReturn(rf, "None")
}

// CrossThreadInterleave drives S6: two thread IDs each call a shared
// function three times, exercising the Frame Tracker's per-thread stack
// isolation. Thread A's calls all run first, then thread B's, one after the
// other on the calling goroutine.
//
//	def step(i): pass
//	for i in range(3): step(i)   # once for thread A, then once for thread B
func CrossThreadInterleave(c *session.Controller, tidA, tidB types.ThreadID, path string) {
	run := func(tid types.ThreadID) {
		var fr frames
		for i := 0; i < 3; i++ {
			h := fr.alloc()
			rf := session.RawFrame{ThreadID: tid, Frame: h, Path: path, FunctionName: "step", Line: 1, FirstLine: 1}
			c.OnCall(rf, []string{"i"}, []any{i})
			c.OnLine(rf)
			c.OnReturn(rf, "None")
		}
	}
	run(tidA)
	run(tidB)
}
