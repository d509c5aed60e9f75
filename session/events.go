package session

import (
	"time"

	"github.com/tracewell-dev/tracewell/internal/dispatch"
	"github.com/tracewell-dev/tracewell/internal/types"
)

// RawFrame describes the location of a runtime frame as resolved by the
// embedding layer (cabi), mirroring dispatch.RawEvent but with the extra
// call-site detail the Session Controller needs to build events.
type RawFrame struct {
	ThreadID      types.ThreadID
	Frame         types.FrameHandle
	Path          string
	FunctionName  string
	Line          uint32
	FirstLine     uint32
	IsGenerator   bool
}

// OnCall handles a CALL event: classifies the frame, pushes it onto the
// Frame Tracker if it is a target, and emits a CALL event plus any
// parameter-binding stores (§4.3, §4.4).
func (c *Controller) OnCall(rf RawFrame, paramNames []string, paramValues []any) dispatch.NextAction {
	action, decision := c.dispatcher.OnEvent(dispatch.RawEvent{
		ThreadID: rf.ThreadID, Frame: rf.Frame, Path: rf.Path, FunctionName: rf.FunctionName, Line: rf.Line,
	})
	if decision == types.DecisionSkip {
		return action
	}

	fileID, err := c.fm.IDFor(rf.Path)
	if err != nil {
		c.reportDiagnostic(err)
	}

	c.metrics.IncFramesActive()
	lf := c.tracker.Push(rf.ThreadID, rf.Frame, rf.FunctionName, fileID, rf.FirstLine, time.Now().UnixNano(), rf.IsGenerator)

	// Parameter-binding stores belong to the CALL event itself, not to the
	// first LINE's store window (§4.3/§4.4): they are bound before the
	// function body's first line executes, so funneling them through
	// LogicalFrame.PendingStores would make the first LINE report them as
	// if they were ordinary assignments on that line.
	var args []types.Store
	if c.classifier.EnableVarTrace() && len(paramNames) > 0 {
		args = c.observer.BindParameters(paramNames, paramValues)
		c.metrics.AddStoresObserved(int64(len(args)))
	}

	c.Emit(types.Event{
		Kind:      types.KindCall,
		Timestamp: lf.CreatedAt,
		ThreadID:  rf.ThreadID,
		FileID:    fileID,
		Line:      rf.Line,
		Payload:   types.CallPayload{QualifiedName: rf.FunctionName, FirstLine: rf.FirstLine, Args: args},
	})
	return action
}

// OnLine handles a LINE event for a target frame: drains any stores
// accumulated since the previous boundary and emits a LINE event.
func (c *Controller) OnLine(rf RawFrame) {
	lf := c.tracker.Find(rf.ThreadID, rf.Frame)
	if lf == nil {
		return
	}
	stores := lf.DrainStores()
	c.Emit(types.Event{
		Kind:      types.KindLine,
		Timestamp: time.Now().UnixNano(),
		ThreadID:  rf.ThreadID,
		FileID:    lf.FileID,
		Line:      rf.Line,
		Payload:   types.LinePayload{Stores: stores},
	})
}

// OnReturn handles a RETURN event: pops the frame, clears dispatcher
// decision-cache state for it, and emits the RETURN event.
func (c *Controller) OnReturn(rf RawFrame, valueRepr string) {
	var lf *types.LogicalFrame
	if top := c.tracker.Top(rf.ThreadID); top != nil && top.Handle == rf.Frame {
		lf = c.tracker.Pop(rf.ThreadID, types.FrameReturned)
	}
	c.dispatcher.ClearFrame(rf.Frame)
	if lf == nil {
		return
	}
	c.metrics.IncFramesReturned()
	c.Emit(types.Event{
		Kind:      types.KindReturn,
		Timestamp: time.Now().UnixNano(),
		ThreadID:  rf.ThreadID,
		FileID:    lf.FileID,
		Line:      rf.Line,
		Payload:   types.ReturnPayload{ValueRepr: valueRepr},
	})
}

// OnException handles an EXCEPTION event: unwinds every frame from the
// current top down to (and including) the frame the exception originated
// in, clearing dispatcher state for each, then emits one EXCEPTION event.
func (c *Controller) OnException(rf RawFrame, typeName, message, stack string) {
	// The originating frame may itself be a non-target frame the Frame
	// Tracker never pushed (§4.3), so its dispatcher-side ancestor/cache
	// state has to be cleared directly rather than only via the tracker's
	// pop below.
	c.dispatcher.ClearFrame(rf.Frame)

	popped := c.tracker.PopTo(rf.ThreadID, rf.Frame, types.FrameUnwound)
	for _, lf := range popped {
		c.dispatcher.ClearFrame(lf.Handle)
		c.metrics.IncFramesReturned()
	}
	if len(popped) == 0 {
		return
	}
	c.Emit(types.Event{
		Kind:      types.KindException,
		Timestamp: time.Now().UnixNano(),
		ThreadID:  rf.ThreadID,
		FileID:    popped[0].FileID,
		Line:      rf.Line,
		Payload:   types.ExceptionPayload{TypeName: typeName, Message: message, Stack: stack},
	})
}

// OnYield handles a generator YIELD event: marks the frame yielded without
// popping it (§4.3: a generator's CALL/RETURN brackets its whole lifetime).
func (c *Controller) OnYield(rf RawFrame, valueRepr string) {
	lf := c.tracker.Find(rf.ThreadID, rf.Frame)
	if lf == nil {
		return
	}
	lf.State = types.FrameYielded
	c.Emit(types.Event{
		Kind:      types.KindYield,
		Timestamp: time.Now().UnixNano(),
		ThreadID:  rf.ThreadID,
		FileID:    lf.FileID,
		Line:      rf.Line,
		Payload:   types.YieldPayload{ValueRepr: valueRepr},
	})
}

// OnResume handles a generator RESUME event, the counterpart to OnYield.
func (c *Controller) OnResume(rf RawFrame) {
	lf := c.tracker.Find(rf.ThreadID, rf.Frame)
	if lf == nil {
		return
	}
	lf.State = types.FrameActive
	c.Emit(types.Event{
		Kind:      types.KindResume,
		Timestamp: time.Now().UnixNano(),
		ThreadID:  rf.ThreadID,
		FileID:    lf.FileID,
		Line:      rf.Line,
		Payload:   types.ResumePayload{},
	})
}

// OnOpcodeStore handles a single store-family opcode observation for a
// target frame with var-trace enabled, recording it into the frame's
// current line window (§4.4). Callers pre-resolve the store via the
// Observer's StoreLocal/StoreGlobal/StoreAttribute/StoreSubscript helpers.
func (c *Controller) OnOpcodeStore(rf RawFrame, store types.Store) {
	lf := c.tracker.Find(rf.ThreadID, rf.Frame)
	if lf == nil {
		return
	}
	if deduped := lf.RecordStore(store); deduped {
		c.metrics.AddStoresDeduped(1)
	} else {
		c.metrics.AddStoresObserved(1)
	}
}

// OnObserverSkipNotice records that opcode observation was disabled for a
// code object after a resolution failure, emitting the OBSERVER_SKIP
// diagnostic marker exactly once per code object (§4.4).
func (c *Controller) OnObserverSkipNotice(rf RawFrame, firstLine uint32) {
	lf := c.tracker.Find(rf.ThreadID, rf.Frame)
	fileID := types.FileID(0)
	if lf != nil {
		fileID = lf.FileID
	}
	if !c.observer.MarkSkip(fileID, firstLine) {
		return
	}
	c.metrics.IncObserverSkips()
	c.Emit(types.Event{
		Kind:      types.KindTraceMarker,
		Timestamp: time.Now().UnixNano(),
		ThreadID:  rf.ThreadID,
		FileID:    fileID,
		Line:      rf.Line,
		Payload:   types.MarkerPayload{Marker: "OBSERVER_SKIP"},
	})
}
