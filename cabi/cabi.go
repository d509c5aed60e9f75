// Package cabi is the embeddable attachment surface a host runtime registers
// against (§9, "Runtime callback attachment"): the source relies on an
// in-process monitoring API built into the interpreter itself, which this
// implementation cannot assume. Instead, cabi exposes the same shape a C ABI
// boundary would: fixed-width scalar arguments, an opaque frame handle, and
// an integer status/action code in both directions, so a thin cgo shim (or
// any other host binding) can call straight into it with no Go-specific
// marshaling on the caller's side.
//
// This package deliberately avoids `import "C"`: it is the Go-side half of
// that boundary, written so that exporting it via cgo's `//export` directive
// later is a mechanical wrapper step, not a redesign. Most exported
// functions here take and return only types that have an obvious C
// counterpart (uint64, uint32, int32, string, bool). The exceptions are
// Attach (an AttachConfig and a Go callback), OnCall (its []string and
// []any parameter lists) and OnOpcodeStore (a types.Store).
package cabi

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tracewell-dev/tracewell/internal/dispatch"
	"github.com/tracewell-dev/tracewell/internal/observe"
	"github.com/tracewell-dev/tracewell/internal/targeting"
	"github.com/tracewell-dev/tracewell/internal/tlog"
	"github.com/tracewell-dev/tracewell/internal/types"
	"github.com/tracewell-dev/tracewell/session"
)

// Status codes returned across the boundary. Mirrors the error kinds in §7:
// attachment and configuration failures are reported here, before any event
// is emitted; everything past Attach is reported through the diagnostic
// sink instead, never through a return code (§9: tracer failures are
// modeled as tagged values, never propagated into the traced program).
const (
	StatusOK             int32 = 0
	StatusAlreadyActive  int32 = 1
	StatusNotActive      int32 = 2
	StatusPolicyError    int32 = 3
	StatusAttachError    int32 = 4
)

// Action mirrors dispatch.NextAction across the boundary: it tells the host
// runtime whether to keep delivering per-line callbacks for the frame that
// was just classified.
type Action int32

const (
	ActionKeepLineEvents Action = 0
	ActionSkipLineEvents Action = 1
)

// installed guards the process-global single-initialization protocol (§9,
// "Global mutable state"): the host runtime's callback registration is a
// process-wide resource, just like session.active, and a second Attach
// while one is already installed must fail cleanly rather than silently
// replace the first.
var installed atomic.Bool

var (
	mu   sync.Mutex
	ctrl *session.Controller
)

// AttachConfig is the C-ABI-shaped subset of config.Config a host binding
// passes at attach time, after its own YAML/flag parsing has already run.
type AttachConfig struct {
	Policy      types.TargetingPolicy
	OutputPath  string
	ObserverCfg observe.Config
}

// Attach installs the tracer against the current process. Only one
// attachment may be active at a time; a second call returns
// StatusAlreadyActive without disturbing the first (§4.1, §9). onDiagnostic,
// if non-nil, receives every error the core would otherwise only log.
func Attach(cfg AttachConfig, onDiagnostic func(err error)) int32 {
	if !installed.CompareAndSwap(false, true) {
		return StatusAlreadyActive
	}

	c, err := session.Start(session.Options{
		Policy:         cfg.Policy,
		OutputPath:     cfg.OutputPath,
		ObserverCfg:    cfg.ObserverCfg,
		Logger:         tlog.New("cabi"),
		DiagnosticSink: onDiagnostic,
	})
	if err != nil {
		installed.Store(false)
		if errors.Is(err, session.ErrAlreadyActive) {
			return StatusAlreadyActive
		}
		var policyErr *targeting.PolicyError
		if errors.As(err, &policyErr) {
			return StatusPolicyError
		}
		return StatusAttachError
	}

	mu.Lock()
	ctrl = c
	mu.Unlock()
	return StatusOK
}

// Detach uninstalls the tracer: flushes, writes the footer, and frees the
// process-global slot for a future Attach.
func Detach() int32 {
	mu.Lock()
	c := ctrl
	mu.Unlock()
	if c == nil {
		return StatusNotActive
	}

	err := c.Stop()

	mu.Lock()
	ctrl = nil
	mu.Unlock()
	installed.Store(false)

	if err != nil {
		return StatusAttachError
	}
	return StatusOK
}

// AddManualTarget forces a live frame into the traced set (§4.1
// add_manual_target), used when the embedding host must observe a function
// already executing before Attach ran.
func AddManualTarget(frameHandle uint64) int32 {
	c, ok := active()
	if !ok {
		return StatusNotActive
	}
	c.AddManualTarget(types.FrameHandle(frameHandle))
	return StatusOK
}

// OnCall is the CALL callback: one O(1) call per function activation,
// delivering the frame handle, its static location, and its bound
// parameters (§9: "one O(1) callback per event from the host runtime,
// delivering (frame handle, kind, argument)"). The returned Action tells the
// host whether to keep invoking OnLine for this frame.
func OnCall(threadID uint64, frameHandle uint64, path, functionName string, line, firstLine uint32, isGenerator bool, paramNames []string, paramValues []any) Action {
	c, ok := active()
	if !ok {
		return ActionSkipLineEvents
	}
	action := c.OnCall(session.RawFrame{
		ThreadID:     types.ThreadID(threadID),
		Frame:        types.FrameHandle(frameHandle),
		Path:         path,
		FunctionName: functionName,
		Line:         line,
		FirstLine:    firstLine,
		IsGenerator:  isGenerator,
	}, paramNames, paramValues)
	if action == dispatch.ActionDisableLineEvents {
		return ActionSkipLineEvents
	}
	return ActionKeepLineEvents
}

// OnLine is the LINE callback, delivered only for frames OnCall returned
// ActionKeepLineEvents for.
func OnLine(threadID, frameHandle uint64, path string, line uint32) {
	if c, ok := active(); ok {
		c.OnLine(session.RawFrame{ThreadID: types.ThreadID(threadID), Frame: types.FrameHandle(frameHandle), Path: path, Line: line})
	}
}

// OnReturn is the RETURN callback.
func OnReturn(threadID, frameHandle uint64, path string, line uint32, valueRepr string) {
	if c, ok := active(); ok {
		c.OnReturn(session.RawFrame{ThreadID: types.ThreadID(threadID), Frame: types.FrameHandle(frameHandle), Path: path, Line: line}, valueRepr)
	}
}

// OnException is the EXCEPTION callback, observed rather than intercepted
// (§9, "Exceptions as control flow"): the traced program's unwind proceeds
// unmodified; this call only records it.
func OnException(threadID, frameHandle uint64, path string, line uint32, typeName, message, stack string) {
	if c, ok := active(); ok {
		c.OnException(session.RawFrame{ThreadID: types.ThreadID(threadID), Frame: types.FrameHandle(frameHandle), Path: path, Line: line}, typeName, message, stack)
	}
}

// OnYield is the generator YIELD callback.
func OnYield(threadID, frameHandle uint64, path string, line uint32, valueRepr string) {
	if c, ok := active(); ok {
		c.OnYield(session.RawFrame{ThreadID: types.ThreadID(threadID), Frame: types.FrameHandle(frameHandle), Path: path, Line: line}, valueRepr)
	}
}

// OnResume is the generator RESUME callback, the counterpart to OnYield.
func OnResume(threadID, frameHandle uint64, path string, line uint32) {
	if c, ok := active(); ok {
		c.OnResume(session.RawFrame{ThreadID: types.ThreadID(threadID), Frame: types.FrameHandle(frameHandle), Path: path, Line: line})
	}
}

// OnOpcodeStore is the opcode-level callback the Variable Observer's fast
// path uses when var-trace is enabled: one call per store-family
// instruction (§4.4), pre-resolved by the host into a types.Store.
func OnOpcodeStore(threadID, frameHandle uint64, path string, line uint32, store types.Store) {
	if c, ok := active(); ok {
		c.OnOpcodeStore(session.RawFrame{ThreadID: types.ThreadID(threadID), Frame: types.FrameHandle(frameHandle), Path: path, Line: line}, store)
	}
}

// OnObserverSkipNotice reports that opcode resolution failed for a code
// object and var-trace has been disabled for it (§4.4, §7 ObserverSkip).
func OnObserverSkipNotice(threadID, frameHandle uint64, path string, line, firstLine uint32) {
	if c, ok := active(); ok {
		c.OnObserverSkipNotice(session.RawFrame{ThreadID: types.ThreadID(threadID), Frame: types.FrameHandle(frameHandle), Path: path, Line: line}, firstLine)
	}
}

func active() (*session.Controller, bool) {
	mu.Lock()
	defer mu.Unlock()
	return ctrl, ctrl != nil
}

// StatusString renders a status code for diagnostic logging on the host
// side of the boundary, where the int32 codes above are the only thing
// that crosses.
func StatusString(status int32) string {
	switch status {
	case StatusOK:
		return "ok"
	case StatusAlreadyActive:
		return "already_active"
	case StatusNotActive:
		return "not_active"
	case StatusPolicyError:
		return "policy_error"
	case StatusAttachError:
		return "attach_error"
	default:
		return fmt.Sprintf("unknown(%d)", status)
	}
}
