// Package types holds the shared data model for the tracer core: events,
// logical frames, file identifiers, and the targeting policy configuration
// surface. Every other internal package depends on this one; it depends on
// nothing else in the module.
package types

// Kind discriminates the events produced by the dispatcher.
type Kind uint8

// Event kind values. Numeric values are part of the container wire format
// (see internal/container) and must never be renumbered.
const (
	KindCall         Kind = 1
	KindReturn       Kind = 2
	KindLine         Kind = 3
	KindException    Kind = 4
	KindOpcode       Kind = 5
	KindYield        Kind = 6
	KindResume       Kind = 7
	KindTraceMarker  Kind = 8
)

// String renders a Kind for logs and reports.
func (k Kind) String() string {
	switch k {
	case KindCall:
		return "CALL"
	case KindReturn:
		return "RETURN"
	case KindLine:
		return "LINE"
	case KindException:
		return "EXCEPTION"
	case KindOpcode:
		return "OPCODE"
	case KindYield:
		return "YIELD"
	case KindResume:
		return "RESUME"
	case KindTraceMarker:
		return "TRACE_MARKER"
	default:
		return "UNKNOWN"
	}
}

// FileID is a small integer assigned by the File Manager on first sighting
// of a source path. Never reused within a session.
type FileID uint32

// ThreadID is an interned small integer, stable for the lifetime of a thread.
type ThreadID uint32

// FrameHandle is the opaque identity of a runtime activation record, as
// delivered by the host runtime's event callback. The tracer never
// dereferences it; it is only used as a map key and for equality.
type FrameHandle uint64

// Event is the fundamental record produced by the dispatcher.
//
// Invariants (§3 of the design): per thread, events are totally ordered by
// emission order, which matches Timestamp order while the wall clock does
// not step back. Every CALL has
// exactly one matching RETURN or unwinding EXCEPTION at the same logical
// depth before the thread terminates.
type Event struct {
	Kind      Kind
	Timestamp int64 // wall-clock nanoseconds since the Unix epoch; a backwards system clock step can make it decrease
	ThreadID  ThreadID
	FileID    FileID
	Line      uint32 // 1-based source line, 0 when not applicable
	Payload   Payload
}

// Payload is implemented by each kind-specific payload type. The marker
// method exists only to keep arbitrary values out of the Event.Payload
// field; encoding is handled by internal/container, not by this package.
type Payload interface {
	payloadKind() Kind
}

// CallPayload is the payload of a KindCall event.
type CallPayload struct {
	QualifiedName string // function's fully qualified name
	FirstLine     uint32 // first line of the function's definition

	// Args holds the parameter-binding stores produced by the Variable
	// Observer at call time (§4.4), one per bound parameter, in binding
	// order. These belong to the CALL event itself, never to the first
	// LINE's store window.
	Args []Store
}

func (CallPayload) payloadKind() Kind { return KindCall }

// ReturnPayload is the payload of a KindReturn event.
type ReturnPayload struct {
	ValueRepr string
	Unwound   bool // true for synthetic RETURNs emitted at Stop
}

func (ReturnPayload) payloadKind() Kind { return KindReturn }

// LinePayload is the payload of a KindLine event: the store-variable deltas
// observed in the frame since its previous LINE event.
type LinePayload struct {
	Stores []Store
}

func (LinePayload) payloadKind() Kind { return KindLine }

// ExceptionPayload is the payload of a KindException event.
type ExceptionPayload struct {
	TypeName string
	Message  string
	Stack    string // truncated stack summary
}

func (ExceptionPayload) payloadKind() Kind { return KindException }

// OpcodePayload is the payload of a KindOpcode event, used only for
// diagnostics (TRACE_MARKER-style skip notices); ordinary store
// observations are folded into the owning LINE's LinePayload.Stores.
type OpcodePayload struct {
	Note string
}

func (OpcodePayload) payloadKind() Kind { return KindOpcode }

// YieldPayload is the payload of a KindYield event.
type YieldPayload struct {
	ValueRepr string
}

func (YieldPayload) payloadKind() Kind { return KindYield }

// ResumePayload is the payload of a KindResume event. Empty today; exists
// so the wire format has a stable (possibly zero-length) slot per kind.
type ResumePayload struct{}

func (ResumePayload) payloadKind() Kind { return KindResume }

// MarkerPayload is the payload of a KindTraceMarker event, used for
// diagnostic markers such as OBSERVER_SKIP.
type MarkerPayload struct {
	Marker string
}

func (MarkerPayload) payloadKind() Kind { return KindTraceMarker }

// StoreKind names the store-family instruction a Store was derived from.
type StoreKind uint8

const (
	StoreLocal StoreKind = iota + 1
	StoreGlobal
	StoreAttribute
	StoreSubscript
	StoreParameter // call-and-bind: argument binding at function entry
)

// Store is a single named variable-change observation, attributed to the
// LINE event in whose window it occurred.
type Store struct {
	Kind      StoreKind
	Name      string // rendered per §4.4, e.g. "x" or "container[key_repr]"
	ValueRepr string
}
