// Package report implements the Report Builder (§4.7): it streams a sealed
// container chronologically, reconstructs each thread's call tree, and
// renders a foldable HTML document plus a terminal completion summary.
package report

import (
	"fmt"
	"io"

	"github.com/tracewell-dev/tracewell/internal/container"
	"github.com/tracewell-dev/tracewell/internal/types"
)

// Node is one call-tree entry: a CALL event and everything nested inside
// its RETURN/EXCEPTION boundary, in chronological order.
type Node struct {
	Kind      types.Kind
	Line      uint32
	FileID    types.FileID
	Timestamp int64

	QualifiedName string        // CALL
	Args          []types.Store // CALL
	Unwound       bool          // RETURN

	Stores []types.Store // LINE

	ExceptionType    string // EXCEPTION
	ExceptionMessage string
	ExceptionStack   string

	ValueRepr string // RETURN/YIELD
	Marker    string // TRACE_MARKER

	Children []*Node
}

// ThreadTrace is one thread's reconstructed call tree. Roots holds every
// top-level call observed on the thread (normally one, unless the thread
// made more than one top-level call before the session started or after a
// prior call fully returned).
type ThreadTrace struct {
	ThreadID types.ThreadID
	Roots    []*Node
}

// Document is everything the Report Builder needs to render a report: the
// per-thread call trees, the source snapshot table, and the session
// metadata captured in the footer.
type Document struct {
	Threads []*ThreadTrace
	Files   []types.FileEntry
	Meta    types.SessionMeta
}

// BuildDocument streams path's container end to end and reconstructs the
// in-memory Document the renderers consume.
func BuildDocument(path string) (*Document, error) {
	r, err := container.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	b := newBuilder()
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("report: read event: %w", err)
		}
		b.apply(e)
	}

	return &Document{
		Threads: b.threads(),
		Files:   r.Files(),
		Meta:    r.SessionMeta(),
	}, nil
}

// builder reconstructs each thread's call tree from the flat, chronological
// event stream, one thread-local stack of open Nodes at a time.
type builder struct {
	order  []types.ThreadID
	stacks map[types.ThreadID][]*Node
	roots  map[types.ThreadID][]*Node
}

func newBuilder() *builder {
	return &builder{
		stacks: make(map[types.ThreadID][]*Node),
		roots:  make(map[types.ThreadID][]*Node),
	}
}

func (b *builder) apply(e types.Event) {
	if _, ok := b.stacks[e.ThreadID]; !ok {
		b.order = append(b.order, e.ThreadID)
	}

	switch e.Kind {
	case types.KindCall:
		p, _ := e.Payload.(types.CallPayload)
		n := &Node{Kind: e.Kind, Line: e.Line, FileID: e.FileID, Timestamp: e.Timestamp, QualifiedName: p.QualifiedName, Args: p.Args}
		b.push(e.ThreadID, n)

	case types.KindReturn:
		p, _ := e.Payload.(types.ReturnPayload)
		if n := b.pop(e.ThreadID); n != nil {
			n.ValueRepr = p.ValueRepr
			n.Unwound = p.Unwound
		}

	case types.KindException:
		p, _ := e.Payload.(types.ExceptionPayload)
		if n := b.pop(e.ThreadID); n != nil {
			n.ExceptionType = p.TypeName
			n.ExceptionMessage = p.Message
			n.ExceptionStack = p.Stack
		}

	case types.KindLine:
		p, _ := e.Payload.(types.LinePayload)
		if len(p.Stores) == 0 {
			return
		}
		b.append(e.ThreadID, &Node{Kind: e.Kind, Line: e.Line, FileID: e.FileID, Timestamp: e.Timestamp, Stores: p.Stores})

	case types.KindYield:
		p, _ := e.Payload.(types.YieldPayload)
		b.append(e.ThreadID, &Node{Kind: e.Kind, Line: e.Line, FileID: e.FileID, Timestamp: e.Timestamp, ValueRepr: p.ValueRepr})

	case types.KindResume:
		b.append(e.ThreadID, &Node{Kind: e.Kind, Line: e.Line, FileID: e.FileID, Timestamp: e.Timestamp})

	case types.KindTraceMarker:
		p, _ := e.Payload.(types.MarkerPayload)
		b.append(e.ThreadID, &Node{Kind: e.Kind, Line: e.Line, FileID: e.FileID, Timestamp: e.Timestamp, Marker: p.Marker})
	}
}

// push opens a new call frame: it is both appended to the current parent
// (or root list) and pushed as the new top of stack for subsequent events.
func (b *builder) push(tid types.ThreadID, n *Node) {
	b.append(tid, n)
	b.stacks[tid] = append(b.stacks[tid], n)
}

// append adds n as a child of the current top-of-stack frame, or as a new
// root if the thread's stack is empty (top-level call, or an event with no
// enclosing open frame, e.g. after Stop's synthetic unwind).
func (b *builder) append(tid types.ThreadID, n *Node) {
	stack := b.stacks[tid]
	if len(stack) == 0 {
		b.roots[tid] = append(b.roots[tid], n)
		return
	}
	top := stack[len(stack)-1]
	top.Children = append(top.Children, n)
}

func (b *builder) pop(tid types.ThreadID) *Node {
	stack := b.stacks[tid]
	if len(stack) == 0 {
		return nil
	}
	n := stack[len(stack)-1]
	b.stacks[tid] = stack[:len(stack)-1]
	return n
}

func (b *builder) threads() []*ThreadTrace {
	out := make([]*ThreadTrace, 0, len(b.order))
	for _, tid := range b.order {
		out = append(out, &ThreadTrace{ThreadID: tid, Roots: b.roots[tid]})
	}
	return out
}
