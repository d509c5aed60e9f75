// Package observe implements the Variable Observer (§4.4): it upgrades raw
// opcode events into named variable-change events by resolving the target
// name and value of each store-family instruction, rendering the value
// into a bounded, side-effect-free string. Deduplicating repeats within a
// single source line is done by types.LogicalFrame.RecordStore, not here.
package observe

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/tracewell-dev/tracewell/internal/types"
)

// DefaultCharBudget is the default bound on a rendered value's length (§4.4).
const DefaultCharBudget = 4096

// Displayable is the capability interface a host value can implement to
// control its own rendering. This is the statically-typed substitute (§9,
// third re-architecture note) for calling an arbitrary object's dynamic
// repr/__repr__ method: only types that implement it get a caller-chosen
// string; everything else falls back to a generic rendering. In strict
// mode only the types named in Config.Safelist are rendered at all, so a
// Displayable type outside the safelist gets the opaque placeholder.
type Displayable interface {
	Display() string
}

// Config configures the Observer.
type Config struct {
	// CharBudget bounds the length of a rendered value. Zero selects
	// DefaultCharBudget.
	CharBudget int

	// Strict, when true, refuses to call a user-defined value-to-string
	// method on a value whose type is not in Safelist; every such value,
	// Displayable or not, renders as "<opaque type=T size=n>" instead.
	Strict bool

	// Safelist names the dynamic types (by reflect.Type.String()) that are
	// still rendered via Display()/fmt formatting in strict mode.
	Safelist map[string]bool
}

// Observer resolves store-family instructions into types.Store values and
// renders their values, tracking which code objects have had opcode
// observation disabled after a resolution failure (§4.4 failure semantics).
type Observer struct {
	cfg Config

	mu      sync.Mutex
	skipped map[codeKey]bool
}

type codeKey struct {
	fileID    types.FileID
	firstLine uint32
}

// New creates an Observer. A zero Config is valid and uses DefaultCharBudget
// in non-strict mode.
func New(cfg Config) *Observer {
	if cfg.CharBudget <= 0 {
		cfg.CharBudget = DefaultCharBudget
	}
	return &Observer{cfg: cfg, skipped: make(map[codeKey]bool)}
}

// IsSkipped reports whether opcode observation has been disabled for the
// code object identified by (fileID, firstLine), per the "disables further
// opcode observation for that code object for the remainder of the
// session" rule.
func (o *Observer) IsSkipped(fileID types.FileID, firstLine uint32) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.skipped[codeKey{fileID, firstLine}]
}

// MarkSkip disables opcode observation for a code object and reports
// whether this is the first time (callers emit the OBSERVER_SKIP marker
// exactly once per code object).
func (o *Observer) MarkSkip(fileID types.FileID, firstLine uint32) (first bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := codeKey{fileID, firstLine}
	if o.skipped[key] {
		return false
	}
	o.skipped[key] = true
	return true
}

// StoreLocal resolves a store-to-local instruction: the name comes from the
// code object's ordered local-names list at index, the value from the top
// of the evaluation stack.
func (o *Observer) StoreLocal(localNames []string, index uint32, value any) (types.Store, error) {
	name, err := nameAt(localNames, index)
	if err != nil {
		return types.Store{}, err
	}
	return types.Store{Kind: types.StoreLocal, Name: name, ValueRepr: o.Repr(value)}, nil
}

// StoreGlobal resolves a store-to-global-or-module-scope instruction: name
// from the code object's names table at index, value from top of stack.
func (o *Observer) StoreGlobal(names []string, index uint32, value any) (types.Store, error) {
	name, err := nameAt(names, index)
	if err != nil {
		return types.Store{}, err
	}
	return types.Store{Kind: types.StoreGlobal, Name: name, ValueRepr: o.Repr(value)}, nil
}

// StoreAttribute resolves a store-to-attribute instruction: name from the
// names table; receiver is the stack element below the value.
func (o *Observer) StoreAttribute(names []string, index uint32, receiverExpr string, value any) (types.Store, error) {
	attr, err := nameAt(names, index)
	if err != nil {
		return types.Store{}, err
	}
	name := fmt.Sprintf("%s.%s", receiverExpr, attr)
	return types.Store{Kind: types.StoreAttribute, Name: name, ValueRepr: o.Repr(value)}, nil
}

// StoreSubscript resolves a store-to-subscript instruction. Per §4.4, the
// key is the stack element immediately below the value, the container is
// two below, and the rendered name is "container_expr[key_repr]".
func (o *Observer) StoreSubscript(containerExpr string, key, value any) types.Store {
	name := fmt.Sprintf("%s[%s]", containerExpr, o.Repr(key))
	return types.Store{Kind: types.StoreSubscript, Name: name, ValueRepr: o.Repr(value)}
}

// BindParameters synthesizes one store event per formal parameter at
// function entry (call-and-bind, §4.4).
func (o *Observer) BindParameters(paramNames []string, values []any) []types.Store {
	n := len(paramNames)
	if len(values) < n {
		n = len(values)
	}
	stores := make([]types.Store, n)
	for i := 0; i < n; i++ {
		stores[i] = types.Store{Kind: types.StoreParameter, Name: paramNames[i], ValueRepr: o.Repr(values[i])}
	}
	return stores
}

func nameAt(table []string, index uint32) (string, error) {
	if int(index) >= len(table) {
		return "", fmt.Errorf("observe: name index %d out of range (table has %d entries)", index, len(table))
	}
	return table[index], nil
}

// Repr renders a value into a bounded, side-effect-free string. It never
// panics: a panic inside a Displayable implementation, or inside the
// default formatter, is recovered and rendered as "<repr error: KIND>"
// (§4.4 failure semantics; §7 SerializationError).
func (o *Observer) Repr(v any) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = fmt.Sprintf("<repr error: %v>", r)
		}
	}()

	if v == nil {
		return "None"
	}

	if o.cfg.Strict {
		typeName := reflect.TypeOf(v).String()
		if !o.cfg.Safelist[typeName] {
			return fmt.Sprintf("<opaque type=%s size=%d>", typeName, approxSize(v))
		}
	}

	if d, ok := v.(Displayable); ok {
		return o.bound(d.Display())
	}

	return o.bound(fmt.Sprintf("%#v", v))
}

func (o *Observer) bound(s string) string {
	if len(s) <= o.cfg.CharBudget {
		return s
	}
	return s[:o.cfg.CharBudget] + "...(truncated)"
}

// approxSize gives a best-effort size hint for the opaque-value placeholder.
func approxSize(v any) int {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	default:
		return int(rv.Type().Size())
	}
}
