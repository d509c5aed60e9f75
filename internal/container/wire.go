package container

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tracewell-dev/tracewell/internal/types"
)

// wirePayload is the msgpack-encoded form of an Event's kind-specific
// payload. A single flat struct (rather than one type per kind) keeps the
// payload encoder/decoder a single pair of functions; unused fields are
// omitted via the msgpack struct tags so the common kinds (LINE, CALL,
// RETURN) stay compact.
type wirePayload struct {
	QualifiedName string      `msgpack:"qn,omitempty"`
	FirstLine     uint32      `msgpack:"fl,omitempty"`
	Args          []wireStore `msgpack:"ar,omitempty"`
	ValueRepr     string      `msgpack:"vr,omitempty"`
	Unwound       bool        `msgpack:"uw,omitempty"`
	Stores        []wireStore `msgpack:"st,omitempty"`
	TypeName      string      `msgpack:"tn,omitempty"`
	Message       string      `msgpack:"msg,omitempty"`
	Stack         string      `msgpack:"stk,omitempty"`
	Note          string      `msgpack:"note,omitempty"`
	Marker        string      `msgpack:"mk,omitempty"`
}

type wireStore struct {
	Kind      uint8  `msgpack:"k"`
	Name      string `msgpack:"n"`
	ValueRepr string `msgpack:"v"`
}

// encodePayload serializes an Event's payload for inclusion in a record.
func encodePayload(p types.Payload) ([]byte, error) {
	var w wirePayload
	switch v := p.(type) {
	case types.CallPayload:
		w.QualifiedName = v.QualifiedName
		w.FirstLine = v.FirstLine
		w.Args = encodeStores(v.Args)
	case types.ReturnPayload:
		w.ValueRepr = v.ValueRepr
		w.Unwound = v.Unwound
	case types.LinePayload:
		w.Stores = encodeStores(v.Stores)
	case types.ExceptionPayload:
		w.TypeName = v.TypeName
		w.Message = v.Message
		w.Stack = v.Stack
	case types.OpcodePayload:
		w.Note = v.Note
	case types.YieldPayload:
		w.ValueRepr = v.ValueRepr
	case types.ResumePayload:
		// no fields
	case types.MarkerPayload:
		w.Marker = v.Marker
	default:
		return nil, fmt.Errorf("container: unknown payload type %T", p)
	}
	return msgpack.Marshal(&w)
}

// encodeStores converts a slice of typed Store values to their wire form.
func encodeStores(stores []types.Store) []wireStore {
	if len(stores) == 0 {
		return nil
	}
	out := make([]wireStore, len(stores))
	for i, s := range stores {
		out[i] = wireStore{Kind: uint8(s.Kind), Name: s.Name, ValueRepr: s.ValueRepr}
	}
	return out
}

// decodeStores converts a slice of wire-form stores back to their typed form.
func decodeStores(stores []wireStore) []types.Store {
	if len(stores) == 0 {
		return nil
	}
	out := make([]types.Store, len(stores))
	for i, s := range stores {
		out[i] = types.Store{Kind: types.StoreKind(s.Kind), Name: s.Name, ValueRepr: s.ValueRepr}
	}
	return out
}

// decodePayload reconstructs a typed Payload from its wire form, given the
// record's Kind discriminator.
func decodePayload(kind types.Kind, data []byte) (types.Payload, error) {
	var w wirePayload
	if len(data) > 0 {
		if err := msgpack.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("container: decode payload: %w", err)
		}
	}
	switch kind {
	case types.KindCall:
		return types.CallPayload{QualifiedName: w.QualifiedName, FirstLine: w.FirstLine, Args: decodeStores(w.Args)}, nil
	case types.KindReturn:
		return types.ReturnPayload{ValueRepr: w.ValueRepr, Unwound: w.Unwound}, nil
	case types.KindLine:
		return types.LinePayload{Stores: decodeStores(w.Stores)}, nil
	case types.KindException:
		return types.ExceptionPayload{TypeName: w.TypeName, Message: w.Message, Stack: w.Stack}, nil
	case types.KindOpcode:
		return types.OpcodePayload{Note: w.Note}, nil
	case types.KindYield:
		return types.YieldPayload{ValueRepr: w.ValueRepr}, nil
	case types.KindResume:
		return types.ResumePayload{}, nil
	case types.KindTraceMarker:
		return types.MarkerPayload{Marker: w.Marker}, nil
	default:
		return nil, fmt.Errorf("container: unknown event kind %d", kind)
	}
}
