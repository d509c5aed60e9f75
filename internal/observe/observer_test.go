package observe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracewell-dev/tracewell/internal/types"
)

type fakeDisplay struct{ s string }

func (f fakeDisplay) Display() string { return f.s }

type panicky struct{}

func (panicky) Display() string { panic("boom") }

func TestReprDisplayable(t *testing.T) {
	o := New(Config{})
	require.Equal(t, "hi", o.Repr(fakeDisplay{"hi"}))
}

func TestReprNil(t *testing.T) {
	o := New(Config{})
	require.Equal(t, "None", o.Repr(nil))
}

func TestReprPanicRecovered(t *testing.T) {
	o := New(Config{})
	require.Contains(t, o.Repr(panicky{}), "<repr error:")
}

func TestReprCharBudgetTruncates(t *testing.T) {
	o := New(Config{CharBudget: 4})
	require.Equal(t, "hi t...(truncated)", o.Repr(fakeDisplay{"hi there"}))
}

func TestReprStrictModeOpaque(t *testing.T) {
	o := New(Config{Strict: true, Safelist: map[string]bool{}})
	got := o.Repr(42)
	require.Contains(t, got, "<opaque type=int")
}

func TestReprStrictModeSafelisted(t *testing.T) {
	o := New(Config{Strict: true, Safelist: map[string]bool{"int": true}})
	require.Equal(t, "42", o.Repr(42))
}

func TestReprStrictModeRefusesUnsafelistedDisplayable(t *testing.T) {
	o := New(Config{Strict: true, Safelist: map[string]bool{}})
	got := o.Repr(fakeDisplay{"hi"})
	require.Contains(t, got, "<opaque type=observe.fakeDisplay")
	require.NotContains(t, got, "hi")
}

func TestReprStrictModeSafelistedDisplayable(t *testing.T) {
	o := New(Config{Strict: true, Safelist: map[string]bool{"observe.fakeDisplay": true}})
	require.Equal(t, "hi", o.Repr(fakeDisplay{"hi"}))
}

func TestStoreLocal(t *testing.T) {
	o := New(Config{})
	s, err := o.StoreLocal([]string{"a", "b", "c"}, 2, 5)
	require.NoError(t, err)
	require.Equal(t, types.StoreLocal, s.Kind)
	require.Equal(t, "c", s.Name)
	require.Equal(t, "5", s.ValueRepr)
}

func TestStoreLocalOutOfRange(t *testing.T) {
	o := New(Config{})
	_, err := o.StoreLocal([]string{"a"}, 5, 1)
	require.Error(t, err)
}

func TestStoreAttribute(t *testing.T) {
	o := New(Config{})
	s, err := o.StoreAttribute([]string{"value"}, 0, "self", 10)
	require.NoError(t, err)
	require.Equal(t, "self.value", s.Name)
}

func TestStoreSubscript(t *testing.T) {
	o := New(Config{})
	s := o.StoreSubscript("d", "key", 1)
	require.Equal(t, `d["key"]`, s.Name)
}

func TestBindParameters(t *testing.T) {
	o := New(Config{})
	stores := o.BindParameters([]string{"a", "b"}, []any{2, 3})
	require.Len(t, stores, 2)
	require.Equal(t, "a", stores[0].Name)
	require.Equal(t, types.StoreParameter, stores[0].Kind)
}

func TestSkipMarkedOnce(t *testing.T) {
	o := New(Config{})
	require.True(t, o.MarkSkip(1, 10))
	require.False(t, o.MarkSkip(1, 10))
	require.True(t, o.IsSkipped(1, 10))
	require.False(t, o.IsSkipped(1, 11))
}
