package codebase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/callindex/internal/fqsen"
	"github.com/phobologic/callindex/internal/model"
)

var (
	widget = fqsen.NewClassName("App", "Widget")
	gadget = fqsen.NewClassName("App", "Gadget")
)

func method(class fqsen.ClassName, name string, alt int) *model.Method {
	return &model.Method{
		FQSEN: fqsen.NewMethodName(class, name).WithAlternateID(alt),
		File:  "src/" + class.Name + ".php",
		Line:  1,
	}
}

func function(ns, name string, alt int) *model.Method {
	return &model.Method{
		FQSEN: fqsen.NewFunctionName(ns, name).WithAlternateID(alt),
		File:  "src/functions.php",
		Line:  1,
	}
}

// notCallable satisfies fqsen.Callable only through embedding, which the
// registry must reject.
type notCallable struct {
	fqsen.MethodName
}

func TestMethodMapRoundTrip(t *testing.T) {
	t.Parallel()

	for _, m := range []*model.Method{
		method(widget, "bar", 0),
		method(widget, "bar", 3),
		function("App", "foo", 0),
		function("", "helper", 1),
	} {
		mm := NewMethodMap()
		require.NoError(t, mm.Add(m))
		assert.True(t, mm.Has(m.FQSEN), "Has(%v)", m.FQSEN)

		got, err := mm.Get(m.FQSEN)
		require.NoError(t, err)
		assert.Same(t, m, got)
	}
}

func TestMethodMapOverwrite(t *testing.T) {
	t.Parallel()

	mm := NewMethodMap()
	first := method(widget, "bar", 0)
	second := method(widget, "bar", 0)
	second.Line = 42

	require.NoError(t, mm.Add(first))
	require.NoError(t, mm.Add(second))

	got, err := mm.Get(first.FQSEN)
	require.NoError(t, err)
	assert.Same(t, second, got)

	scope := mm.GetForClassScope(widget)
	assert.Len(t, scope, 1)
	assert.Same(t, second, scope["bar"])
}

func TestMethodMapScopeIsolation(t *testing.T) {
	t.Parallel()

	mm := NewMethodMap()
	require.NoError(t, mm.Add(method(widget, "bar", 0)))
	require.NoError(t, mm.Add(method(widget, "baz", 0)))

	assert.Empty(t, mm.GetForClassScope(gadget))
	assert.False(t, mm.Has(fqsen.NewMethodName(gadget, "bar")))
	assert.Len(t, mm.GetForClassScope(widget), 2)
}

func TestMethodMapAlternateIDs(t *testing.T) {
	t.Parallel()

	mm := NewMethodMap()
	primary := method(widget, "foo", 0)
	alternate := method(widget, "foo", 1)
	require.NoError(t, mm.Add(primary))
	require.NoError(t, mm.Add(alternate))

	scope := mm.GetForClassScope(widget)
	require.Len(t, scope, 2)
	assert.Same(t, primary, scope["foo"])
	assert.Same(t, alternate, scope["foo,1"])
}

func TestMethodMapEmptyScope(t *testing.T) {
	t.Parallel()

	mm := NewMethodMap()
	scope := mm.GetForClassScope(widget)
	assert.NotNil(t, scope)
	assert.Empty(t, scope)
}

func TestMethodMapReplaceAll(t *testing.T) {
	t.Parallel()

	mm := NewMethodMap()
	old := method(widget, "old", 0)
	require.NoError(t, mm.Add(old))

	kept := method(gadget, "kept", 0)
	replacement := Map{
		gadget.String(): {"kept": kept},
	}
	mm.ReplaceAll(replacement)

	assert.Equal(t, replacement, mm.GetAll())
	assert.False(t, mm.Has(old.FQSEN))
	assert.Empty(t, mm.GetForClassScope(widget))
	assert.True(t, mm.Has(kept.FQSEN))

	mm.ReplaceAll(nil)
	assert.Empty(t, mm.GetAll())
	require.NoError(t, mm.Add(old), "registry must stay usable after ReplaceAll(nil)")
}

func TestMethodMapAddInScope(t *testing.T) {
	t.Parallel()

	mm := NewMethodMap()
	m := method(widget, "render", 0)
	require.NoError(t, mm.AddInScope(m, gadget))

	assert.Same(t, m, mm.GetForClassScope(gadget)["render"])
	assert.Empty(t, mm.GetForClassScope(widget))
	assert.False(t, mm.Has(m.FQSEN))
	assert.True(t, mm.Has(fqsen.NewMethodName(gadget, "render")))

	require.NoError(t, mm.Add(m))
	assert.Same(t, mm.GetForClassScope(widget)["render"], mm.GetForClassScope(gadget)["render"])
}

func TestMethodMapGetNotFound(t *testing.T) {
	t.Parallel()

	mm := NewMethodMap()
	_, err := mm.Get(fqsen.NewFunctionName("App", "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, fqsen.Callable(fqsen.NewFunctionName("App", "missing")), nf.FQSEN)
}

func TestMethodMapAddInvariantViolation(t *testing.T) {
	t.Parallel()

	mm := NewMethodMap()

	err := mm.Add(nil)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	err = mm.Add(&model.Method{})
	assert.ErrorIs(t, err, ErrInvariantViolation)

	err = mm.Add(&model.Method{FQSEN: notCallable{fqsen.NewMethodName(widget, "x")}})
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Empty(t, mm.GetAll())
}

func TestMethodMapAddInScopeInvariantViolation(t *testing.T) {
	t.Parallel()

	mm := NewMethodMap()

	assert.ErrorIs(t, mm.AddInScope(nil, widget), ErrInvariantViolation)
	assert.ErrorIs(t, mm.AddInScope(&model.Method{}, widget), ErrInvariantViolation)
	assert.ErrorIs(t, mm.AddInScope(&model.Method{FQSEN: notCallable{fqsen.NewMethodName(gadget, "x")}}, widget), ErrInvariantViolation)
	assert.Empty(t, mm.GetAll())
}

// Not parallel: AllocsPerRun is unreliable alongside other goroutines.
func TestMethodMapLookupDoesNotAllocate(t *testing.T) {
	mm := NewMethodMap()
	require.NoError(t, mm.Add(method(widget, "render", 0)))
	require.NoError(t, mm.Add(function("App", "boot", 0)))
	require.NoError(t, mm.AddInScope(method(widget, "size", 0), gadget))

	names := []fqsen.Callable{
		fqsen.NewMethodName(widget, "render"),
		fqsen.NewFunctionName("App", "boot"),
		fqsen.NewMethodName(gadget, "size"),
		fqsen.NewMethodName(gadget, "missing"),
	}
	allocs := testing.AllocsPerRun(100, func() {
		for _, name := range names {
			mm.Has(name)
		}
		mm.GetForClassScope(gadget)
	})
	assert.Zero(t, allocs)

	// Scopes installed wholesale resolve from the same cache.
	mm.ReplaceAll(Map{widget.String(): {"render": method(widget, "render", 0)}})
	allocs = testing.AllocsPerRun(100, func() {
		mm.Has(names[0])
	})
	assert.Zero(t, allocs)
}

func TestMethodMapHasNil(t *testing.T) {
	t.Parallel()

	assert.False(t, NewMethodMap().Has(nil))
}

func TestMethodMapScenario(t *testing.T) {
	t.Parallel()

	mm := NewMethodMap()
	require.NoError(t, mm.Add(function("App", "foo", 0)))
	require.NoError(t, mm.Add(method(widget, "bar", 1)))

	assert.True(t, mm.Has(fqsen.NewFunctionName("App", "foo")))
	assert.True(t, mm.Has(fqsen.NewMethodName(widget, "bar").WithAlternateID(1)))

	_, err := mm.Get(fqsen.NewMethodName(widget, "bar").WithAlternateID(2))
	assert.ErrorIs(t, err, ErrNotFound)
}
