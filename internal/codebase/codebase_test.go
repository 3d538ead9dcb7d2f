package codebase

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/callindex/internal/fqsen"
	"github.com/phobologic/callindex/internal/model"
)

func TestAddMethodRecordsRedeclaration(t *testing.T) {
	t.Parallel()

	cb := New()
	first := method(widget, "bar", 0)
	second := method(widget, "bar", 0)
	second.Line = 9

	require.NoError(t, cb.AddMethod(first))
	require.NoError(t, cb.AddMethod(second))

	got, err := cb.Methods().Get(first.FQSEN)
	require.NoError(t, err)
	assert.Same(t, second, got)

	diags := cb.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, Redeclaration, diags[0].Kind)
	assert.Equal(t, `\App\Widget::bar`, diags[0].Subject)
	assert.Equal(t, 9, diags[0].Line)
}

func TestAddMethodInvalid(t *testing.T) {
	t.Parallel()

	cb := New()
	err := cb.AddMethod(&model.Method{})
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestAddFile(t *testing.T) {
	t.Parallel()

	cb := New()
	fi := &model.FileInfo{
		Path:    "src/Widget.php",
		Classes: []model.ClassInfo{{FQSEN: widget, Kind: model.Class}},
		Methods: []*model.Method{method(widget, "render", 0), function("App", "boot", 0)},
	}
	require.NoError(t, cb.AddFile(fi))

	assert.True(t, cb.HasClass(widget))
	assert.False(t, cb.HasClass(gadget))
	assert.True(t, cb.Methods().Has(fqsen.NewMethodName(widget, "render")))
	assert.True(t, cb.Methods().Has(fqsen.NewFunctionName("App", "boot")))

	fi.Methods = append(fi.Methods, nil)
	assert.ErrorIs(t, cb.AddFile(fi), ErrInvariantViolation)
}

func TestAddFileConditionalAcrossFiles(t *testing.T) {
	t.Parallel()

	polyfill := fqsen.NewFunctionName("A", "polyfill")
	conditional := func(file string) *model.FileInfo {
		m := &model.Method{FQSEN: polyfill, File: file, Line: 3, Conditional: true}
		return &model.FileInfo{
			Path:    file,
			Methods: []*model.Method{m},
			CallSites: []model.CallSite{
				{Kind: model.FunctionCall, Caller: polyfill, Namespace: `\`, Name: "strlen", File: file, Line: 4},
			},
		}
	}

	cb := New()
	first, second := conditional("a.php"), conditional("b.php")
	require.NoError(t, cb.AddFile(first))
	require.NoError(t, cb.AddFile(second))

	moved := fqsen.Callable(polyfill.WithAlternateID(1))
	assert.Equal(t, fqsen.Callable(polyfill), first.Methods[0].FQSEN)
	assert.Equal(t, moved, second.Methods[0].FQSEN)
	assert.Equal(t, fqsen.Callable(polyfill), first.CallSites[0].Caller)
	assert.Equal(t, moved, second.CallSites[0].Caller)

	scope := cb.Methods().GetAll()[`\A`]
	require.Len(t, scope, 2)
	assert.Same(t, first.Methods[0], scope["polyfill"])
	assert.Same(t, second.Methods[0], scope["polyfill,1"])
	assert.Empty(t, cb.Diagnostics())

	// A third copy skips ids already taken.
	third := conditional("c.php")
	require.NoError(t, cb.AddFile(third))
	assert.Equal(t, fqsen.Callable(polyfill.WithAlternateID(2)), third.Methods[0].FQSEN)
}

func TestAddMethodUnconditionalDuplicateStillOverwrites(t *testing.T) {
	t.Parallel()

	cb := New()
	first := function("A", "helper", 0)
	first.Conditional = true
	second := function("A", "helper", 0)
	require.NoError(t, cb.AddMethod(first))
	require.NoError(t, cb.AddMethod(second))

	assert.Equal(t, fqsen.Callable(fqsen.NewFunctionName("A", "helper")), second.FQSEN)
	got, err := cb.Methods().Get(second.FQSEN)
	require.NoError(t, err)
	assert.Same(t, second, got)
	require.Len(t, cb.Diagnostics(), 1)
	assert.Equal(t, Redeclaration, cb.Diagnostics()[0].Kind)
}

func TestClassesSorted(t *testing.T) {
	t.Parallel()

	cb := New()
	cb.AddClass(model.ClassInfo{FQSEN: widget})
	cb.AddClass(model.ClassInfo{FQSEN: gadget})
	cb.AddClass(model.ClassInfo{FQSEN: gadget, File: "dup.php"})

	var names []string
	for _, c := range cb.Classes() {
		names = append(names, c.FQSEN.String())
	}
	if diff := cmp.Diff([]string{`\App\Gadget`, `\App\Widget`}, names); diff != "" {
		t.Errorf("classes (-want +got):\n%s", diff)
	}
	c, ok := cb.Class(gadget)
	require.True(t, ok)
	assert.Equal(t, "dup.php", c.File)
	require.Len(t, cb.Diagnostics(), 1)
	assert.Equal(t, Redeclaration, cb.Diagnostics()[0].Kind)
}

func TestImportInherited(t *testing.T) {
	t.Parallel()

	base := fqsen.NewClassName("App", "Base")
	loggable := fqsen.NewClassName("App", "Loggable")

	cb := New()
	cb.AddClass(model.ClassInfo{FQSEN: base, Kind: model.Class})
	cb.AddClass(model.ClassInfo{FQSEN: loggable, Kind: model.Trait})
	cb.AddClass(model.ClassInfo{FQSEN: widget, Kind: model.Class, Parent: base, Traits: []fqsen.ClassName{loggable}})

	baseRender := method(base, "render", 0)
	baseSecret := method(base, "secret", 0)
	baseSecret.Visibility = model.Private
	baseLog := method(base, "log", 0)
	traitLog := method(loggable, "log", 0)
	ownRender := method(widget, "render", 0)
	for _, m := range []*model.Method{baseRender, baseSecret, baseLog, traitLog, ownRender} {
		require.NoError(t, cb.AddMethod(m))
	}

	cb.ImportInherited()

	scope := cb.Methods().GetForClassScope(widget)
	assert.Same(t, ownRender, scope["render"], "own declaration wins")
	assert.Same(t, traitLog, scope["log"], "trait shadows parent")
	assert.NotContains(t, scope, "secret", "private parent methods stay private")

	// The aliased value keeps its original FQSEN.
	assert.Equal(t, fqsen.Callable(fqsen.NewMethodName(loggable, "log")), scope["log"].FQSEN)

	// Ancestor scopes are unaffected.
	assert.Len(t, cb.Methods().GetForClassScope(base), 3)
	assert.Empty(t, cb.Diagnostics())
}

func TestImportInheritedInterfaces(t *testing.T) {
	t.Parallel()

	base := fqsen.NewClassName("App", "Base")
	renderable := fqsen.NewClassName(`App\Contracts`, "Renderable")
	sized := fqsen.NewClassName(`App\Contracts`, "Sized")

	cb := New()
	cb.AddClass(model.ClassInfo{FQSEN: sized, Kind: model.Interface})
	cb.AddClass(model.ClassInfo{FQSEN: renderable, Kind: model.Interface, Interfaces: []fqsen.ClassName{sized}})
	cb.AddClass(model.ClassInfo{FQSEN: base, Kind: model.Class})
	cb.AddClass(model.ClassInfo{
		FQSEN:      widget,
		Kind:       model.Class,
		Parent:     base,
		Interfaces: []fqsen.ClassName{renderable, fqsen.NewClassName("", "Countable")},
	})

	render := method(renderable, "render", 0)
	sizedSize := method(sized, "size", 0)
	baseSize := method(base, "size", 0)
	for _, m := range []*model.Method{render, sizedSize, baseSize} {
		require.NoError(t, cb.AddMethod(m))
	}

	cb.ImportInherited()

	scope := cb.Methods().GetForClassScope(widget)
	assert.Same(t, render, scope["render"], "abstract interface method is callable on implementors")
	assert.Same(t, baseSize, scope["size"], "parent implementation shadows the interface")
	assert.Same(t, sizedSize, cb.Methods().GetForClassScope(renderable)["size"], "interfaces inherit from interfaces")
	assert.Empty(t, cb.Diagnostics(), "undeclared built-in interfaces are not reported")
}

func TestImportInheritedTransitive(t *testing.T) {
	t.Parallel()

	a := fqsen.NewClassName("", "A")
	b := fqsen.NewClassName("", "B")
	c := fqsen.NewClassName("", "C")

	cb := New()
	// Declared child-first so the walk must recurse into ancestors.
	cb.AddClass(model.ClassInfo{FQSEN: c, Parent: b})
	cb.AddClass(model.ClassInfo{FQSEN: b, Parent: a})
	cb.AddClass(model.ClassInfo{FQSEN: a})
	require.NoError(t, cb.AddMethod(method(a, "hello", 0)))

	cb.ImportInherited()

	assert.Contains(t, cb.Methods().GetForClassScope(b), "hello")
	assert.Contains(t, cb.Methods().GetForClassScope(c), "hello")
	assert.True(t, cb.Methods().Has(fqsen.NewMethodName(c, "hello")))
}

func TestImportInheritedDiagnostics(t *testing.T) {
	t.Parallel()

	a := fqsen.NewClassName("", "A")
	b := fqsen.NewClassName("", "B")
	orphan := fqsen.NewClassName("", "Orphan")

	cb := New()
	cb.AddClass(model.ClassInfo{FQSEN: a, Parent: b})
	cb.AddClass(model.ClassInfo{FQSEN: b, Parent: a})
	cb.AddClass(model.ClassInfo{FQSEN: orphan, Parent: fqsen.NewClassName("Vendor", "Missing")})

	cb.ImportInherited()

	kinds := make(map[string]int)
	for _, d := range cb.Diagnostics() {
		kinds[d.Kind]++
	}
	assert.Equal(t, 1, kinds[InheritanceCycle])
	assert.Equal(t, 1, kinds[UnknownAncestor])
}
