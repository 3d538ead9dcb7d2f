// Package codebase holds the declarations known to a single analysis run:
// classes and the callable registry.
package codebase

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/phobologic/callindex/internal/fqsen"
	"github.com/phobologic/callindex/internal/model"
)

// Diagnostic kinds recorded by CodeBase.
const (
	Redeclaration    = "redeclaration"
	UnknownAncestor  = "unknown-ancestor"
	InheritanceCycle = "inheritance-cycle"
	Internal         = "internal"
)

// CodeBase owns the class table and method registry for one run.
type CodeBase struct {
	logger      zerolog.Logger
	classes     map[string]*model.ClassInfo
	methods     *MethodMap
	diagnostics []model.Diagnostic
}

// Option configures a CodeBase.
type Option func(*CodeBase)

// WithLogger sets the logger used for debug events.
func WithLogger(logger zerolog.Logger) Option {
	return func(cb *CodeBase) {
		cb.logger = logger
	}
}

// New returns an empty CodeBase.
func New(opts ...Option) *CodeBase {
	cb := &CodeBase{
		logger:  zerolog.Nop(),
		classes: make(map[string]*model.ClassInfo),
		methods: NewMethodMap(),
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Methods returns the callable registry.
func (cb *CodeBase) Methods() *MethodMap {
	return cb.methods
}

// AddClass records a class declaration. A later declaration of the same
// class replaces the earlier one and is reported as a redeclaration.
func (cb *CodeBase) AddClass(c model.ClassInfo) {
	key := c.FQSEN.String()
	if prev, ok := cb.classes[key]; ok {
		cb.report(model.Diagnostic{
			Kind:    Redeclaration,
			Subject: key,
			File:    c.File,
			Line:    c.Line,
			Message: fmt.Sprintf("class %s already declared at %s:%d", key, prev.File, prev.Line),
		})
	}
	cb.classes[key] = &c
}

// HasClass reports whether class has been declared.
func (cb *CodeBase) HasClass(class fqsen.ClassName) bool {
	_, ok := cb.classes[class.String()]
	return ok
}

// Class returns the declaration for class.
func (cb *CodeBase) Class(class fqsen.ClassName) (*model.ClassInfo, bool) {
	c, ok := cb.classes[class.String()]
	return c, ok
}

// Classes returns every declared class sorted by FQSEN.
func (cb *CodeBase) Classes() []*model.ClassInfo {
	out := make([]*model.ClassInfo, 0, len(cb.classes))
	for _, c := range cb.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FQSEN.String() < out[j].FQSEN.String()
	})
	return out
}

// AddMethod registers m in the method registry. A conditional function whose
// FQSEN is already registered is moved to the next free alternate id. Any
// other m that replaces an existing entry is reported as a redeclaration;
// the registry itself keeps the last write.
func (cb *CodeBase) AddMethod(m *model.Method) error {
	if m != nil && m.FQSEN != nil && cb.methods.Has(m.FQSEN) {
		if fn, ok := m.FQSEN.(fqsen.FunctionName); ok && m.Conditional {
			m.FQSEN = cb.nextFreeAlternate(fn)
			return cb.register(m)
		}
		prev, err := cb.methods.Get(m.FQSEN)
		if err != nil {
			return err
		}
		cb.report(model.Diagnostic{
			Kind:    Redeclaration,
			Subject: m.FQSEN.String(),
			File:    m.File,
			Line:    m.Line,
			Message: fmt.Sprintf("%s already declared at %s:%d", m.FQSEN, prev.File, prev.Line),
		})
	}
	return cb.register(m)
}

func (cb *CodeBase) register(m *model.Method) error {
	if err := cb.methods.Add(m); err != nil {
		return err
	}
	cb.logger.Debug().Stringer("fqsen", m.FQSEN).Str("file", m.File).Msg("registered callable")
	return nil
}

// nextFreeAlternate returns fn with the lowest unregistered alternate id
// above its own.
func (cb *CodeBase) nextFreeAlternate(fn fqsen.FunctionName) fqsen.FunctionName {
	for id := fn.AlternateID + 1; ; id++ {
		if alt := fn.WithAlternateID(id); !cb.methods.Has(alt) {
			return alt
		}
	}
}

// AddFile registers every class and callable declared in fi. Call sites in
// fi whose caller was renumbered during registration follow it.
func (cb *CodeBase) AddFile(fi *model.FileInfo) error {
	for _, c := range fi.Classes {
		cb.AddClass(c)
	}
	var moved map[fqsen.Callable]fqsen.Callable
	for _, m := range fi.Methods {
		var before fqsen.Callable
		if m != nil {
			before = m.FQSEN
		}
		if err := cb.AddMethod(m); err != nil {
			return fmt.Errorf("%s: %w", fi.Path, err)
		}
		if m.FQSEN != before {
			if moved == nil {
				moved = make(map[fqsen.Callable]fqsen.Callable)
			}
			moved[before] = m.FQSEN
		}
	}
	for i := range fi.CallSites {
		if to, ok := moved[fi.CallSites[i].Caller]; ok {
			fi.CallSites[i].Caller = to
		}
	}
	return nil
}

// ImportInherited makes methods declared on traits, ancestors and interfaces
// visible in the scope of each class that does not declare them itself.
// Traits are applied first, then the parent chain, then interfaces, so a
// trait method shadows an inherited one and a concrete inherited method
// shadows an interface declaration. The registry entries keep their original
// FQSENs.
func (cb *CodeBase) ImportInherited() {
	done := make(map[string]bool, len(cb.classes))
	for _, c := range cb.Classes() {
		cb.importInto(c, done, map[string]bool{})
	}
}

func (cb *CodeBase) importInto(c *model.ClassInfo, done, visiting map[string]bool) {
	key := c.FQSEN.String()
	if done[key] {
		return
	}
	if visiting[key] {
		cb.report(model.Diagnostic{
			Kind:    InheritanceCycle,
			Subject: key,
			File:    c.File,
			Line:    c.Line,
			Message: fmt.Sprintf("%s inherits from itself", key),
		})
		return
	}
	visiting[key] = true

	type ancestor struct {
		name fqsen.ClassName
		role string
	}
	ancestors := make([]ancestor, 0, len(c.Traits)+1+len(c.Interfaces))
	for _, t := range c.Traits {
		ancestors = append(ancestors, ancestor{t, "trait"})
	}
	if !c.Parent.IsZero() {
		ancestors = append(ancestors, ancestor{c.Parent, "parent"})
	}
	for _, i := range c.Interfaces {
		ancestors = append(ancestors, ancestor{i, "interface"})
	}

	for _, anc := range ancestors {
		ac, ok := cb.classes[anc.name.String()]
		if !ok {
			if anc.role == "interface" {
				// Built-in interfaces such as Countable are never declared.
				cb.logger.Debug().Stringer("class", c.FQSEN).Stringer("interface", anc.name).Msg("interface not in codebase")
				continue
			}
			cb.report(model.Diagnostic{
				Kind:    UnknownAncestor,
				Subject: key,
				File:    c.File,
				Line:    c.Line,
				Message: fmt.Sprintf("%s extends or uses undeclared %s", key, anc.name),
			})
			continue
		}
		cb.importInto(ac, done, visiting)
		own := cb.methods.GetForClassScope(c.FQSEN)
		inherited := cb.methods.GetForClassScope(anc.name)
		for _, member := range sortedMemberKeys(inherited) {
			if _, declared := own[member]; declared {
				continue
			}
			m := inherited[member]
			if anc.role == "parent" && m.Visibility == model.Private {
				continue
			}
			if err := cb.methods.AddInScope(m, c.FQSEN); err != nil {
				cb.report(model.Diagnostic{
					Kind:    Internal,
					Subject: key,
					File:    c.File,
					Line:    c.Line,
					Message: err.Error(),
				})
			}
		}
	}

	delete(visiting, key)
	done[key] = true
}

// Diagnostics returns the diagnostics recorded so far.
func (cb *CodeBase) Diagnostics() []model.Diagnostic {
	return cb.diagnostics
}

// Report records an externally produced diagnostic.
func (cb *CodeBase) Report(d model.Diagnostic) {
	cb.report(d)
}

func (cb *CodeBase) report(d model.Diagnostic) {
	cb.logger.Debug().Str("kind", d.Kind).Str("subject", d.Subject).Msg(d.Message)
	cb.diagnostics = append(cb.diagnostics, d)
}

func sortedMemberKeys(m map[string]*model.Method) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
