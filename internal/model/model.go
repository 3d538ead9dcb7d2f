// Package model defines core data structures for callindex.
package model

import "github.com/phobologic/callindex/internal/fqsen"

// ClassKind indicates the syntactic kind of a class-like declaration.
type ClassKind string

const (
	Class     ClassKind = "class"
	Interface ClassKind = "interface"
	Trait     ClassKind = "trait"
	Enum      ClassKind = "enum"
)

// Visibility of a method.
type Visibility string

const (
	Public    Visibility = "public"
	Protected Visibility = "protected"
	Private   Visibility = "private"
)

// Param is a single formal parameter of a callable.
type Param struct {
	Name     string
	Type     string
	Optional bool
	Variadic bool
}

// Method is a declared method or free function. The scanning pass builds it;
// the codebase stores the pointer verbatim. The one exception is a
// conditional function whose FQSEN is already taken: registration moves it
// to the next free alternate id.
type Method struct {
	FQSEN       fqsen.Callable
	File        string
	Line        int
	Signature   string
	ReturnType  string
	Params      []Param
	Visibility  Visibility
	Static      bool
	Abstract    bool
	// Conditional is set for functions declared inside a block, such as
	// polyfills wrapped in function_exists checks.
	Conditional bool
}

// IsFunction reports whether m is a free function rather than a method.
func (m *Method) IsFunction() bool {
	_, ok := m.FQSEN.(fqsen.FunctionName)
	return ok
}

// ClassInfo is a declared class, interface, trait or enum.
type ClassInfo struct {
	FQSEN      fqsen.ClassName
	Kind       ClassKind
	File       string
	Line       int
	Parent     fqsen.ClassName
	Interfaces []fqsen.ClassName
	Traits     []fqsen.ClassName
}

// CallKind says how a call site names its callee.
type CallKind string

const (
	FunctionCall CallKind = "function"
	StaticCall   CallKind = "static"
	InstanceCall CallKind = "instance"
)

// CallSite is a call expression found while scanning a file.
type CallSite struct {
	Kind CallKind
	// Caller is the enclosing callable, nil at file top level.
	Caller fqsen.Callable
	// Class is the resolved class for static and $this calls.
	Class fqsen.ClassName
	// Namespace is the namespace a function call appears in.
	Namespace string
	// Name is the callee name as written, after use-import resolution.
	Name string
	// Qualified is true when a function call named an explicit namespace.
	Qualified bool
	File      string
	Line      int
}

// FileInfo holds the declarations and call sites extracted from one file.
type FileInfo struct {
	Path      string
	Language  string
	Classes   []ClassInfo
	Methods   []*Method
	CallSites []CallSite
	Rank      float64
}

// Dependency represents an edge in the file dependency graph:
// Source calls callables defined in Target.
type Dependency struct {
	Source  string
	Target  string
	Symbols []string
}

// CallEdge is a resolved call from one callable to another.
type CallEdge struct {
	Caller string
	Callee string
}

// Unresolved is a call site whose callee is not in the codebase.
type Unresolved struct {
	Caller string
	Call   string
	File   string
	Line   int
}

// Diagnostic is an internal-consistency finding reported alongside the map.
type Diagnostic struct {
	Kind    string
	Subject string
	File    string
	Line    int
	Message string
}

// IndexMap is the complete analyzed codebase, ready for serialization.
type IndexMap struct {
	RepoName    string
	Root        string
	Files       []FileInfo
	Callables   []*Method
	CallEdges   []CallEdge
	Unresolved  []Unresolved
	Unused      []string
	Deps        []Dependency
	Diagnostics []Diagnostic
}
