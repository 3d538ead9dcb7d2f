// Package fqsen defines fully qualified structural element names (FQSENs) for
// PHP classes, methods and functions.
//
// FQSEN values are plain comparable structs. Their String forms are the keys
// under which the codebase indexes declarations.
package fqsen

import (
	"fmt"
	"strconv"
	"strings"
)

// Separator is the PHP namespace separator.
const Separator = `\`

// GlobalNamespace is the canonical form of the root namespace.
const GlobalNamespace = Separator

// NormalizeNamespace returns ns in canonical form: a leading separator, no
// trailing separator, and GlobalNamespace for the empty namespace.
func NormalizeNamespace(ns string) string {
	ns = strings.Trim(strings.TrimSpace(ns), Separator)
	if ns == "" {
		return GlobalNamespace
	}
	return Separator + ns
}

// Join appends name to the namespace ns.
func Join(ns, name string) string {
	ns = NormalizeNamespace(ns)
	if ns == GlobalNamespace {
		return Separator + name
	}
	return ns + Separator + name
}

// Split breaks a qualified name such as `\App\Widget` into its namespace and
// final segment.
func Split(qualified string) (ns, name string) {
	qualified = strings.Trim(strings.TrimSpace(qualified), Separator)
	if i := strings.LastIndex(qualified, Separator); i >= 0 {
		return NormalizeNamespace(qualified[:i]), qualified[i+1:]
	}
	return GlobalNamespace, qualified
}

// ClassName identifies a class, interface or trait.
type ClassName struct {
	Namespace string
	Name      string
}

// NewClassName returns the class FQSEN for name inside namespace ns.
func NewClassName(ns, name string) ClassName {
	return ClassName{Namespace: NormalizeNamespace(ns), Name: name}
}

// ParseClassName parses a fully qualified class name like `\App\Widget`.
func ParseClassName(qualified string) ClassName {
	ns, name := Split(qualified)
	return ClassName{Namespace: ns, Name: name}
}

// IsZero reports whether c names no class.
func (c ClassName) IsZero() bool {
	return c.Name == ""
}

// String implements fmt.Stringer.
func (c ClassName) String() string {
	return Join(c.Namespace, c.Name)
}

// Callable is the FQSEN of something that can be called: either a MethodName
// or a FunctionName. The interface is sealed; switch on the concrete type.
type Callable interface {
	fmt.Stringer
	// NameWithAlternateID returns the member key of the callable inside its
	// scope.
	NameWithAlternateID() string
	callable()
}

// MethodName identifies a method declared on a class.
type MethodName struct {
	Class       ClassName
	Name        string
	AlternateID int
}

// NewMethodName returns the primary method FQSEN for class::name.
func NewMethodName(class ClassName, name string) MethodName {
	return MethodName{Class: class, Name: name}
}

// WithAlternateID returns a copy of m with the given alternate id.
func (m MethodName) WithAlternateID(id int) MethodName {
	m.AlternateID = id
	return m
}

// NameWithAlternateID implements Callable.
func (m MethodName) NameWithAlternateID() string {
	return withAlternateID(m.Name, m.AlternateID)
}

// String implements fmt.Stringer.
func (m MethodName) String() string {
	return m.Class.String() + "::" + m.NameWithAlternateID()
}

func (MethodName) callable() {}

// FunctionName identifies a free function declared in a namespace.
type FunctionName struct {
	Namespace   string
	Name        string
	AlternateID int
}

// NewFunctionName returns the primary function FQSEN for name inside ns.
func NewFunctionName(ns, name string) FunctionName {
	return FunctionName{Namespace: NormalizeNamespace(ns), Name: name}
}

// WithAlternateID returns a copy of f with the given alternate id.
func (f FunctionName) WithAlternateID(id int) FunctionName {
	f.AlternateID = id
	return f
}

// NameWithAlternateID implements Callable.
func (f FunctionName) NameWithAlternateID() string {
	return withAlternateID(f.Name, f.AlternateID)
}

// String implements fmt.Stringer.
func (f FunctionName) String() string {
	return Join(f.Namespace, f.NameWithAlternateID())
}

func (FunctionName) callable() {}

func withAlternateID(name string, id int) string {
	if id == 0 {
		return name
	}
	return name + "," + strconv.Itoa(id)
}
