package codebase

import (
	"fmt"

	"github.com/phobologic/callindex/internal/fqsen"
	"github.com/phobologic/callindex/internal/model"
)

// Map is the registry layout: scope key → member key → method.
//
// The scope key is the class FQSEN string for methods and the namespace for
// functions. The member key is the callable's name with its alternate id.
type Map map[string]map[string]*model.Method

// MethodMap indexes every known method and function by FQSEN.
//
// MethodMap does no locking. One goroutine populates it; any number may read
// it once population is finished.
type MethodMap struct {
	methods Map

	// Rendered scope keys, filled on write so that lookups do not allocate.
	classKeys map[fqsen.ClassName]string
	nsKeys    map[string]string
}

// NewMethodMap returns an empty MethodMap.
func NewMethodMap() *MethodMap {
	mm := &MethodMap{}
	mm.ReplaceAll(nil)
	return mm
}

// GetAll returns the underlying map. It is not a copy.
func (mm *MethodMap) GetAll() Map {
	return mm.methods
}

// GetForClassScope returns the methods registered under class, keyed by name
// with alternate id. The result is never nil.
func (mm *MethodMap) GetForClassScope(class fqsen.ClassName) map[string]*model.Method {
	if scope, ok := mm.methods[mm.classKey(class)]; ok {
		return scope
	}
	return map[string]*model.Method{}
}

// ReplaceAll discards the current contents and installs m in their place.
func (mm *MethodMap) ReplaceAll(m Map) {
	if m == nil {
		m = make(Map)
	}
	mm.methods = m
	mm.classKeys = make(map[fqsen.ClassName]string)
	mm.nsKeys = make(map[string]string)
	for _, members := range m {
		for _, method := range members {
			if method != nil {
				mm.cacheKey(method.FQSEN)
			}
		}
	}
}

// Has reports whether a callable is registered under name.
func (mm *MethodMap) Has(name fqsen.Callable) bool {
	_, ok := mm.lookup(name)
	return ok
}

// Get returns the callable registered under name, or a *NotFoundError.
func (mm *MethodMap) Get(name fqsen.Callable) (*model.Method, error) {
	m, ok := mm.lookup(name)
	if !ok {
		return nil, &NotFoundError{FQSEN: name}
	}
	return m, nil
}

// Add registers m under the key derived from its own FQSEN, replacing any
// previous value at that key.
func (mm *MethodMap) Add(m *model.Method) error {
	if err := checkMethod(m); err != nil {
		return err
	}
	mm.cacheKey(m.FQSEN)
	scope, member, _ := mm.keyOf(m.FQSEN)
	mm.put(scope, member, m)
	return nil
}

// AddInScope registers m under class rather than the scope of its own FQSEN.
// The member key is still m's name with alternate id. This is how methods of
// traits and ancestors become visible on a descendant.
func (mm *MethodMap) AddInScope(m *model.Method, class fqsen.ClassName) error {
	if err := checkMethod(m); err != nil {
		return err
	}
	mm.cacheClassKey(class)
	mm.put(mm.classKey(class), m.FQSEN.NameWithAlternateID(), m)
	return nil
}

func checkMethod(m *model.Method) error {
	if m == nil {
		return fmt.Errorf("%w: nil method", ErrInvariantViolation)
	}
	switch m.FQSEN.(type) {
	case fqsen.MethodName, fqsen.FunctionName:
		return nil
	default:
		return fmt.Errorf("%w: method FQSEN %T is neither a method nor a function name", ErrInvariantViolation, m.FQSEN)
	}
}

func (mm *MethodMap) put(scope, member string, m *model.Method) {
	members, ok := mm.methods[scope]
	if !ok {
		members = make(map[string]*model.Method)
		mm.methods[scope] = members
	}
	members[member] = m
}

func (mm *MethodMap) lookup(name fqsen.Callable) (*model.Method, bool) {
	scope, member, ok := mm.keyOf(name)
	if !ok {
		return nil, false
	}
	members, ok := mm.methods[scope]
	if !ok {
		return nil, false
	}
	m, ok := members[member]
	if !ok || m == nil {
		return nil, false
	}
	return m, true
}

// keyOf derives the (scope, member) key pair for a callable FQSEN.
func (mm *MethodMap) keyOf(name fqsen.Callable) (scope, member string, ok bool) {
	switch n := name.(type) {
	case fqsen.MethodName:
		return mm.classKey(n.Class), n.NameWithAlternateID(), true
	case fqsen.FunctionName:
		return mm.nsKey(n.Namespace), n.NameWithAlternateID(), true
	default:
		return "", "", false
	}
}

// classKey and nsKey only read the caches, so concurrent lookups stay safe.
func (mm *MethodMap) classKey(class fqsen.ClassName) string {
	if key, ok := mm.classKeys[class]; ok {
		return key
	}
	return class.String()
}

func (mm *MethodMap) nsKey(ns string) string {
	if key, ok := mm.nsKeys[ns]; ok {
		return key
	}
	return fqsen.NormalizeNamespace(ns)
}

func (mm *MethodMap) cacheClassKey(class fqsen.ClassName) {
	if _, ok := mm.classKeys[class]; !ok {
		mm.classKeys[class] = class.String()
	}
}

func (mm *MethodMap) cacheKey(name fqsen.Callable) {
	switch n := name.(type) {
	case fqsen.MethodName:
		mm.cacheClassKey(n.Class)
	case fqsen.FunctionName:
		if _, ok := mm.nsKeys[n.Namespace]; !ok {
			mm.nsKeys[n.Namespace] = fqsen.NormalizeNamespace(n.Namespace)
		}
	}
}
