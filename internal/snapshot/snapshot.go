// Package snapshot persists a scanned codebase to disk so later runs can
// restore the callable registry without re-parsing unchanged files.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/phobologic/callindex/internal/codebase"
	"github.com/phobologic/callindex/internal/fqsen"
	"github.com/phobologic/callindex/internal/model"
)

// Schema is the payload version. Bump it whenever Snapshot changes shape.
const Schema uint16 = 2

// ErrSchemaMismatch is returned by Read for snapshots written by a different
// schema version.
var ErrSchemaMismatch = errors.New("snapshot schema mismatch")

// Name kinds.
const (
	kindMethod   uint8 = 1
	kindFunction uint8 = 2
)

// Name is the flat encoding of a callable FQSEN.
type Name struct {
	Kind        uint8
	Namespace   string
	Class       string
	Name        string
	AlternateID int
}

// Callable is one stored method or function.
type Callable struct {
	Name        Name
	File        string
	Line        int
	Signature   string
	ReturnType  string
	Params      []model.Param
	Visibility  model.Visibility
	Static      bool
	Abstract    bool
	Conditional bool
}

// Entry places Callables[Index] at Scope/Member in the registry. A callable
// aliased into several scopes has several entries.
type Entry struct {
	Scope  string
	Member string
	Index  int
}

// Class is the flat encoding of model.ClassInfo.
type Class struct {
	FQSEN      string
	Kind       model.ClassKind
	File       string
	Line       int
	Parent     string
	Interfaces []string
	Traits     []string
}

// CallSite is the flat encoding of model.CallSite.
type CallSite struct {
	Kind      model.CallKind
	Caller    *Name
	Class     string
	Namespace string
	Name      string
	Qualified bool
	File      string
	Line      int
}

// File records one scanned file.
type File struct {
	Path      string
	Language  string
	ModTime   int64
	CallSites []CallSite
}

// Snapshot is the on-disk payload.
type Snapshot struct {
	Schema    uint16
	Root      string
	CreatedAt int64
	Files     []File
	Classes   []Class
	Callables []Callable
	Entries   []Entry
}

// Capture builds a snapshot of cb and the scanned files under root.
func Capture(root string, cb *codebase.CodeBase, files []model.FileInfo) (*Snapshot, error) {
	s := &Snapshot{
		Schema:    Schema,
		Root:      root,
		CreatedAt: time.Now().UnixNano(),
	}

	for i := range files {
		fi := &files[i]
		st, err := os.Stat(filepath.Join(root, fi.Path))
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", fi.Path, err)
		}
		f := File{Path: fi.Path, Language: fi.Language, ModTime: st.ModTime().UnixNano()}
		for _, cs := range fi.CallSites {
			site, err := encodeCallSite(cs)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fi.Path, err)
			}
			f.CallSites = append(f.CallSites, site)
		}
		s.Files = append(s.Files, f)
	}

	for _, c := range cb.Classes() {
		s.Classes = append(s.Classes, encodeClass(c))
	}

	all := cb.Methods().GetAll()
	index := make(map[*model.Method]int)
	for _, scope := range sortedKeys(all) {
		members := all[scope]
		for _, member := range sortedKeys(members) {
			m := members[member]
			idx, ok := index[m]
			if !ok {
				c, err := encodeMethod(m)
				if err != nil {
					return nil, err
				}
				idx = len(s.Callables)
				index[m] = idx
				s.Callables = append(s.Callables, c)
			}
			s.Entries = append(s.Entries, Entry{Scope: scope, Member: member, Index: idx})
		}
	}
	return s, nil
}

// Methods decodes the stored registry. Aliased entries share one *Method.
func (s *Snapshot) Methods() (codebase.Map, error) {
	decoded := make([]*model.Method, len(s.Callables))
	for i := range s.Callables {
		m, err := decodeMethod(&s.Callables[i])
		if err != nil {
			return nil, err
		}
		decoded[i] = m
	}

	out := make(codebase.Map)
	for _, e := range s.Entries {
		if e.Index < 0 || e.Index >= len(decoded) {
			return nil, fmt.Errorf("entry %s/%s: index %d out of range", e.Scope, e.Member, e.Index)
		}
		members, ok := out[e.Scope]
		if !ok {
			members = make(map[string]*model.Method)
			out[e.Scope] = members
		}
		members[e.Member] = decoded[e.Index]
	}
	return out, nil
}

// Restore loads the snapshot into cb, replacing its registry wholesale, and
// returns the stored files with their call sites. Everything is decoded
// before cb is touched, so on error cb is left as it was.
func (s *Snapshot) Restore(cb *codebase.CodeBase) ([]model.FileInfo, error) {
	methods, err := s.Methods()
	if err != nil {
		return nil, err
	}

	byFile := make(map[string][]*model.Method)
	seen := make(map[*model.Method]bool)
	for _, scope := range sortedKeys(methods) {
		for _, member := range sortedKeys(methods[scope]) {
			m := methods[scope][member]
			if seen[m] {
				continue
			}
			seen[m] = true
			byFile[m.File] = append(byFile[m.File], m)
		}
	}

	files := make([]model.FileInfo, 0, len(s.Files))
	for _, f := range s.Files {
		fi := model.FileInfo{Path: f.Path, Language: f.Language, Methods: byFile[f.Path]}
		for _, cs := range f.CallSites {
			site, err := decodeCallSite(cs)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Path, err)
			}
			fi.CallSites = append(fi.CallSites, site)
		}
		files = append(files, fi)
	}

	for _, c := range s.Classes {
		cb.AddClass(decodeClass(c))
	}
	cb.Methods().ReplaceAll(methods)
	return files, nil
}

// Fresh reports whether the snapshot covers exactly paths under root and no
// file has been modified since it was written.
func (s *Snapshot) Fresh(root string, paths []string) bool {
	if s.Root != root || len(s.Files) != len(paths) {
		return false
	}
	recorded := make(map[string]int64, len(s.Files))
	for _, f := range s.Files {
		recorded[f.Path] = f.ModTime
	}
	for _, p := range paths {
		mt, ok := recorded[p]
		if !ok {
			return false
		}
		st, err := os.Stat(filepath.Join(root, p))
		if err != nil || st.ModTime().UnixNano() != mt {
			return false
		}
	}
	return true
}

// Write serializes s to path atomically.
func Write(path string, s *Snapshot) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".callindex-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	if err = msgpack.NewEncoder(f).Encode(s); err != nil {
		_ = f.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// Read deserializes the snapshot at path.
func Read(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s Snapshot
	if err := msgpack.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if s.Schema != Schema {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSchemaMismatch, s.Schema, Schema)
	}
	return &s, nil
}

func encodeName(c fqsen.Callable) (Name, error) {
	switch n := c.(type) {
	case fqsen.MethodName:
		return Name{Kind: kindMethod, Class: n.Class.String(), Name: n.Name, AlternateID: n.AlternateID}, nil
	case fqsen.FunctionName:
		return Name{Kind: kindFunction, Namespace: n.Namespace, Name: n.Name, AlternateID: n.AlternateID}, nil
	default:
		return Name{}, fmt.Errorf("%w: cannot encode FQSEN %T", codebase.ErrInvariantViolation, c)
	}
}

func decodeName(n Name) (fqsen.Callable, error) {
	switch n.Kind {
	case kindMethod:
		return fqsen.NewMethodName(fqsen.ParseClassName(n.Class), n.Name).WithAlternateID(n.AlternateID), nil
	case kindFunction:
		return fqsen.NewFunctionName(n.Namespace, n.Name).WithAlternateID(n.AlternateID), nil
	default:
		return nil, fmt.Errorf("unknown callable kind %d", n.Kind)
	}
}

func encodeMethod(m *model.Method) (Callable, error) {
	name, err := encodeName(m.FQSEN)
	if err != nil {
		return Callable{}, err
	}
	return Callable{
		Name:        name,
		File:        m.File,
		Line:        m.Line,
		Signature:   m.Signature,
		ReturnType:  m.ReturnType,
		Params:      m.Params,
		Visibility:  m.Visibility,
		Static:      m.Static,
		Abstract:    m.Abstract,
		Conditional: m.Conditional,
	}, nil
}

func decodeMethod(c *Callable) (*model.Method, error) {
	name, err := decodeName(c.Name)
	if err != nil {
		return nil, err
	}
	return &model.Method{
		FQSEN:       name,
		File:        c.File,
		Line:        c.Line,
		Signature:   c.Signature,
		ReturnType:  c.ReturnType,
		Params:      c.Params,
		Visibility:  c.Visibility,
		Static:      c.Static,
		Abstract:    c.Abstract,
		Conditional: c.Conditional,
	}, nil
}

func encodeClass(c *model.ClassInfo) Class {
	out := Class{
		FQSEN: c.FQSEN.String(),
		Kind:  c.Kind,
		File:  c.File,
		Line:  c.Line,
	}
	if !c.Parent.IsZero() {
		out.Parent = c.Parent.String()
	}
	for _, i := range c.Interfaces {
		out.Interfaces = append(out.Interfaces, i.String())
	}
	for _, t := range c.Traits {
		out.Traits = append(out.Traits, t.String())
	}
	return out
}

func decodeClass(c Class) model.ClassInfo {
	out := model.ClassInfo{
		FQSEN: fqsen.ParseClassName(c.FQSEN),
		Kind:  c.Kind,
		File:  c.File,
		Line:  c.Line,
	}
	if c.Parent != "" {
		out.Parent = fqsen.ParseClassName(c.Parent)
	}
	for _, i := range c.Interfaces {
		out.Interfaces = append(out.Interfaces, fqsen.ParseClassName(i))
	}
	for _, t := range c.Traits {
		out.Traits = append(out.Traits, fqsen.ParseClassName(t))
	}
	return out
}

func encodeCallSite(cs model.CallSite) (CallSite, error) {
	out := CallSite{
		Kind:      cs.Kind,
		Namespace: cs.Namespace,
		Name:      cs.Name,
		Qualified: cs.Qualified,
		File:      cs.File,
		Line:      cs.Line,
	}
	if !cs.Class.IsZero() {
		out.Class = cs.Class.String()
	}
	if cs.Caller != nil {
		n, err := encodeName(cs.Caller)
		if err != nil {
			return CallSite{}, fmt.Errorf("call site at line %d: %w", cs.Line, err)
		}
		out.Caller = &n
	}
	return out, nil
}

func decodeCallSite(cs CallSite) (model.CallSite, error) {
	out := model.CallSite{
		Kind:      cs.Kind,
		Namespace: cs.Namespace,
		Name:      cs.Name,
		Qualified: cs.Qualified,
		File:      cs.File,
		Line:      cs.Line,
	}
	if cs.Class != "" {
		out.Class = fqsen.ParseClassName(cs.Class)
	}
	if cs.Caller != nil {
		caller, err := decodeName(*cs.Caller)
		if err != nil {
			return model.CallSite{}, err
		}
		out.Caller = caller
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
