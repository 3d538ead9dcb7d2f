// Package parse extracts declarations and call sites from PHP files using
// tree-sitter.
package parse

import (
	"context"
	"math"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/callindex/internal/fqsen"
	"github.com/phobologic/callindex/internal/lang"
	"github.com/phobologic/callindex/internal/model"
)

type captureKind int

const (
	captureNamespace captureKind = iota + 1
	captureImport
	captureClass
	captureCallable
	captureCall
)

var captureMap = map[string]struct {
	Kind      captureKind
	ClassKind model.ClassKind
	CallKind  model.CallKind
}{
	"namespace":             {Kind: captureNamespace},
	"import":                {Kind: captureImport},
	"definition.class":      {Kind: captureClass, ClassKind: model.Class},
	"definition.interface":  {Kind: captureClass, ClassKind: model.Interface},
	"definition.trait":      {Kind: captureClass, ClassKind: model.Trait},
	"definition.enum":       {Kind: captureClass, ClassKind: model.Enum},
	"definition.method":     {Kind: captureCallable},
	"definition.function":   {Kind: captureCallable},
	"reference.call":        {Kind: captureCall, CallKind: model.FunctionCall},
	"reference.static_call": {Kind: captureCall, CallKind: model.StaticCall},
	"reference.member_call": {Kind: captureCall, CallKind: model.InstanceCall},
}

var classLikeTypes = map[string]struct{}{
	"class_declaration":     {},
	"interface_declaration": {},
	"trait_declaration":     {},
	"enum_declaration":      {},
}

// capture is one query match: the pattern node and its @name node, if any.
type capture struct {
	name      string
	node      *sitter.Node
	nameNode  *sitter.Node
	classKind model.ClassKind
	callKind  model.CallKind
}

// ExtractFile parses a PHP source file and returns its classes, callables
// and call sites. The parser must be created for PHP.
// filePath is used only for positions and should be the repo-relative path.
func ExtractFile(parser *sitter.Parser, query *sitter.Query, source []byte, filePath string) model.FileInfo {
	fi := model.FileInfo{Path: filePath, Language: lang.PHP}
	if len(source) == 0 {
		return fi
	}

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return fi
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	byKind := make(map[captureKind][]capture)
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)

		var c capture
		var kind captureKind
		for _, mc := range match.Captures {
			cname := query.CaptureNameForId(mc.Index)
			if cname == "name" {
				c.nameNode = mc.Node
			} else if cm, ok := captureMap[cname]; ok {
				c.name = cname
				c.node = mc.Node
				c.classKind = cm.ClassKind
				c.callKind = cm.CallKind
				kind = cm.Kind
			}
		}
		if c.node == nil {
			continue
		}
		if kind != captureNamespace && kind != captureImport && c.nameNode == nil {
			continue
		}
		byKind[kind] = append(byKind[kind], c)
	}
	for _, cs := range byKind {
		sort.SliceStable(cs, func(i, j int) bool {
			return cs[i].node.StartByte() < cs[j].node.StartByte()
		})
	}

	s := &scanner{
		file:      filePath,
		source:    source,
		classes:   make(map[uint32]int),
		callables: make(map[uint32]fqsen.Callable),
		seen:      make(map[string]int),
	}
	s.buildScopes(byKind[captureNamespace], byKind[captureImport])
	for _, c := range byKind[captureClass] {
		s.addClass(c)
	}
	for _, c := range byKind[captureCallable] {
		s.addCallable(c)
	}
	for _, c := range byKind[captureCall] {
		s.addCall(c)
	}

	fi.Classes = s.info.Classes
	fi.Methods = s.info.Methods
	fi.CallSites = s.info.CallSites
	return fi
}

// scope is a namespace region of a file with its use imports.
type scope struct {
	ns         string
	start, end uint32
	classes    map[string]string // lower alias -> qualified name
	functions  map[string]string // lower alias -> qualified name
}

type scanner struct {
	file   string
	source []byte
	scopes []*scope
	info   model.FileInfo

	classes   map[uint32]int            // class node start -> index in info.Classes
	callables map[uint32]fqsen.Callable // callable node start -> FQSEN
	seen      map[string]int            // lower FQSEN -> declarations so far
}

func (s *scanner) buildScopes(namespaces, imports []capture) {
	global := &scope{ns: fqsen.GlobalNamespace, end: math.MaxUint32}
	s.scopes = []*scope{global}
	for i, c := range namespaces {
		sc := &scope{ns: fqsen.GlobalNamespace, start: c.node.StartByte()}
		if name := c.node.ChildByFieldName("name"); name != nil {
			sc.ns = fqsen.NormalizeNamespace(lang.NodeText(name, s.source))
		}
		switch {
		case c.node.ChildByFieldName("body") != nil:
			sc.end = c.node.EndByte()
		case i+1 < len(namespaces):
			sc.end = namespaces[i+1].node.StartByte()
		default:
			sc.end = math.MaxUint32
		}
		s.scopes = append(s.scopes, sc)
	}
	for _, c := range imports {
		sc := s.scopeAt(c.node.StartByte())
		for _, imp := range lang.ParseUse(lang.NodeText(c.node, s.source)) {
			key := strings.ToLower(imp.Alias)
			switch imp.Kind {
			case lang.ImportClass:
				if sc.classes == nil {
					sc.classes = make(map[string]string)
				}
				sc.classes[key] = imp.Name
			case lang.ImportFunction:
				if sc.functions == nil {
					sc.functions = make(map[string]string)
				}
				sc.functions[key] = imp.Name
			}
		}
	}
}

// scopeAt returns the innermost namespace region containing offset.
func (s *scanner) scopeAt(offset uint32) *scope {
	best := s.scopes[0]
	for _, sc := range s.scopes[1:] {
		if offset >= sc.start && offset < sc.end && sc.start >= best.start {
			best = sc
		}
	}
	return best
}

// resolveName qualifies a class-like name as written in source against the
// namespace and imports of sc.
func (s *scanner) resolveName(sc *scope, name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, fqsen.Separator) {
		return strings.TrimPrefix(name, fqsen.Separator)
	}
	if rest, ok := cutPrefixFold(name, `namespace\`); ok {
		return strings.TrimPrefix(fqsen.Join(sc.ns, rest), fqsen.Separator)
	}
	first, rest, qualified := strings.Cut(name, fqsen.Separator)
	if imported, ok := sc.classes[strings.ToLower(first)]; ok {
		if qualified {
			return imported + fqsen.Separator + rest
		}
		return imported
	}
	return strings.TrimPrefix(fqsen.Join(sc.ns, name), fqsen.Separator)
}

func (s *scanner) resolveClass(sc *scope, name string) fqsen.ClassName {
	return fqsen.ParseClassName(s.resolveName(sc, name))
}

func (s *scanner) addClass(c capture) {
	sc := s.scopeAt(c.node.StartByte())
	info := model.ClassInfo{
		FQSEN: fqsen.NewClassName(sc.ns, lang.NodeText(c.nameNode, s.source)),
		Kind:  c.classKind,
		File:  s.file,
		Line:  int(c.nameNode.StartPoint().Row) + 1,
	}

	for i := 0; i < int(c.node.NamedChildCount()); i++ {
		child := c.node.NamedChild(i)
		switch child.Type() {
		case "base_clause":
			names := lang.ClauseNames(child, s.source)
			if c.classKind == model.Interface {
				for _, n := range names {
					info.Interfaces = append(info.Interfaces, s.resolveClass(sc, n))
				}
			} else if len(names) > 0 {
				info.Parent = s.resolveClass(sc, names[0])
			}
		case "class_interface_clause":
			for _, n := range lang.ClauseNames(child, s.source) {
				info.Interfaces = append(info.Interfaces, s.resolveClass(sc, n))
			}
		}
	}

	if body := c.node.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			child := body.NamedChild(i)
			if child.Type() != "use_declaration" {
				continue
			}
			for _, n := range lang.ClauseNames(child, s.source) {
				info.Traits = append(info.Traits, s.resolveClass(sc, n))
			}
		}
	}

	s.classes[c.node.StartByte()] = len(s.info.Classes)
	s.info.Classes = append(s.info.Classes, info)
}

func (s *scanner) addCallable(c capture) {
	name := lang.NodeText(c.nameNode, s.source)
	m := &model.Method{
		File:       s.file,
		Line:       int(c.nameNode.StartPoint().Row) + 1,
		Signature:  lang.ExtractSignature(c.node, s.source),
		ReturnType: lang.ReturnType(c.node, s.source),
		Params:     lang.ExtractParams(c.node, s.source),
	}

	if c.node.Type() == "method_declaration" {
		class := s.enclosingClass(c.node)
		if class == nil {
			// Method of an anonymous class.
			return
		}
		mn := fqsen.NewMethodName(class.FQSEN, name)
		mn = mn.WithAlternateID(s.nextAlternateID(mn.String()))
		m.FQSEN = mn
		m.Visibility, m.Static, m.Abstract = lang.ExtractModifiers(c.node, s.source)
	} else {
		sc := s.scopeAt(c.node.StartByte())
		fn := fqsen.NewFunctionName(sc.ns, name)
		fn = fn.WithAlternateID(s.nextAlternateID(fn.String()))
		m.FQSEN = fn
		m.Visibility = model.Public
		m.Conditional = !lang.IsTopLevel(c.node)
	}

	s.callables[c.node.StartByte()] = m.FQSEN
	s.info.Methods = append(s.info.Methods, m)
}

// nextAlternateID numbers repeated declarations of one name in this file:
// the first keeps the primary id, later ones (conditional declarations)
// count up from 1.
func (s *scanner) nextAlternateID(primary string) int {
	key := strings.ToLower(primary)
	id := s.seen[key]
	s.seen[key] = id + 1
	return id
}

func (s *scanner) addCall(c capture) {
	site := model.CallSite{
		Kind: c.callKind,
		Name: lang.NodeText(c.nameNode, s.source),
		File: s.file,
		Line: int(c.nameNode.StartPoint().Row) + 1,
	}
	site.Caller = s.enclosingCallable(c.node)

	sc := s.scopeAt(c.node.StartByte())
	switch c.callKind {
	case model.FunctionCall:
		s.resolveFunctionCall(sc, c.nameNode, &site)
	case model.StaticCall:
		class, ok := s.resolveStaticScope(sc, c.node)
		if !ok {
			return
		}
		site.Class = class
	case model.InstanceCall:
		obj := c.node.ChildByFieldName("object")
		if obj == nil || lang.NodeText(obj, s.source) != "$this" {
			return
		}
		class := s.enclosingClass(c.node)
		if class == nil {
			return
		}
		site.Class = class.FQSEN
	}
	s.info.CallSites = append(s.info.CallSites, site)
}

func (s *scanner) resolveFunctionCall(sc *scope, nameNode *sitter.Node, site *model.CallSite) {
	written := lang.NodeText(nameNode, s.source)
	site.Namespace = sc.ns

	if nameNode.Type() == "name" {
		if imported, ok := sc.functions[strings.ToLower(written)]; ok {
			site.Qualified = true
			site.Namespace, site.Name = fqsen.Split(imported)
		}
		return
	}

	site.Qualified = true
	site.Namespace, site.Name = fqsen.Split(s.resolveName(sc, written))
}

// resolveStaticScope resolves the class named by the scope of a static call:
// self, static, parent or a class name. Calls on variables are not resolved.
func (s *scanner) resolveStaticScope(sc *scope, call *sitter.Node) (fqsen.ClassName, bool) {
	scopeNode := call.ChildByFieldName("scope")
	if scopeNode == nil {
		return fqsen.ClassName{}, false
	}
	text := lang.NodeText(scopeNode, s.source)
	switch strings.ToLower(text) {
	case "self", "static":
		if class := s.enclosingClass(call); class != nil {
			return class.FQSEN, true
		}
		return fqsen.ClassName{}, false
	case "parent":
		if class := s.enclosingClass(call); class != nil && !class.Parent.IsZero() {
			return class.Parent, true
		}
		return fqsen.ClassName{}, false
	}
	switch scopeNode.Type() {
	case "name", "qualified_name":
		return s.resolveClass(sc, text), true
	}
	return fqsen.ClassName{}, false
}

// enclosingClass returns the named class-like declaration containing node,
// or nil when node is outside any class or inside an anonymous class.
func (s *scanner) enclosingClass(node *sitter.Node) *model.ClassInfo {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		switch cur.Type() {
		case "anonymous_class", "object_creation_expression":
			if lang.ChildOfType(cur, "declaration_list") != nil {
				return nil
			}
		}
		if _, ok := classLikeTypes[cur.Type()]; ok {
			idx, ok := s.classes[cur.StartByte()]
			if !ok {
				return nil
			}
			return &s.info.Classes[idx]
		}
	}
	return nil
}

// enclosingCallable returns the FQSEN of the method or function whose body
// contains node. Closures are attributed to the callable that defines them.
func (s *scanner) enclosingCallable(node *sitter.Node) fqsen.Callable {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		switch cur.Type() {
		case "method_declaration", "function_definition":
			return s.callables[cur.StartByte()]
		}
	}
	return nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
