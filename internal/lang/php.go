package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"

	"github.com/phobologic/callindex/internal/model"
)

// PHP is the registry name of the PHP language.
const PHP = "php"

func init() {
	Languages[PHP] = &Language{
		Name:       PHP,
		Extensions: []string{".php", ".phtml", ".inc"},
		lang:       php.GetLanguage(),
	}
}

// ImportKind distinguishes `use`, `use function` and `use const`.
type ImportKind string

const (
	ImportClass    ImportKind = "class"
	ImportFunction ImportKind = "function"
	ImportConst    ImportKind = "const"
)

// Import is one clause of a namespace use declaration.
type Import struct {
	Kind ImportKind
	// Name is the imported name without a leading separator.
	Name string
	// Alias is the local name, defaulting to the last segment of Name.
	Alias string
}

// ParseUse parses the text of a namespace use declaration such as
// `use A\B, C\D as E;`, `use function A\f;` or `use A\{B, C as D};`.
func ParseUse(text string) []Import {
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, ";")
	text = strings.TrimSpace(strings.TrimPrefix(text, "use"))

	kind := ImportClass
	text, kind = stripImportKind(text, kind)

	var prefix string
	if open := strings.Index(text, "{"); open >= 0 {
		prefix = strings.Trim(strings.TrimSpace(text[:open]), `\`)
		text = strings.TrimSuffix(strings.TrimSpace(text[open+1:]), "}")
	}

	var out []Import
	for _, clause := range strings.Split(text, ",") {
		clause = CollapseWhitespace(clause)
		if clause == "" {
			continue
		}
		k := kind
		clause, k = stripImportKind(clause, k)

		name, alias := clause, ""
		if fields := strings.Fields(clause); len(fields) == 3 && strings.EqualFold(fields[1], "as") {
			name, alias = fields[0], fields[2]
		}
		name = strings.Trim(name, `\`)
		if prefix != "" {
			name = prefix + `\` + name
		}
		if alias == "" {
			alias = name
			if i := strings.LastIndex(name, `\`); i >= 0 {
				alias = name[i+1:]
			}
		}
		out = append(out, Import{Kind: k, Name: name, Alias: alias})
	}
	return out
}

func stripImportKind(text string, kind ImportKind) (string, ImportKind) {
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "function "):
		return strings.TrimSpace(text[len("function "):]), ImportFunction
	case strings.HasPrefix(lower, "const "):
		return strings.TrimSpace(text[len("const "):]), ImportConst
	}
	return text, kind
}

// ExtractSignature returns `name(params): type` for a method_declaration or
// function_definition node.
func ExtractSignature(node *sitter.Node, source []byte) string {
	var sig string
	if name := node.ChildByFieldName("name"); name != nil {
		sig = NodeText(name, source)
	}
	if params := node.ChildByFieldName("parameters"); params != nil {
		sig += CollapseWhitespace(NodeText(params, source))
	}
	if rt := ReturnType(node, source); rt != "" {
		sig += ": " + rt
	}
	return sig
}

// ReturnType returns the declared return type of a callable node, or "".
func ReturnType(node *sitter.Node, source []byte) string {
	rt := node.ChildByFieldName("return_type")
	if rt == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(CollapseWhitespace(NodeText(rt, source)), ":"))
}

// ExtractParams returns the formal parameters of a callable node.
func ExtractParams(node *sitter.Node, source []byte) []model.Param {
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return nil
	}
	var out []model.Param
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "simple_parameter", "variadic_parameter", "property_promotion_parameter":
		default:
			continue
		}
		var param model.Param
		if name := p.ChildByFieldName("name"); name != nil {
			param.Name = NodeText(name, source)
		}
		if typ := p.ChildByFieldName("type"); typ != nil {
			param.Type = CollapseWhitespace(NodeText(typ, source))
		}
		param.Variadic = p.Type() == "variadic_parameter"
		param.Optional = param.Variadic || p.ChildByFieldName("default_value") != nil
		out = append(out, param)
	}
	return out
}

// ExtractModifiers returns the visibility and static/abstract flags of a
// method_declaration node. Methods without a visibility keyword are public.
func ExtractModifiers(node *sitter.Node, source []byte) (vis model.Visibility, static, abstract bool) {
	vis = model.Public
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "visibility_modifier":
			vis = model.Visibility(strings.ToLower(NodeText(child, source)))
		case "static_modifier":
			static = true
		case "abstract_modifier":
			abstract = true
		}
	}
	return vis, static, abstract
}

// ClauseNames returns the class names listed in a base_clause or
// class_interface_clause, or in a trait use_declaration.
func ClauseNames(node *sitter.Node, source []byte) []string {
	var out []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "name", "qualified_name":
			out = append(out, NodeText(child, source))
		}
	}
	return out
}

// ChildOfType returns the first direct child of node with the given type.
func ChildOfType(node *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child.Type() == typ {
			return child
		}
	}
	return nil
}

// IsTopLevel reports whether a declaration node sits directly in the file
// or in a namespace body, as opposed to inside a conditional or function.
func IsTopLevel(node *sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return true
	}
	switch parent.Type() {
	case "program":
		return true
	case "compound_statement":
		gp := parent.Parent()
		return gp != nil && gp.Type() == "namespace_definition"
	}
	return false
}
