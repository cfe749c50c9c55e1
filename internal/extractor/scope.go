package extractor

import sitter "github.com/smacker/go-tree-sitter"

// BindingID identifies one declaration of a name: the lexical scope that
// declares it plus its spelling. Scope 0 stands for names that resolve to no
// declaration in the module (globals).
type BindingID struct {
	Scope int
	Name  string
}

type scope struct {
	id       int
	parent   *scope
	function bool // function or module scope; target of var hoisting
	names    map[string]struct{}
}

func (s *scope) declare(name string) {
	if name == "" {
		return
	}
	s.names[name] = struct{}{}
}

// functionScope returns the nearest enclosing scope that receives var declarations
func (s *scope) functionScope() *scope {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.function || cur.parent == nil {
			return cur
		}
	}
	return s
}

// resolve finds the scope declaring name, walking outwards from s
func (s *scope) resolve(name string) BindingID {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.names[name]; ok {
			return BindingID{Scope: cur.id, Name: name}
		}
	}
	return BindingID{Name: name}
}

// Node kinds that open a scope of their own.
var functionScopeKinds = map[string]bool{
	"function_declaration":           true,
	"generator_function_declaration": true,
	"function":                       true,
	"function_expression":            true,
	"generator_function":             true,
	"arrow_function":                 true,
	"method_definition":              true,
	"function_signature":             true,
	"method_signature":               true,
	"abstract_method_signature":      true,
	"call_signature":                 true,
	"construct_signature":            true,
	"function_type":                  true,
	"constructor_type":               true,
}

var blockScopeKinds = map[string]bool{
	"statement_block":    true,
	"for_statement":      true,
	"for_in_statement":   true,
	"catch_clause":       true,
	"switch_body":        true,
	"class":              true,
	"class_static_block": true,
}

func opensScope(kind string) bool {
	return functionScopeKinds[kind] || blockScopeKinds[kind]
}

// scopeTree is the result of the declaration pre-pass: every scope-opening
// node mapped to the scope it opens, with all declarations already hoisted
// into their scopes.
type scopeTree struct {
	source []byte
	root   *scope
	scopes map[spanKey]*scope
	nextID int
}

func buildScopes(root *sitter.Node, source []byte) *scopeTree {
	st := &scopeTree{
		source: source,
		scopes: make(map[spanKey]*scope),
	}
	st.root = st.newScope(nil, true)
	if root != nil {
		st.scopes[keyOf(root)] = st.root
		st.declareIn(root, st.root)
	}
	return st
}

func (st *scopeTree) newScope(parent *scope, function bool) *scope {
	st.nextID++
	return &scope{
		id:       st.nextID,
		parent:   parent,
		function: function,
		names:    make(map[string]struct{}),
	}
}

// enter returns the scope opened by n, or cur when n opens none
func (st *scopeTree) enter(n *sitter.Node, cur *scope) *scope {
	if !opensScope(n.Type()) {
		return cur
	}
	if s, ok := st.scopes[keyOf(n)]; ok {
		return s
	}
	return cur
}

func (st *scopeTree) text(n *sitter.Node) string {
	return n.Content(st.source)
}

// declareIn walks the children of n, which live in cur.
func (st *scopeTree) declareIn(n *sitter.Node, cur *scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child != nil {
			st.declareNode(child, cur)
		}
	}
}

func (st *scopeTree) declareNode(n *sitter.Node, cur *scope) {
	kind := n.Type()

	// Declarations that bind into the enclosing scope.
	switch kind {
	case "function_declaration", "generator_function_declaration",
		"class_declaration", "abstract_class_declaration", "enum_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			cur.declare(st.text(name))
		}
	case "lexical_declaration":
		st.declareDeclarators(n, cur)
	case "variable_declaration":
		st.declareDeclarators(n, cur.functionScope())
	case "import_statement":
		st.declareImports(n, cur)
	}

	if !opensScope(kind) {
		st.declareIn(n, cur)
		return
	}

	inner := st.newScope(cur, functionScopeKinds[kind])
	st.scopes[keyOf(n)] = inner

	switch kind {
	case "function", "function_expression", "generator_function", "class":
		// A named function or class expression sees its own name.
		if name := n.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
			inner.declare(st.text(name))
		}
	case "catch_clause":
		st.bindPattern(n.ChildByFieldName("parameter"), inner)
	case "for_in_statement":
		if kindNode := n.ChildByFieldName("kind"); kindNode != nil {
			target := inner
			if kindNode.Type() == "var" {
				target = cur.functionScope()
			}
			st.bindPattern(n.ChildByFieldName("left"), target)
		}
	}

	if functionScopeKinds[kind] {
		if param := n.ChildByFieldName("parameter"); param != nil {
			st.bindPattern(param, inner)
		}
		if params := n.ChildByFieldName("parameters"); params != nil {
			for _, p := range namedChildren(params) {
				st.bindPattern(p, inner)
			}
		}
	}

	st.declareIn(n, inner)
}

func (st *scopeTree) declareDeclarators(decl *sitter.Node, target *scope) {
	for _, child := range namedChildren(decl) {
		if child.Type() == "variable_declarator" {
			st.bindPattern(child.ChildByFieldName("name"), target)
		}
	}
}

func (st *scopeTree) declareImports(stmt *sitter.Node, target *scope) {
	for _, child := range namedChildren(stmt) {
		switch child.Type() {
		case "import_clause":
			for _, part := range namedChildren(child) {
				switch part.Type() {
				case "identifier":
					target.declare(st.text(part))
				case "namespace_import":
					if id := firstNamed(part); id != nil && id.Type() == "identifier" {
						target.declare(st.text(id))
					}
				case "named_imports":
					for _, spec := range namedChildren(part) {
						if local := importLocalName(spec); local != nil {
							target.declare(st.text(local))
						}
					}
				}
			}
		case "import_require_clause":
			if id := firstNamed(child); id != nil && id.Type() == "identifier" {
				target.declare(st.text(id))
			}
		}
	}
}

// importLocalName returns the identifier an import specifier binds locally
func importLocalName(spec *sitter.Node) *sitter.Node {
	if spec == nil || spec.Type() != "import_specifier" {
		return nil
	}
	if alias := spec.ChildByFieldName("alias"); alias != nil {
		return alias
	}
	name := spec.ChildByFieldName("name")
	if name == nil || name.Type() != "identifier" {
		return nil
	}
	return name
}

// bindPattern declares every identifier bound by a binding pattern
func (st *scopeTree) bindPattern(p *sitter.Node, target *scope) {
	if p == nil {
		return
	}
	switch p.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		target.declare(st.text(p))
	case "object_pattern", "array_pattern":
		for _, child := range namedChildren(p) {
			st.bindPattern(child, target)
		}
	case "pair_pattern":
		st.bindPattern(p.ChildByFieldName("value"), target)
	case "assignment_pattern", "object_assignment_pattern":
		st.bindPattern(p.ChildByFieldName("left"), target)
	case "rest_pattern":
		st.bindPattern(firstNamed(p), target)
	case "required_parameter", "optional_parameter":
		st.bindPattern(p.ChildByFieldName("pattern"), target)
	}
}
