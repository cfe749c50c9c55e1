// Package extractor finds the translation keys a JavaScript or TypeScript
// module passes to next-globe-gen translators.
//
// A translator is a variable initialized by calling, optionally awaited, one
// of the factories imported from "next-globe-gen":
//
//	import { useTranslations } from "next-globe-gen";
//
//	const t = useTranslations("common");
//	t("greeting", { _description: "Shown on the landing page" });
//
// yields the key "common.greeting" with its description. Bindings are tracked
// by lexical scope, not by name, so a shadowing declaration in another scope
// never picks up a translator's namespace. Keys and descriptions that are not
// plain string literals (or templates without substitutions) are skipped.
package extractor

import (
	"globekeys/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
)

// ModuleSpecifier is the import source translator factories must come from.
const ModuleSpecifier = "next-globe-gen"

// DescriptionProperty is the option key holding a human-written description.
const DescriptionProperty = "_description"

// factoryNamespaceArg maps each translator factory to the position of its
// namespace argument.
var factoryNamespaceArg = map[string]int{
	"useTranslations":  0,
	"getTranslations":  0,
	"createTranslator": 1,
}

// FactoryNames returns the names of the recognized translator factories
func FactoryNames() []string {
	return []string{"useTranslations", "getTranslations", "createTranslator"}
}

// ExtractedKey is one translator call with a static key
type ExtractedKey struct {
	Key         string  `json:"key"`
	Description *string `json:"description,omitempty"`
}

// Extractor holds the state of one extraction over one syntax tree. It is not
// safe for concurrent use; run one Extractor per module.
type Extractor struct {
	source []byte
	scopes *scopeTree

	factories  map[BindingID]int
	namespaces map[BindingID]*string
	keys       []ExtractedKey
}

// Extract returns the keys referenced by the module rooted at root. The
// result is in traversal order and keeps duplicates.
func Extract(root *sitter.Node, source []byte) []ExtractedKey {
	return New(source).Run(root)
}

// ExtractResult runs Extract over a parsed module
func ExtractResult(res *parser.ParseResult) []ExtractedKey {
	if res == nil {
		return nil
	}
	return Extract(res.RootNode(), res.Source)
}

// New creates an Extractor for source
func New(source []byte) *Extractor {
	return &Extractor{
		source:     source,
		factories:  make(map[BindingID]int),
		namespaces: make(map[BindingID]*string),
	}
}

// Run walks the tree once and returns the collected keys. Calling Run again
// starts over with empty tables.
func (e *Extractor) Run(root *sitter.Node) []ExtractedKey {
	e.factories = make(map[BindingID]int)
	e.namespaces = make(map[BindingID]*string)
	e.keys = nil
	if root == nil {
		return nil
	}

	e.scopes = buildScopes(root, e.source)
	e.processModule(root, e.scopes.root)
	e.visit(root, e.scopes.root)
	return e.keys
}

func (e *Extractor) visit(n *sitter.Node, cur *scope) {
	switch n.Type() {
	case "variable_declarator":
		e.processDeclarator(n, cur)
	case "call_expression":
		e.processCall(n, cur)
	}

	inner := e.scopes.enter(n, cur)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child != nil {
			e.visit(child, inner)
		}
	}
}

// processModule records translator factories imported at the top level
func (e *Extractor) processModule(root *sitter.Node, cur *scope) {
	for _, item := range namedChildren(root) {
		if item.Type() == "import_statement" {
			e.processImport(item, cur)
		}
	}
}

func (e *Extractor) processImport(stmt *sitter.Node, cur *scope) {
	source, ok := staticString(stmt.ChildByFieldName("source"), e.source)
	if !ok || source != ModuleSpecifier {
		return
	}
	// import type { ... } brings in no callable binding.
	if hasToken(stmt, "type") {
		return
	}
	for _, clause := range namedChildren(stmt) {
		if clause.Type() != "import_clause" {
			continue
		}
		for _, part := range namedChildren(clause) {
			if part.Type() != "named_imports" {
				continue
			}
			for _, spec := range namedChildren(part) {
				e.processImportSpecifier(spec, cur)
			}
		}
	}
}

func (e *Extractor) processImportSpecifier(spec *sitter.Node, cur *scope) {
	if spec.Type() != "import_specifier" || hasToken(spec, "type") {
		return
	}
	name := spec.ChildByFieldName("name")
	if name == nil {
		return
	}
	imported := name.Content(e.source)
	if name.Type() == "string" {
		var ok bool
		if imported, ok = staticString(name, e.source); !ok {
			return
		}
	}
	argIndex, ok := factoryNamespaceArg[imported]
	if !ok {
		return
	}
	local := importLocalName(spec)
	if local == nil {
		return
	}
	e.factories[cur.resolve(local.Content(e.source))] = argIndex
}

// processDeclarator tracks `const t = factory(...)` and `const t = await factory(...)`.
// TypeScript parses `await factory<N>(...)` as a call whose function is the
// awaited identifier, so that shape counts as awaited too.
func (e *Extractor) processDeclarator(decl *sitter.Node, cur *scope) {
	name := decl.ChildByFieldName("name")
	if name == nil || name.Type() != "identifier" {
		return
	}
	init := decl.ChildByFieldName("value")
	if init == nil {
		return
	}
	if init.Type() == "await_expression" {
		init = firstNamed(init)
		if init == nil {
			return
		}
	}
	if init.Type() != "call_expression" {
		return
	}
	callee := identifierCallee(init)
	if callee == nil {
		callee = awaitedCallee(init)
	}
	if callee == nil {
		return
	}
	argIndex, ok := e.factories[cur.resolve(callee.Content(e.source))]
	if !ok {
		return
	}
	args, ok := callArguments(init)
	if !ok {
		return
	}

	var namespace *string
	if argIndex < len(args) {
		if ns, ok := staticString(args[argIndex], e.source); ok {
			namespace = &ns
		}
	}
	e.namespaces[cur.resolve(name.Content(e.source))] = namespace
}

// processCall records the key of a call to a tracked translator
func (e *Extractor) processCall(call *sitter.Node, cur *scope) {
	callee := identifierCallee(call)
	if callee == nil {
		return
	}
	namespace, ok := e.namespaces[cur.resolve(callee.Content(e.source))]
	if !ok {
		return
	}
	args, ok := callArguments(call)
	if !ok || len(args) == 0 {
		return
	}
	suffix, ok := staticString(args[0], e.source)
	if !ok {
		return
	}

	key := suffix
	if namespace != nil && *namespace != "" {
		key = *namespace + "." + suffix
	}

	var description *string
	if len(args) > 1 {
		description = e.staticDescription(args[1])
	}
	e.keys = append(e.keys, ExtractedKey{Key: key, Description: description})
}

// staticDescription reads the _description option of an object literal. The
// first property with that key decides the result.
func (e *Extractor) staticDescription(options *sitter.Node) *string {
	if options.Type() != "object" {
		return nil
	}
	for _, prop := range namedChildren(options) {
		if prop.Type() != "pair" {
			continue
		}
		if !e.isDescriptionKey(prop.ChildByFieldName("key")) {
			continue
		}
		if text, ok := staticString(prop.ChildByFieldName("value"), e.source); ok {
			return &text
		}
		return nil
	}
	return nil
}

func (e *Extractor) isDescriptionKey(key *sitter.Node) bool {
	if key == nil {
		return false
	}
	switch key.Type() {
	case "property_identifier":
		return key.Content(e.source) == DescriptionProperty
	case "string":
		text, ok := staticString(key, e.source)
		return ok && text == DescriptionProperty
	}
	return false
}
