package extractor

import sitter "github.com/smacker/go-tree-sitter"

// spanKey identifies a node within one tree. Two distinct nodes of the same
// kind never share a byte span.
type spanKey struct {
	start uint32
	end   uint32
	kind  string
}

func keyOf(n *sitter.Node) spanKey {
	return spanKey{start: n.StartByte(), end: n.EndByte(), kind: n.Type()}
}

// namedChildren returns the named children of n, leaving out comments, which
// tree-sitter attaches anywhere as extras.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// firstNamed returns the first non-comment named child of n
func firstNamed(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child != nil && child.Type() != "comment" {
			return child
		}
	}
	return nil
}

// hasToken reports whether n has a direct anonymous child spelled tok,
// e.g. the "type" keyword of a type-only import.
func hasToken(n *sitter.Node, tok string) bool {
	if n == nil {
		return false
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child != nil && !child.IsNamed() && child.Type() == tok {
			return true
		}
	}
	return false
}

// callArguments returns the positional arguments of a plain call. Tagged
// templates and optional calls (t?.()) are not plain calls and yield ok=false.
func callArguments(call *sitter.Node) ([]*sitter.Node, bool) {
	if call.ChildByFieldName("optional_chain") != nil {
		return nil, false
	}
	args := call.ChildByFieldName("arguments")
	if args == nil || args.Type() != "arguments" {
		return nil, false
	}
	return namedChildren(args), true
}

// identifierCallee returns the callee of call when it is a bare identifier
func identifierCallee(call *sitter.Node) *sitter.Node {
	callee := call.ChildByFieldName("function")
	if callee == nil || callee.Type() != "identifier" {
		return nil
	}
	return callee
}

// awaitedCallee returns the identifier of a call shaped
// `(await f)<T>(...)`, which is how `await f<T>(...)` parses in TypeScript
func awaitedCallee(call *sitter.Node) *sitter.Node {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "await_expression" {
		return nil
	}
	inner := firstNamed(fn)
	if inner == nil || inner.Type() != "identifier" {
		return nil
	}
	return inner
}
