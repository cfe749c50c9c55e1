package parser

import (
	"context"
	"errors"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrUnsupportedLanguage is returned when no parser handles a file or language.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ParseResult holds a parsed syntax tree together with the source it was built from
type ParseResult struct {
	Tree     *sitter.Tree // Parsed tree; owned by the result
	Source   []byte       // Source bytes the tree's offsets refer to
	Language string       // Language the source was parsed as
	FilePath string       // Path the source was read from (may be synthetic)
}

// RootNode returns the root of the parsed tree, or nil for an empty result
func (r *ParseResult) RootNode() *sitter.Node {
	if r == nil || r.Tree == nil {
		return nil
	}
	return r.Tree.RootNode()
}

// Close releases the underlying tree-sitter tree
func (r *ParseResult) Close() {
	if r != nil && r.Tree != nil {
		r.Tree.Close()
	}
}

// SourceParser defines the interface for language-specific parsers
type SourceParser interface {
	// Parse builds a syntax tree for code. Syntax errors in the source do not
	// fail the parse; they show up as ERROR nodes in the tree.
	Parse(ctx context.Context, filePath string, code []byte) (*ParseResult, error)

	// Language returns the language name
	Language() string
}

// Language represents supported source languages
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageTSX        Language = "tsx"
)
