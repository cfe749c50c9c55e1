package parser

import (
	"context"

	"github.com/smacker/go-tree-sitter/javascript"
)

// JavaScriptParser implements SourceParser for JavaScript, including JSX
type JavaScriptParser struct{}

// NewJavaScriptParser creates a new JavaScript parser
func NewJavaScriptParser() *JavaScriptParser {
	return &JavaScriptParser{}
}

// Language returns the language name
func (p *JavaScriptParser) Language() string {
	return string(LanguageJavaScript)
}

// Parse parses JavaScript source code into a syntax tree
func (p *JavaScriptParser) Parse(ctx context.Context, filePath string, code []byte) (*ParseResult, error) {
	return parseSource(ctx, javascript.GetLanguage(), p.Language(), filePath, code)
}
