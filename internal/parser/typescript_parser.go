package parser

import (
	"context"

	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TypeScriptParser implements SourceParser for TypeScript without JSX.
// Angle-bracket type assertions (<T>x) only parse with this grammar.
type TypeScriptParser struct{}

// NewTypeScriptParser creates a new TypeScript parser
func NewTypeScriptParser() *TypeScriptParser {
	return &TypeScriptParser{}
}

// Language returns the language name
func (p *TypeScriptParser) Language() string {
	return string(LanguageTypeScript)
}

// Parse parses TypeScript source code into a syntax tree
func (p *TypeScriptParser) Parse(ctx context.Context, filePath string, code []byte) (*ParseResult, error) {
	return parseSource(ctx, typescript.GetLanguage(), p.Language(), filePath, code)
}

// TSXParser implements SourceParser for TypeScript with JSX
type TSXParser struct{}

// NewTSXParser creates a new TSX parser
func NewTSXParser() *TSXParser {
	return &TSXParser{}
}

// Language returns the language name
func (p *TSXParser) Language() string {
	return string(LanguageTSX)
}

// Parse parses TSX source code into a syntax tree
func (p *TSXParser) Parse(ctx context.Context, filePath string, code []byte) (*ParseResult, error) {
	return parseSource(ctx, tsx.GetLanguage(), p.Language(), filePath, code)
}
