package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ParserFactory creates language-specific parsers
type ParserFactory struct {
	parsers map[Language]SourceParser
}

// NewParserFactory creates a new parser factory with all supported languages
func NewParserFactory() *ParserFactory {
	return &ParserFactory{
		parsers: map[Language]SourceParser{
			LanguageJavaScript: NewJavaScriptParser(),
			LanguageTypeScript: NewTypeScriptParser(),
			LanguageTSX:        NewTSXParser(),
		},
	}
}

// GetParser returns a parser for the given language
func (f *ParserFactory) GetParser(lang Language) (SourceParser, error) {
	parser, exists := f.parsers[lang]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	return parser, nil
}

// GetParserByFilePath returns a parser based on file extension
func (f *ParserFactory) GetParserByFilePath(filePath string) (SourceParser, error) {
	lang := DetectLanguage(filePath)
	if lang == "" {
		return nil, fmt.Errorf("%w: unsupported file type: %s", ErrUnsupportedLanguage, filePath)
	}
	return f.GetParser(lang)
}

// DetectLanguage detects the source language based on file extension.
// Plain .js files are parsed with the JSX-aware JavaScript grammar.
func DetectLanguage(filePath string) Language {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".js", ".jsx", ".mjs", ".cjs":
		return LanguageJavaScript
	case ".ts", ".mts", ".cts":
		return LanguageTypeScript
	case ".tsx":
		return LanguageTSX
	default:
		return ""
	}
}

// SupportedExtensions returns all supported file extensions
func SupportedExtensions() []string {
	return []string{
		".js", ".jsx", ".mjs", ".cjs",
		".ts", ".mts", ".cts",
		".tsx",
	}
}

// IsSupportedFile checks if a file is supported based on its extension
func IsSupportedFile(filePath string) bool {
	return DetectLanguage(filePath) != ""
}
