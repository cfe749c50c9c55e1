package parser

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// parseSource runs a fresh tree-sitter parser for a single file. A new parser
// is created per call so one SourceParser can serve many goroutines.
func parseSource(ctx context.Context, language *sitter.Language, langName, filePath string, code []byte) (*ParseResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(language)

	tree, err := parser.ParseCtx(ctx, nil, code)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s code in %s: %w", langName, filePath, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("failed to parse %s code in %s", langName, filePath)
	}

	return &ParseResult{
		Tree:     tree,
		Source:   code,
		Language: langName,
		FilePath: filePath,
	}, nil
}
