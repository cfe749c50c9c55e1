package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"globekeys/internal/analyzer"
	"globekeys/internal/config"
	"globekeys/internal/extractor"
	"globekeys/internal/indexer"
	"globekeys/internal/messages"
	"globekeys/internal/models"
	"io"
	"os"
	"strings"
)

const protocolVersion = "2024-11-05"

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DuplicateFinder is the vector side of the server, connected on first use
type DuplicateFinder interface {
	IndexMessages(ctx context.Context, collection, locale string, entries []models.MessageEntry) (analyzer.IndexStats, error)
	FindDuplicates(ctx context.Context, collection string, threshold float64, confirm bool) ([]models.DuplicateGroup, error)
	FindSimilar(ctx context.Context, collection, text string, limit uint64) ([]models.SimilarMessage, error)
}

type Server struct {
	cfg        *config.Config
	collection string
	version    string
	indexer    *indexer.Indexer
	// adhoc serves extract_keys on a subdirectory so the project cache used
	// by sync_messages keeps describing the whole project
	adhoc  *indexer.Indexer
	syncer *messages.Syncer

	connect func() (DuplicateFinder, func() error, error)
	finder  DuplicateFinder
	closeFn func() error
}

// NewServer serves the project described by cfg. projectID names the vector
// collection.
func NewServer(cfg *config.Config, projectID, version string) *Server {
	idx := indexer.NewIndexer()
	idx.SetQuiet(true)
	adhoc := indexer.NewIndexer()
	adhoc.SetQuiet(true)

	return &Server{
		cfg:        cfg,
		collection: analyzer.CollectionName(projectID),
		version:    version,
		indexer:    idx,
		adhoc:      adhoc,
		syncer:     messages.NewSyncer(cfg),
		connect: func() (DuplicateFinder, func() error, error) {
			az, closeFn, err := analyzer.Connect()
			if err != nil {
				return nil, nil, err
			}
			az.SetQuiet(true)
			return az, closeFn, nil
		},
	}
}

// Run serves line-delimited JSON-RPC requests from in until EOF
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	defer func() {
		if s.closeFn != nil {
			s.closeFn()
		}
	}()

	reader := bufio.NewReader(in)
	writer := bufio.NewWriter(out)

	for {
		line, err := reader.ReadBytes('\n')
		if len(strings.TrimSpace(string(line))) > 0 {
			var req JSONRPCRequest
			if jsonErr := json.Unmarshal(line, &req); jsonErr != nil {
				s.writeError(writer, nil, -32700, "Parse error")
			} else {
				s.handleRequest(ctx, writer, &req)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, writer *bufio.Writer, req *JSONRPCRequest) {
	// Notifications carry no id and get no response.
	if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(writer, req)
	case "ping":
		s.writeResponse(writer, req.ID, map[string]interface{}{})
	case "tools/list":
		s.handleToolsList(writer, req)
	case "tools/call":
		s.handleToolsCall(ctx, writer, req)
	default:
		s.writeError(writer, req.ID, -32601, "Method not found")
	}
}

func (s *Server) handleInitialize(writer *bufio.Writer, req *JSONRPCRequest) {
	result := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"serverInfo": map[string]string{
			"name":    "globekeys-mcp",
			"version": s.version,
		},
		"capabilities": map[string]interface{}{
			"tools": map[string]bool{},
		},
	}
	s.writeResponse(writer, req.ID, result)
}

func (s *Server) handleToolsList(writer *bufio.Writer, req *JSONRPCRequest) {
	tools := []map[string]interface{}{
		{
			"name":        "extract_keys",
			"description": "Extract next-globe-gen translation keys from a source file or directory (default: the configured key extraction dirs)",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]string{"type": "string"},
				},
			},
		},
		{
			"name":        "sync_messages",
			"description": "Extract keys from the project and merge them into every locale's message catalog",
			"inputSchema": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			"name":        "lookup_message",
			"description": "Resolve a message key in a locale, falling back to the default locale",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"key":    map[string]string{"type": "string"},
					"locale": map[string]string{"type": "string"},
				},
				"required": []string{"key"},
			},
		},
		{
			"name":        "find_duplicate_messages",
			"description": "Find default-locale messages that say the same thing under different keys",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"threshold": map[string]string{"type": "number"},
					"confirm":   map[string]string{"type": "boolean"},
				},
			},
		},
		{
			"name":        "find_similar_messages",
			"description": "Find existing default-locale messages similar to a text, to reuse a key instead of adding one",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text":  map[string]string{"type": "string"},
					"top_k": map[string]string{"type": "integer"},
				},
				"required": []string{"text"},
			},
		},
	}
	s.writeResponse(writer, req.ID, map[string]interface{}{"tools": tools})
}

func (s *Server) handleToolsCall(ctx context.Context, writer *bufio.Writer, req *JSONRPCRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(writer, req.ID, -32602, "Invalid params")
		return
	}
	if len(params.Arguments) == 0 || string(params.Arguments) == "null" {
		params.Arguments = json.RawMessage("{}")
	}

	var result interface{}
	var err error

	switch params.Name {
	case "extract_keys":
		result, err = s.handleExtractKeys(ctx, params.Arguments)
	case "sync_messages":
		result, err = s.handleSyncMessages(ctx)
	case "lookup_message":
		result, err = s.handleLookupMessage(params.Arguments)
	case "find_duplicate_messages":
		result, err = s.handleFindDuplicates(ctx, params.Arguments)
	case "find_similar_messages":
		result, err = s.handleFindSimilar(ctx, params.Arguments)
	default:
		s.writeError(writer, req.ID, -32602, "Unknown tool")
		return
	}

	if err != nil {
		s.writeError(writer, req.ID, -32603, err.Error())
		return
	}

	s.writeResponse(writer, req.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": formatResult(result),
			},
		},
	})
}

func (s *Server) handleExtractKeys(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, err
	}

	if input.Path == "" {
		return s.indexer.IndexProject(ctx, s.cfg.KeyExtractionDirs(), s.cfg.ExcludedDirs())
	}

	path := s.cfg.ResolvePath(input.Path)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return s.adhoc.IndexProject(ctx, []string{path}, s.cfg.ExcludedDirs())
	}
	keys, err := s.indexer.ExtractFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return indexer.MergeKeys([][]extractor.ExtractedKey{keys}), nil
}

func (s *Server) handleSyncMessages(ctx context.Context) (interface{}, error) {
	entries, err := s.indexer.IndexProject(ctx, s.cfg.KeyExtractionDirs(), s.cfg.ExcludedDirs())
	if err != nil {
		return nil, err
	}
	return s.syncer.Sync(entries)
}

func (s *Server) handleLookupMessage(args json.RawMessage) (interface{}, error) {
	var input struct {
		Key    string `json:"key"`
		Locale string `json:"locale"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, err
	}
	if input.Key == "" {
		return nil, errors.New("key is required")
	}
	if input.Locale == "" {
		input.Locale = s.cfg.DefaultLocale
	}

	resolver, err := messages.NewResolver(s.cfg)
	if err != nil {
		return nil, err
	}
	return resolver.Resolve(input.Locale, input.Key)
}

func (s *Server) handleFindDuplicates(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var input struct {
		Threshold float64 `json:"threshold"`
		Confirm   bool    `json:"confirm"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, err
	}
	if input.Threshold == 0 {
		input.Threshold = analyzer.DefaultThreshold
	}

	finder, err := s.indexedFinder(ctx)
	if err != nil {
		return nil, err
	}
	return finder.FindDuplicates(ctx, s.collection, input.Threshold, input.Confirm)
}

func (s *Server) handleFindSimilar(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var input struct {
		Text string `json:"text"`
		TopK int    `json:"top_k"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, errors.New("text is required")
	}
	if input.TopK <= 0 {
		input.TopK = 10
	}

	finder, err := s.indexedFinder(ctx)
	if err != nil {
		return nil, err
	}
	return finder.FindSimilar(ctx, s.collection, input.Text, uint64(input.TopK))
}

// indexedFinder connects the finder if needed and brings the collection up to
// date with the default locale's catalog
func (s *Server) indexedFinder(ctx context.Context) (DuplicateFinder, error) {
	if s.finder == nil {
		finder, closeFn, err := s.connect()
		if err != nil {
			return nil, err
		}
		s.finder, s.closeFn = finder, closeFn
	}

	entries, err := messages.LoadMessageEntries(s.cfg.OriginDir(), s.cfg.DefaultLocale)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s messages: %w", s.cfg.DefaultLocale, err)
	}
	if _, err := s.finder.IndexMessages(ctx, s.collection, s.cfg.DefaultLocale, entries); err != nil {
		return nil, err
	}
	return s.finder, nil
}

func (s *Server) writeResponse(writer *bufio.Writer, id interface{}, result interface{}) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	data, _ := json.Marshal(resp)
	writer.Write(data)
	writer.WriteByte('\n')
	writer.Flush()
}

func (s *Server) writeError(writer *bufio.Writer, id interface{}, code int, message string) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
	}
	data, _ := json.Marshal(resp)
	writer.Write(data)
	writer.WriteByte('\n')
	writer.Flush()
}

func formatResult(result interface{}) string {
	data, _ := json.MarshalIndent(result, "", "  ")
	return string(data)
}
