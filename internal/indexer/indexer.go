package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"globekeys/internal/extractor"
	"globekeys/internal/models"
	"globekeys/internal/parser"
	"globekeys/internal/utils"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
)

const NumWorkers = 4

// Indexer extracts translation keys from a project's source files. Results
// are cached per file and content hash, so repeated runs in one process (the
// MCP server, watch loops) only parse what changed. With persistence enabled
// the cache also survives between runs.
type Indexer struct {
	factory   *parser.ParserFactory
	projectID string
	persist   bool
	quiet     bool

	mu    sync.Mutex
	cache map[string]fileState
}

type fileState struct {
	Hash string                   `json:"hash"`
	Keys []extractor.ExtractedKey `json:"keys"`
}

type fileResult struct {
	path  string
	state fileState
	err   error
}

func NewIndexer() *Indexer {
	return &Indexer{
		factory: parser.NewParserFactory(),
		cache:   make(map[string]fileState),
	}
}

// EnablePersistence stores the per-file key cache under ~/.globekeys, scoped
// by projectID, and loads any state left by a previous run.
func (idx *Indexer) EnablePersistence(projectID string) error {
	states, err := loadFileStates(projectID)
	if err != nil {
		return fmt.Errorf("failed to load file state: %w", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.projectID = projectID
	idx.persist = true
	for path, state := range states {
		if _, ok := idx.cache[path]; !ok {
			idx.cache[path] = state
		}
	}
	return nil
}

// SetQuiet suppresses progress output
func (idx *Indexer) SetQuiet(quiet bool) {
	idx.quiet = quiet
}

func (idx *Indexer) logf(format string, args ...interface{}) {
	if !idx.quiet {
		fmt.Printf(format, args...)
	}
}

// IndexProject extracts the keys used under dirs, skipping excluded dirs, and
// merges them into one entry per key. Entries come in first-seen order over
// the sorted file list; messages are left empty.
func (idx *Indexer) IndexProject(ctx context.Context, dirs []string, excluded []string) ([]models.MessageEntry, error) {
	files, err := utils.GetSourceFiles(dirs, excluded)
	if err != nil {
		return nil, fmt.Errorf("failed to collect source files: %w", err)
	}
	idx.logf("✓ Found %d source files\n", len(files))
	return idx.IndexFiles(ctx, files)
}

// IndexFiles extracts and merges the keys of the given source files. The
// cache afterwards describes exactly these files.
func (idx *Indexer) IndexFiles(ctx context.Context, files []string) ([]models.MessageEntry, error) {
	if len(files) == 0 {
		idx.logf("⚠ No source files found to scan\n")
		return nil, nil
	}

	results := make([]fileResult, len(files))
	var wg sync.WaitGroup
	jobs := make(chan int, len(files))

	for i := 0; i < NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx.processWorker(ctx, files, jobs, results)
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	perFile := make([][]extractor.ExtractedKey, 0, len(results))
	current := make(map[string]fileState, len(results))
	var changed int
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(os.Stderr, "✗ Error processing %s: %v\n", r.path, r.err)
			continue
		}
		perFile = append(perFile, r.state.Keys)
		current[normalizeFilePath(r.path)] = r.state
	}

	idx.mu.Lock()
	for path, state := range current {
		if prev, ok := idx.cache[path]; !ok || prev.Hash != state.Hash {
			changed++
		}
	}
	var removed int
	for path := range idx.cache {
		if _, ok := current[path]; !ok {
			removed++
		}
	}
	idx.cache = current
	persist, projectID := idx.persist, idx.projectID
	idx.mu.Unlock()

	idx.logf("→ %d added/modified, %d removed, %d total files\n", changed, removed, len(files))

	if persist && changed+removed > 0 {
		if err := saveFileStates(projectID, current); err != nil {
			return nil, fmt.Errorf("failed to save file state: %w", err)
		}
	}

	entries := MergeKeys(perFile)
	idx.logf("✓ Extracted %d keys\n", len(entries))
	return entries, nil
}

func (idx *Indexer) processWorker(ctx context.Context, files []string, jobs <-chan int, results []fileResult) {
	for i := range jobs {
		path := files[i]
		if ctx.Err() != nil {
			results[i] = fileResult{path: path, err: ctx.Err()}
			continue
		}
		state, err := idx.processFile(ctx, path)
		results[i] = fileResult{path: path, state: state, err: err}
	}
}

func (idx *Indexer) processFile(ctx context.Context, path string) (fileState, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return fileState{}, err
	}
	hash := utils.HashContent(string(code))

	idx.mu.Lock()
	cached, ok := idx.cache[normalizeFilePath(path)]
	idx.mu.Unlock()
	if ok && cached.Hash == hash {
		return cached, nil
	}

	keys, err := idx.extract(ctx, path, code)
	if err != nil {
		return fileState{}, err
	}
	return fileState{Hash: hash, Keys: keys}, nil
}

// CachedFiles returns the normalized paths the key cache currently holds
func (idx *Indexer) CachedFiles() []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	paths := make([]string, 0, len(idx.cache))
	for path := range idx.cache {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// ExtractFile returns the keys used by a single source file, in source order
func (idx *Indexer) ExtractFile(ctx context.Context, path string) ([]extractor.ExtractedKey, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return idx.extract(ctx, path, code)
}

func (idx *Indexer) extract(ctx context.Context, path string, code []byte) ([]extractor.ExtractedKey, error) {
	if !mentionsTranslator(code) {
		return nil, nil
	}

	p, err := idx.factory.GetParserByFilePath(path)
	if err != nil {
		return nil, err
	}
	result, err := p.Parse(ctx, path, code)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	return extractor.ExtractResult(result), nil
}

// mentionsTranslator is a cheap textual check that lets files which never
// name a translator factory skip parsing.
func mentionsTranslator(code []byte) bool {
	text := string(code)
	for _, name := range extractor.FactoryNames() {
		if strings.Contains(text, name) {
			return true
		}
	}
	return false
}

// MergeKeys folds per-file key lists into one entry per key. The first
// occurrence fixes the position; a later description replaces an earlier one
// and a later occurrence without a description keeps the earlier one.
func MergeKeys(perFile [][]extractor.ExtractedKey) []models.MessageEntry {
	index := make(map[string]int)
	var entries []models.MessageEntry
	for _, keys := range perFile {
		for _, k := range keys {
			i, ok := index[k.Key]
			if !ok {
				index[k.Key] = len(entries)
				entries = append(entries, models.MessageEntry{Key: k.Key})
				i = len(entries) - 1
			}
			if k.Description != nil {
				entries[i].Description = *k.Description
			}
		}
	}
	return entries
}

func normalizeFilePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}

	abs := path
	if !filepath.IsAbs(abs) {
		if a, err := filepath.Abs(abs); err == nil {
			abs = a
		}
	}
	abs = filepath.Clean(abs)
	normalized := filepath.ToSlash(abs)
	if runtime.GOOS == "windows" {
		normalized = strings.ToLower(normalized)
	}
	return normalized
}

// loadFileStates loads the per-file key cache from disk. It is stored as a
// JSON file under ~/.globekeys scoped by the project ID.
func loadFileStates(projectID string) (map[string]fileState, error) {
	statePath, err := fileStatePath(projectID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]fileState), nil
		}
		return nil, err
	}

	var states map[string]fileState
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, err
	}
	if states == nil {
		states = make(map[string]fileState)
	}
	return states, nil
}

func saveFileStates(projectID string, states map[string]fileState) error {
	statePath, err := fileStatePath(projectID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(statePath, data, 0o644)
}

func fileStatePath(projectID string) (string, error) {
	stateDir, err := utils.UserStateDir()
	if err != nil {
		return "", err
	}
	if projectID == "" {
		projectID = "default"
	}
	fileName := fmt.Sprintf("%s_key_cache.json", projectID)
	return filepath.Join(stateDir, fileName), nil
}

// ClearProjectState removes the on-disk key cache of a project
func ClearProjectState(projectID string) error {
	statePath, err := fileStatePath(projectID)
	if err != nil {
		return err
	}
	if err := os.Remove(statePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}
