package messages

import (
	"errors"
	"fmt"
	"globekeys/internal/models"
	"os"
	"path/filepath"
	"strings"
)

// LoadMessageEntries reads the catalog of locale under originDir: the root
// files <locale>.<ext> first, then every file below <locale>/. A nested file
// adds its directory path and file name as namespace, except index files
// which only add their directory path. A key defined twice keeps its first
// position and its last value.
func LoadMessageEntries(originDir, locale string) ([]models.MessageEntry, error) {
	set := newEntrySet()
	for _, ext := range FileExtensions {
		path := filepath.Join(originDir, locale+ext)
		if !isFile(path) {
			continue
		}
		if err := loadFile(path, "", set); err != nil {
			return nil, err
		}
	}
	if err := loadDir(filepath.Join(originDir, locale), "", set); err != nil {
		return nil, err
	}
	return set.entries, nil
}

func loadDir(dir, namespace string, set *entrySet) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read messages dir %s: %w", dir, err)
	}

	var subDirs []string
	for _, f := range files {
		if f.IsDir() {
			subDirs = append(subDirs, f.Name())
			continue
		}
		if !f.Type().IsRegular() || !isCatalogExt(filepath.Ext(f.Name())) {
			continue
		}
		if err := loadFile(filepath.Join(dir, f.Name()), fileNamespace(namespace, f.Name()), set); err != nil {
			return err
		}
	}
	for _, name := range subDirs {
		if err := loadDir(filepath.Join(dir, name), joinKey(namespace, name), set); err != nil {
			return err
		}
	}
	return nil
}

func loadFile(path, namespace string, set *entrySet) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	entries, err := decodeFile(path, data, namespace)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for _, e := range entries {
		set.put(e)
	}
	return nil
}

// WriteMessageEntries stores entries into the catalog of locale. Existing
// nested files receive the entries under their namespace and are removed when
// none are left; whatever remains goes to the existing root file, or to a new
// <locale>.json. It returns the keys that could not be written because they
// collide with another key's nesting.
func WriteMessageEntries(originDir, locale string, entries []models.MessageEntry) ([]string, error) {
	w := &catalogWriter{remaining: entries, taken: make(map[string]bool, len(entries))}

	if err := w.writeDir(filepath.Join(originDir, locale), ""); err != nil {
		return w.dropped, err
	}

	rootPath := filepath.Join(originDir, locale+".json")
	for _, ext := range FileExtensions {
		path := filepath.Join(originDir, locale+ext)
		if isFile(path) {
			rootPath = path
			break
		}
	}
	if err := os.MkdirAll(originDir, 0o755); err != nil {
		return w.dropped, fmt.Errorf("failed to create messages dir: %w", err)
	}
	err := w.writeFile(rootPath, "")
	return w.dropped, err
}

type catalogWriter struct {
	remaining []models.MessageEntry
	taken     map[string]bool
	dropped   []string
}

func (w *catalogWriter) writeDir(dir, namespace string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read messages dir %s: %w", dir, err)
	}

	for _, f := range files {
		if f.IsDir() {
			if err := w.writeDir(filepath.Join(dir, f.Name()), joinKey(namespace, f.Name())); err != nil {
				return err
			}
		}
	}
	for _, f := range files {
		if f.IsDir() || !f.Type().IsRegular() || !isCatalogExt(filepath.Ext(f.Name())) {
			continue
		}
		if err := w.writeFile(filepath.Join(dir, f.Name()), fileNamespace(namespace, f.Name())); err != nil {
			return err
		}
	}
	return nil
}

// writeFile writes the untaken entries under namespace to path, with keys
// made relative to the namespace
func (w *catalogWriter) writeFile(path, namespace string) error {
	var selected []models.MessageEntry
	for _, e := range w.remaining {
		if w.taken[e.Key] {
			continue
		}
		rel := e.Key
		if namespace != "" {
			if !strings.HasPrefix(e.Key, namespace+".") {
				continue
			}
			rel = strings.TrimPrefix(e.Key, namespace+".")
		}
		w.taken[e.Key] = true
		e.Key = rel
		selected = append(selected, e)
	}

	if len(selected) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		return nil
	}

	data, dropped, err := encodeFile(path, selected)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	for _, key := range dropped {
		w.dropped = append(w.dropped, joinKey(namespace, key))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// fileNamespace is the namespace a catalog file contributes below dirNamespace
func fileNamespace(dirNamespace, fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if base == "index" {
		return dirNamespace
	}
	return joinKey(dirNamespace, base)
}

// entrySet keeps entries unique by key in first-seen order
type entrySet struct {
	index   map[string]int
	entries []models.MessageEntry
}

func newEntrySet() *entrySet {
	return &entrySet{index: make(map[string]int)}
}

func (s *entrySet) put(e models.MessageEntry) {
	if i, ok := s.index[e.Key]; ok {
		s.entries[i] = e
		return
	}
	s.index[e.Key] = len(s.entries)
	s.entries = append(s.entries, e)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
