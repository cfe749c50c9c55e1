package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"globekeys/internal/parser"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

var excludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"out":          true,
	".next":        true,
	".turbo":       true,
	".vercel":      true,
	"coverage":     true,
}

// GetSourceFiles walks every dir in dirs and returns the JavaScript and
// TypeScript files below them. Directories in excluded (generated output such
// as the localized routes dir) are never entered. Paths are absolute, sorted
// and unique.
func GetSourceFiles(dirs []string, excluded []string) ([]string, error) {
	skip := make(map[string]bool, len(excluded))
	for _, dir := range excluded {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve excluded dir %s: %w", dir, err)
		}
		skip[filepath.Clean(abs)] = true
	}

	seen := make(map[string]bool)
	var files []string
	for _, dir := range dirs {
		root, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve source dir %s: %w", dir, err)
		}
		if _, err := os.Stat(root); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		found, err := walkSourceFiles(root, skip)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

func walkSourceFiles(rootPath string, skip map[string]bool) ([]string, error) {
	var files []string
	ignorePatterns := loadGitIgnorePatterns(rootPath)
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Compute path relative to root for .gitignore-style matching.
		relPath, relErr := filepath.Rel(rootPath, path)
		if relErr != nil {
			relPath = path
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path != rootPath && (excludedDirs[d.Name()] || skip[filepath.Clean(path)]) {
				return filepath.SkipDir
			}
			if isIgnoredPath(relPath, ignorePatterns) {
				return filepath.SkipDir
			}
			return nil
		}

		if isIgnoredPath(relPath, ignorePatterns) {
			return nil
		}
		if parser.IsSupportedFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// NormalizeProjectRoot returns the absolute, symlink-resolved form of root
func NormalizeProjectRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs), nil
}

// ComputeProjectID derives a stable identifier for a project from its root
// path, used to scope vector collections and local state per project.
func ComputeProjectID(root string) (string, error) {
	normalized, err := NormalizeProjectRoot(root)
	if err != nil {
		return "", err
	}
	key := filepath.ToSlash(normalized)
	if runtime.GOOS == "windows" {
		key = strings.ToLower(key)
	}
	return HashContent(key)[:16], nil
}

// UserStateDir returns ~/.globekeys, creating it when missing
func UserStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".globekeys")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func HashContent(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

func CosineSim(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// loadGitIgnorePatterns reads the root-level .gitignore (if present) and
// returns a list of non-empty, non-comment patterns.
func loadGitIgnorePatterns(rootPath string) []string {
	gitIgnorePath := filepath.Join(rootPath, ".gitignore")
	data, err := os.ReadFile(gitIgnorePath)
	if err != nil {
		return nil
	}

	lines := strings.Split(string(data), "\n")
	var patterns []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// isIgnoredPath applies a minimal subset of .gitignore semantics: directory
// patterns, globs matched against the root-relative path or the base name,
// and bare names matching any path segment.
func isIgnoredPath(relPath string, patterns []string) bool {
	relPath = strings.TrimPrefix(relPath, "./")
	relPath = strings.TrimSpace(relPath)
	if relPath == "" || relPath == "." {
		return false
	}

	relPath = filepath.ToSlash(relPath)

	for _, pattern := range patterns {
		p := strings.TrimSpace(pattern)
		if p == "" {
			continue
		}

		p = strings.TrimPrefix(filepath.ToSlash(p), "/")

		if strings.HasSuffix(p, "/") {
			dir := strings.TrimSuffix(p, "/")
			dir = strings.TrimPrefix(dir, "./")
			if relPath == dir || strings.HasPrefix(relPath, dir+"/") {
				return true
			}
			continue
		}

		if ok, _ := filepath.Match(p, relPath); ok {
			return true
		}
		if !strings.Contains(p, "/") {
			if ok, _ := filepath.Match(p, filepath.Base(relPath)); ok {
				return true
			}
		}

		if !strings.Contains(p, "/") && !strings.ContainsAny(p, "*?[") {
			segment := "/" + p + "/"
			if strings.Contains("/"+relPath+"/", segment) {
				return true
			}
		}
	}

	return false
}
