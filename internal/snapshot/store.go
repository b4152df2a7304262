// File path: internal/snapshot/store.go
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrPathTraversal is returned for any path that would resolve outside the
// snapshot root. Callers must treat it as fatal to the operation.
var ErrPathTraversal = errors.New("path traversal not allowed")

// tableDepth is the number of path segments in a table-level directory
// relative to the prune prefix: type=…/database=…/schema=…/table=….
const tableDepth = 4

// Store is a content-addressed-by-path tree of rendered snapshot documents.
// Writes are whole-document replacements, so concurrent readers are safe.
type Store struct {
	root string
}

// Entry is one directory listing item.
type Entry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Match is the result of searching one document: the store-relative path
// and the matching lines.
type Match struct {
	Path  string `json:"file"`
	Lines []Line `json:"matches"`
}

// Line is one matching line within a document.
type Line struct {
	Number int    `json:"line"`
	Text   string `json:"text"`
}

// New opens a store rooted at the given directory, creating it if needed.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory of the store.
func (s *Store) Root() string {
	return s.root
}

// resolve maps a store-relative path to an absolute one, rejecting any path
// that escapes the root before any filesystem access happens.
func (s *Store) resolve(rel string) (string, error) {
	if s == nil || s.root == "" {
		return "", errors.New("snapshot store not initialised")
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == "." {
		return s.root, nil
	}
	if filepath.IsAbs(cleaned) || !filepath.IsLocal(cleaned) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}
	full := filepath.Join(s.root, cleaned)
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}
	return full, nil
}

// Read returns the content of one document.
func (s *Store) Read(rel string) (string, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("document not found: %s", rel)
		}
		return "", fmt.Errorf("read document %s: %w", rel, err)
	}
	return string(raw), nil
}

// WriteIfChanged writes a document only when its content differs from what
// is currently stored, reporting whether a write happened. Rendering is
// deterministic, so this content check is the basis for change detection.
func (s *Store) WriteIfChanged(rel, content string) (bool, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return false, err
	}
	if existing, err := os.ReadFile(full); err == nil && string(existing) == content {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return false, fmt.Errorf("create document directory: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write document %s: %w", rel, err)
	}
	return true, nil
}

// List returns the entries directly under a store-relative directory. A
// missing directory lists as empty rather than erroring.
func (s *Store) List(rel string) ([]Entry, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", rel, err)
	}
	entries := make([]Entry, 0, len(dirents))
	for _, dirent := range dirents {
		kind := "file"
		if dirent.IsDir() {
			kind = "directory"
		}
		entries = append(entries, Entry{Name: dirent.Name(), Type: kind})
	}
	return entries, nil
}

// Search scans every .md document under a store-relative prefix for lines
// containing the term, case-insensitively. Results are ordered by path.
func (s *Store) Search(term, rel string) ([]Match, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(full); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	needle := strings.ToLower(term)
	var matches []Match
	walkErr := filepath.WalkDir(full, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read document %s: %w", path, err)
		}
		var lines []Line
		for i, text := range strings.Split(string(raw), "\n") {
			if strings.Contains(strings.ToLower(text), needle) {
				lines = append(lines, Line{Number: i + 1, Text: strings.TrimSpace(text)})
			}
		}
		if len(lines) > 0 {
			relPath, err := filepath.Rel(s.root, path)
			if err != nil {
				return err
			}
			matches = append(matches, Match{Path: filepath.ToSlash(relPath), Lines: lines})
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Path < matches[j].Path })
	return matches, nil
}

// PruneStale removes table-level directories under prefix that are not in
// the active set, then removes any parent directories left empty. Active
// paths are store-relative, slash-separated.
func (s *Store) PruneStale(prefix string, active map[string]bool) error {
	full, err := s.resolve(prefix)
	if err != nil {
		return err
	}
	if _, err := os.Stat(full); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return s.pruneDir(full, full, active, 0)
}

func (s *Store) pruneDir(base, dir string, active map[string]bool, depth int) error {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("prune read %s: %w", dir, err)
	}
	for _, dirent := range dirents {
		if !dirent.IsDir() {
			continue
		}
		sub := filepath.Join(dir, dirent.Name())
		if depth+1 >= tableDepth {
			rel, err := filepath.Rel(base, sub)
			if err != nil {
				return err
			}
			if !active[filepath.ToSlash(rel)] {
				if err := os.RemoveAll(sub); err != nil {
					return fmt.Errorf("prune %s: %w", sub, err)
				}
				continue
			}
		}
		if err := s.pruneDir(base, sub, active, depth+1); err != nil {
			return err
		}
	}
	remaining, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("prune read %s: %w", dir, err)
	}
	if len(remaining) == 0 && dir != base {
		if err := os.Remove(dir); err != nil {
			return fmt.Errorf("prune empty %s: %w", dir, err)
		}
	}
	return nil
}
