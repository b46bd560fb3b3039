package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store owns all file access inside a workspace root. Every component that
// touches workspace state goes through its atomic primitives; nothing else
// holds a raw handle to a workspace file.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at the given workspace directory.
func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("workspace root is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}

	return &Store{
		root:  abs,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the absolute workspace root.
func (s *Store) Root() string {
	return s.root
}

// Resolve maps a workspace-relative path to an absolute one, rejecting
// anything that escapes the root.
func (s *Store) Resolve(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}

	candidate := rel
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(s.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	relToRoot, err := filepath.Rel(s.root, candidate)
	if err != nil {
		return "", err
	}
	if relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside workspace root", rel)
	}

	return candidate, nil
}

// Append atomically appends text to a file. The written bytes are never
// interleaved with a concurrent writer's bytes: writers serialize on the
// per-path lock and the data goes out in a single O_APPEND write.
func (s *Store) Append(rel string, text string) error {
	target, err := s.Resolve(rel)
	if err != nil {
		return err
	}

	lock := s.lockFor(target)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", rel, err)
	}
	defer f.Close()

	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("failed to append to %s: %w", rel, err)
	}

	return f.Sync()
}

// Read returns the full content of a file. A missing file reads as empty.
func (s *Store) Read(rel string) (string, error) {
	target, err := s.Resolve(rel)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(target)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}

	return string(data), nil
}

// Exists reports whether a file exists in the workspace.
func (s *Store) Exists(rel string) (bool, error) {
	target, err := s.Resolve(rel)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(target)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ReadModifyWrite applies fn to the current content of a file and writes the
// result back. The per-path lock is held for the whole read-transform-write
// cycle, so concurrent updates never lose each other's changes; the write
// itself goes through a temp file and rename so readers never see torn
// content.
func (s *Store) ReadModifyWrite(rel string, fn func(current string) (string, error)) error {
	target, err := s.Resolve(rel)
	if err != nil {
		return err
	}

	lock := s.lockFor(target)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(target)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", rel, err)
	}

	updated, err := fn(string(data))
	if err != nil {
		return err
	}

	return writeAtomic(target, []byte(updated))
}

// Write replaces the content of a file under the per-path lock.
func (s *Store) Write(rel string, content string) error {
	return s.ReadModifyWrite(rel, func(string) (string, error) {
		return content, nil
	})
}

// List returns the entries of a workspace directory, directories suffixed
// with a separator. A missing directory lists as empty.
func (s *Store) List(rel string) ([]string, error) {
	target, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(target)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", rel, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += string(filepath.Separator)
		}
		names = append(names, name)
	}

	return names, nil
}

func (s *Store) lockFor(absPath string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[absPath]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[absPath] = lock
	}
	return lock
}

// writeAtomic writes content via a temp file and rename.
func writeAtomic(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := target + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, target); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
