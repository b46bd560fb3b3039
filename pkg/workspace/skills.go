package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Skill is an optional capability described by a definition file under
// skills/<name>/SKILL.md, loaded on demand.
type Skill struct {
	Name       string
	Definition string
}

// Skills indexes the workspace skills directory. The index is cached and
// invalidated by a filesystem watcher, so List stays cheap while edits to
// skill files are picked up without a restart.
type Skills struct {
	store *Store

	mu    sync.RWMutex
	names []string
	dirty bool

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// NewSkills creates a skills loader over the store's skills directory.
func NewSkills(store *Store) *Skills {
	return &Skills{
		store: store,
		dirty: true,
		done:  make(chan struct{}),
	}
}

// Watch starts the fsnotify watcher on the skills directory. Without it the
// index is rebuilt on every List call.
func (s *Skills) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	skillsPath, err := s.store.Resolve(SkillsDir)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(skillsPath); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch skills directory: %w", err)
	}

	entries, err := os.ReadDir(skillsPath)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				if err := watcher.Add(filepath.Join(skillsPath, entry.Name())); err != nil {
					log.Warn().Err(err).Str("skill", entry.Name()).Msg("Failed to watch skill directory")
				}
			}
		}
	}

	s.watcher = watcher
	go s.eventLoop()

	log.Info().Str("path", skillsPath).Msg("Skills watcher started")
	return nil
}

// Close stops the watcher.
func (s *Skills) Close() error {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// List returns the sorted names of all skills that carry a definition file.
func (s *Skills) List() ([]string, error) {
	s.mu.RLock()
	if !s.dirty && s.watcher != nil {
		names := make([]string, len(s.names))
		copy(names, s.names)
		s.mu.RUnlock()
		return names, nil
	}
	s.mu.RUnlock()

	names, err := s.scan()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.names = names
	s.dirty = false
	s.mu.Unlock()

	out := make([]string, len(names))
	copy(out, names)
	return out, nil
}

// Load reads a skill definition by name.
func (s *Skills) Load(name string) (*Skill, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/\\") {
		return nil, fmt.Errorf("invalid skill name %q", name)
	}

	content, err := s.store.Read(SkillPath(name))
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("skill %q not found", name)
	}

	return &Skill{Name: name, Definition: content}, nil
}

func (s *Skills) scan() ([]string, error) {
	skillsPath, err := s.store.Resolve(SkillsDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(skillsPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read skills directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		definition := filepath.Join(skillsPath, entry.Name(), SkillFileName)
		if _, err := os.Stat(definition); err == nil {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)
	return names, nil
}

func (s *Skills) eventLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			// New skill directories must be watched too so edits to their
			// definition files invalidate the index.
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := s.watcher.Add(event.Name); err != nil {
						log.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch skill directory")
					}
				}
			}
			s.mu.Lock()
			s.dirty = true
			s.mu.Unlock()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Skills watcher error")

		case <-s.done:
			return
		}
	}
}
