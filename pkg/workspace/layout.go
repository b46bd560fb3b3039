package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Well-known workspace paths.
const (
	MemoryDir     = "memory"
	MemoryFile    = "memory/MEMORY.md"
	HistoryFile   = "memory/HISTORY.md"
	ChecklistFile = "HEARTBEAT.md"
	SkillsDir     = "skills"
	SkillFileName = "SKILL.md"
)

// EnsureLayout creates the workspace skeleton: the memory directory with the
// long-term facts file and the append-only history log, the skills directory,
// and the heartbeat checklist. Existing files are left untouched.
func EnsureLayout(s *Store) error {
	for _, dir := range []string{MemoryDir, SkillsDir} {
		abs, err := s.Resolve(dir)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	seeds := map[string]string{
		MemoryFile:    "# Long-term memory\n",
		HistoryFile:   "",
		ChecklistFile: "# Heartbeat checklist\n",
	}
	for rel, seed := range seeds {
		exists, err := s.Exists(rel)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := s.Write(rel, seed); err != nil {
			return err
		}
	}

	return nil
}

// SkillPath returns the definition file path for a named skill.
func SkillPath(name string) string {
	return filepath.Join(SkillsDir, name, SkillFileName)
}
