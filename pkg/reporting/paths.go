package reporting

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultPathManager implements path management functionality
type DefaultPathManager struct{}

// NewDefaultPathManager creates a new path manager
func NewDefaultPathManager() *DefaultPathManager {
	return &DefaultPathManager{}
}

// GetDefaultOutputDir returns <root>/<run id>, falling back to "results" and "run"
func (p *DefaultPathManager) GetDefaultOutputDir(root, runID string) string {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "results"
	}
	id := strings.TrimSpace(runID)
	if id == "" {
		id = "run"
	}
	id = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, id)
	return filepath.Join(root, id)
}

// EnsureDirectoryExists creates the parent directory of path
func (p *DefaultPathManager) EnsureDirectoryExists(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// DefaultOutputDir is a convenience wrapper around DefaultPathManager
func DefaultOutputDir(root, runID string) string {
	return NewDefaultPathManager().GetDefaultOutputDir(root, runID)
}
