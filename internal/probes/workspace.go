package probes

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is an isolated working directory a probe battery runs in. All
// resources created for the battery live under Dir and are torn down
// together by Close, on every exit path.
type Workspace struct {
	Dir string
}

// NewWorkspace creates an isolated working directory under root, seeded
// with the given fixture files
func NewWorkspace(root string, fixtures map[string][]byte) (*Workspace, error) {
	dir, err := os.MkdirTemp(root, "confledger-probes-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create probe workspace: %w", err)
	}

	for name, content := range fixtures {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to seed fixture %s: %w", name, err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to seed fixture %s: %w", name, err)
		}
	}

	return &Workspace{Dir: dir}, nil
}

// Close removes the workspace and everything in it
func (w *Workspace) Close() error {
	if w.Dir == "" {
		return nil
	}
	err := os.RemoveAll(w.Dir)
	w.Dir = ""
	return err
}
