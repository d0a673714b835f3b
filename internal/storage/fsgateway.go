package storage

import (
	"os"
	"path/filepath"
)

// FSGateway performs the side-effecting directory and file operations
// for an archive rooted at a single directory. All failures are wrapped
// as *IOError with the offending path and never retried.
type FSGateway struct {
	root string
}

// NewFSGateway returns a gateway rooted at root. The root itself is
// created on first use, not here.
func NewFSGateway(root string) *FSGateway {
	return &FSGateway{root: root}
}

// Root returns the gateway's root directory.
func (g *FSGateway) Root() string { return g.root }

// Abs resolves a repository-relative path to an absolute one.
func (g *FSGateway) Abs(rel string) string {
	return filepath.Join(g.root, rel)
}

// EnsureDir creates the directory and its parents if absent. Idempotent.
func (g *FSGateway) EnsureDir(rel string) error {
	p := g.Abs(rel)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return &IOError{Path: p, Err: err}
	}
	return nil
}

// WriteFile writes data to the file, overwriting any previous content.
// The parent directory must already exist.
func (g *FSGateway) WriteFile(rel string, data []byte) error {
	p := g.Abs(rel)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return &IOError{Path: p, Err: err}
	}
	return nil
}

// Exists reports whether the path exists.
func (g *FSGateway) Exists(rel string) bool {
	_, err := os.Stat(g.Abs(rel))
	return err == nil
}

// AppendLine appends line plus a trailing newline to the file, creating
// it if absent. The caller must pre-serialize to a single line (JSON);
// embedded newlines are not escaped here.
func (g *FSGateway) AppendLine(rel, line string) error {
	p := g.Abs(rel)
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &IOError{Path: p, Err: err}
	}
	_, werr := f.WriteString(line + "\n")
	cerr := f.Close()
	if werr != nil {
		return &IOError{Path: p, Err: werr}
	}
	if cerr != nil {
		return &IOError{Path: p, Err: cerr}
	}
	return nil
}
