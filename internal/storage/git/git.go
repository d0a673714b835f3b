// Package git owns the local git repository backing an archive. It is
// the only package that touches the .git directory.
package git

import (
	"errors"
	"fmt"
	"strings"
)

// ErrGit matches any failure inside the adapter (stage, commit, remote
// configuration). The underlying go-git error is wrapped, never
// swallowed.
var ErrGit = errors.New("git operation failed")

// ErrSync matches push failures, including pushing with no remote
// configured.
var ErrSync = errors.New("sync failed")

// OpError wraps a go-git failure with the operation that caused it.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("git %s failed: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrGit) match any *OpError, and push errors
// additionally match ErrSync.
func (e *OpError) Is(target error) bool {
	if target == ErrGit {
		return true
	}
	return target == ErrSync && e.Op == "push"
}

// RemoteURL builds the authenticated origin URL for a GitHub repository.
// repoSpec may be "owner/repo", a full https URL, or carry a .git
// suffix; it is normalized first. The token ends up in the repository's
// local git config, which is an accepted simplification here.
func RemoteURL(token, repoSpec string) string {
	spec := strings.TrimPrefix(repoSpec, "https://github.com/")
	spec = strings.TrimSuffix(spec, ".git")
	return fmt.Sprintf("https://%s@github.com/%s.git", token, spec)
}
