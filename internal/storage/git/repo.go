package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	branchName = "main"
	branchRef  = plumbing.ReferenceName("refs/heads/" + branchName)
	remoteName = "origin"
)

// readmeContent seeds a fresh repository so the initial commit is never
// an empty tree.
const readmeContent = "# Chat archive\n\nThis repository contains archived messages and attachments.\n"

// Repo is a local git repository rooted at a single directory. An
// internal mutex serializes stage/commit/push so concurrent callers
// never interleave index operations.
type Repo struct {
	dir   string
	name  string
	email string
	repo  *gogit.Repository
	mu    sync.Mutex
}

// Open opens the repository at dir, initializing a fresh one on the
// "main" branch with an initial commit when none exists. name and email
// become the commit signature.
func Open(dir, name, email string) (*Repo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	if name == "" {
		name = "chatvault"
	}
	if email == "" {
		email = "chatvault@localhost"
	}

	r := &Repo{dir: dir, name: name, email: email}
	repo, err := gogit.PlainOpen(dir)
	if err == nil {
		r.repo = repo
		if err := r.ensureMainBranch(); err != nil {
			return nil, err
		}
		return r, nil
	}
	if !errors.Is(err, gogit.ErrRepositoryNotExists) {
		return nil, &OpError{Op: "open", Err: err}
	}

	repo, err = gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: branchRef},
	})
	if err != nil {
		return nil, &OpError{Op: "init", Err: err}
	}
	cfg, err := repo.Config()
	if err != nil {
		return nil, &OpError{Op: "init", Err: err}
	}
	cfg.User.Name = name
	cfg.User.Email = email
	if err := repo.SetConfig(cfg); err != nil {
		return nil, &OpError{Op: "init", Err: err}
	}
	r.repo = repo

	readme := filepath.Join(dir, "README.md")
	if err := os.WriteFile(readme, []byte(readmeContent), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write README.md: %w", err)
	}
	if err := r.Stage("README.md"); err != nil {
		return nil, err
	}
	if err := r.Commit("Initial repository structure"); err != nil {
		return nil, err
	}
	return r, nil
}

// ensureMainBranch points HEAD at main for repositories created under a
// different default branch name.
func (r *Repo) ensureMainBranch() error {
	head, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return &OpError{Op: "open", Err: err}
	}
	if head.Type() != plumbing.SymbolicReference || head.Target() == branchRef {
		return nil
	}
	// Carry the old branch tip over to main, then repoint HEAD.
	if old, err := r.repo.Reference(head.Target(), true); err == nil {
		ref := plumbing.NewHashReference(branchRef, old.Hash())
		if err := r.repo.Storer.SetReference(ref); err != nil {
			return &OpError{Op: "open", Err: err}
		}
	}
	ref := plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return &OpError{Op: "open", Err: err}
	}
	return nil
}

// Dir returns the repository root directory.
func (r *Repo) Dir() string { return r.dir }

// Stage adds paths to the index. Paths are always relative to the
// repository root; an absolute path is a caller bug.
func (r *Repo) Stage(paths ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stageLocked(paths...)
}

func (r *Repo) stageLocked(paths ...string) error {
	w, err := r.repo.Worktree()
	if err != nil {
		return &OpError{Op: "stage", Err: err}
	}
	for _, p := range paths {
		if filepath.IsAbs(p) {
			return &OpError{Op: "stage", Err: fmt.Errorf("path %q must be relative to the repository root", p)}
		}
		if _, err := w.Add(filepath.ToSlash(p)); err != nil {
			return &OpError{Op: "stage", Err: fmt.Errorf("add %q: %w", p, err)}
		}
	}
	return nil
}

// Commit commits the current index with a short imperative message.
func (r *Repo) Commit(msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commitLocked(msg)
}

func (r *Repo) commitLocked(msg string) error {
	w, err := r.repo.Worktree()
	if err != nil {
		return &OpError{Op: "commit", Err: err}
	}
	now := time.Now()
	sig := &object.Signature{Name: r.name, Email: r.email, When: now}
	if _, err := w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true}); err != nil {
		return &OpError{Op: "commit", Err: err}
	}
	return nil
}

// StageAndCommit stages paths and commits them as one operation under a
// single lock acquisition.
func (r *Repo) StageAndCommit(msg string, paths ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.stageLocked(paths...); err != nil {
		return err
	}
	return r.commitLocked(msg)
}

// SetRemote replaces the origin remote with an authenticated GitHub URL.
// Any existing origin is deleted first; go-git has no set-url.
func (r *Repo) SetRemote(token, repoSpec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.repo.Remote(remoteName); err == nil {
		if err := r.repo.DeleteRemote(remoteName); err != nil {
			return &OpError{Op: "set-remote", Err: err}
		}
	}
	_, err := r.repo.CreateRemote(&config.RemoteConfig{
		Name: remoteName,
		URLs: []string{RemoteURL(token, repoSpec)},
	})
	if err != nil {
		return &OpError{Op: "set-remote", Err: err}
	}
	return nil
}

// HasRemote reports whether origin is configured.
func (r *Repo) HasRemote() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.repo.Remote(remoteName)
	return err == nil
}

// Push force-pushes main to origin. Pushing with no remote configured is
// a sync error; an already up-to-date remote is success.
func (r *Repo) Push(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	remote, err := r.repo.Remote(remoteName)
	if err != nil {
		return fmt.Errorf("%w: no remote configured", ErrSync)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Minute)
	defer cancel()

	refSpec := config.RefSpec(fmt.Sprintf("+%s:%s", branchRef, branchRef))
	err = remote.PushContext(ctx, &gogit.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{refSpec},
		Force:      true,
	})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return &OpError{Op: "push", Err: err}
	}
	return nil
}

// Head returns the current HEAD commit hash, or "" before the first
// commit.
func (r *Repo) Head() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, err := r.repo.Head()
	if err != nil {
		return ""
	}
	return ref.Hash().String()
}

// CommitCount returns the number of commits reachable from HEAD.
func (r *Repo) CommitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	iter, err := r.repo.Log(&gogit.LogOptions{})
	if err != nil {
		return 0
	}
	defer iter.Close()
	n := 0
	for {
		if _, err := iter.Next(); err != nil {
			break
		}
		n++
	}
	return n
}

// LastMessage returns the HEAD commit's subject line, or "".
func (r *Repo) LastMessage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, err := r.repo.Head()
	if err != nil {
		return ""
	}
	c, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return ""
	}
	subject, _, _ := strings.Cut(c.Message, "\n")
	return subject
}
