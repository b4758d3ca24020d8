// Package gitops commits workspace changes after imports so the books keep a
// history.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNothingToCommit is returned by Commit when the paths have no changes.
var ErrNothingToCommit = errors.New("nothing to commit")

// Repo is a git working tree.
type Repo struct {
	Dir         string
	AuthorName  string
	AuthorEmail string
}

// Init initializes a new git repository at dir.
func Init(ctx context.Context, dir string) error {
	if _, err := run(ctx, dir, "init", "--quiet"); err != nil {
		return fmt.Errorf("git init: %w", err)
	}
	return nil
}

// IsRepo reports whether dir is the root of a git repository.
func IsRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// Commit stages paths (everything when none are given) and commits them.
// Returns the short commit hash.
func (r Repo) Commit(ctx context.Context, message string, paths ...string) (string, error) {
	add := []string{"add", "-A", "--"}
	if len(paths) == 0 {
		add = append(add, ".")
	}
	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(r.Dir, p)); err == nil {
			add = append(add, p)
		}
	}
	if len(add) == 3 {
		return "", ErrNothingToCommit
	}
	if _, err := run(ctx, r.Dir, add...); err != nil {
		return "", fmt.Errorf("git add: %w", err)
	}

	staged, err := run(ctx, r.Dir, "diff", "--cached", "--name-only")
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	if staged == "" {
		return "", ErrNothingToCommit
	}

	author := fmt.Sprintf("%s <%s>", r.AuthorName, r.AuthorEmail)
	commit := []string{"-c", "user.name=" + r.AuthorName, "-c", "user.email=" + r.AuthorEmail,
		"commit", "--quiet", "-m", message, "--author", author}
	if _, err := run(ctx, r.Dir, commit...); err != nil {
		return "", fmt.Errorf("git commit: %w", err)
	}

	hash, err := run(ctx, r.Dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	return hash, nil
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}
