package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/config"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/gitops"
)

// Layout lists the directories a new workspace starts with.
var Layout = []string{
	"records",
	"ledger",
	"logs",
	"import",
	filepath.Join("import", "processed"),
}

// Init lays out a new workspace in dir and, when git is enabled, makes the
// first commit. Returns the commit hash, empty without git.
func Init(ctx context.Context, dir string, cfg *config.Config) (string, error) {
	if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
		return "", fmt.Errorf("%s already exists in %s", config.FileName, dir)
	}

	for _, d := range Layout {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return "", fmt.Errorf("creating directory %s: %w", d, err)
		}
	}
	if err := config.Save(filepath.Join(dir, config.FileName), cfg); err != nil {
		return "", err
	}

	gitignore := ".env\nimport/\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return "", fmt.Errorf("writing .gitignore: %w", err)
	}

	if !cfg.Git.AutoCommit {
		return "", nil
	}
	if !gitops.IsRepo(dir) {
		if err := gitops.Init(ctx, dir); err != nil {
			return "", err
		}
	}
	repo := gitops.Repo{Dir: dir, AuthorName: cfg.Git.AuthorName, AuthorEmail: cfg.Git.AuthorEmail}
	hash, err := repo.Commit(ctx, "init: "+cfg.Business.Name, config.FileName, ".gitignore")
	if err != nil {
		return "", fmt.Errorf("initial commit: %w", err)
	}
	return hash, nil
}
