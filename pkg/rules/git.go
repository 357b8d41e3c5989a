package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"mercator-hq/warden/pkg/config"
)

// DefaultGitTimeout bounds a single clone or pull.
const DefaultGitTimeout = 30 * time.Second

// GitSource loads rules from a file in a git repository. The active version
// is the commit SHA the file was read at.
type GitSource struct {
	config *config.GitRulesConfig
	auth   transport.AuthMethod
	logger *slog.Logger
	store  *Store

	mu   sync.Mutex
	repo *gogit.Repository
	head string
}

// NewGitSource creates a source for cfg. Nothing is cloned until Load.
func NewGitSource(cfg *config.GitRulesConfig, store *Store) (*GitSource, error) {
	if cfg.Repository == "" {
		return nil, errors.New("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, errors.New("branch cannot be empty")
	}

	auth, err := gitAuth(&cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create git auth: %w", err)
	}

	return &GitSource{
		config: cfg,
		auth:   auth,
		store:  store,
		logger: slog.Default().With("component", "rules.git", "repository", cfg.Repository),
	}, nil
}

// Name returns "git".
func (g *GitSource) Name() string { return "git" }

// Load clones the repository, or opens an existing clone, and applies the
// rule file at HEAD.
func (g *GitSource) Load(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.openOrClone(ctx); err != nil {
		g.store.fail(g.Name(), err)
		return err
	}
	return g.applyHead()
}

// Sync pulls the branch and applies the rule file when HEAD moved. It
// reports whether new rules were applied.
func (g *GitSource) Sync(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.repo == nil {
		return false, errors.New("repository not initialized, call Load first")
	}

	worktree, err := g.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, DefaultGitTimeout)
	defer cancel()

	err = worktree.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(g.config.Branch),
		SingleBranch:  true,
		Auth:          g.auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return false, fmt.Errorf("failed to pull: %w", err)
	}

	ref, err := g.repo.Head()
	if err != nil {
		return false, fmt.Errorf("failed to get HEAD: %w", err)
	}
	if ref.Hash().String() == g.head {
		return false, nil
	}

	g.logger.Info("detected rule repository changes",
		"from_sha", shortSHA(g.head),
		"to_sha", shortSHA(ref.Hash().String()),
	)
	if err := g.applyHead(); err != nil {
		return false, err
	}
	return true, nil
}

// Prepare does nothing; every poll compares against the active commit, so
// no change between Load and Watch is lost.
func (g *GitSource) Prepare() error { return nil }

// Watch polls the repository until ctx is done.
func (g *GitSource) Watch(ctx context.Context) error {
	ticker := time.NewTicker(g.config.PollInterval)
	defer ticker.Stop()

	g.logger.Info("rules git watcher started", "poll_interval", g.config.PollInterval)

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("rules git watcher stopped")
			return nil
		case <-ticker.C:
			if _, err := g.Sync(ctx); err != nil {
				g.logger.Error("error checking rule repository", "error", err)
			}
		}
	}
}

// Head returns the commit SHA of the active rules.
func (g *GitSource) Head() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.head
}

// Close does nothing; the clone is kept for the next start.
func (g *GitSource) Close() error { return nil }

// openOrClone opens the local clone or creates it. Caller must hold lock.
func (g *GitSource) openOrClone(ctx context.Context) error {
	if g.repo != nil {
		return nil
	}

	local := g.config.LocalPath
	if _, err := os.Stat(filepath.Join(local, ".git")); err == nil {
		repo, err := gogit.PlainOpen(local)
		if err != nil {
			return fmt.Errorf("failed to open existing repo: %w", err)
		}
		g.repo = repo
		return nil
	}

	if err := os.MkdirAll(local, 0o755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}

	cloneCtx, cancel := context.WithTimeout(ctx, DefaultGitTimeout)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, local, false, &gogit.CloneOptions{
		URL:           g.config.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(g.config.Branch),
		SingleBranch:  true,
		Auth:          g.auth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}

	g.logger.Info("rule repository cloned", "local_path", local, "branch", g.config.Branch)
	g.repo = repo
	return nil
}

// applyHead applies the rule file of the working tree at HEAD. Caller must
// hold lock.
func (g *GitSource) applyHead() error {
	ref, err := g.repo.Head()
	if err != nil {
		err = fmt.Errorf("failed to get HEAD: %w", err)
		g.store.fail(g.Name(), err)
		return err
	}
	sha := ref.Hash().String()

	path := filepath.Join(g.config.LocalPath, g.config.Path)
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read rules file %q at %s: %w", g.config.Path, shortSHA(sha), err)
		g.store.fail(g.Name(), err)
		return err
	}

	// A rejected commit is not retried until HEAD moves again.
	g.head = sha
	return g.store.Apply(g.Name(), sha, data)
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
