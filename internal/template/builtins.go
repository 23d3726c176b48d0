package template

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aisanity/aisanity/internal/logging"
)

// Built-in variable names.
const (
	VarBranch    = "branch"
	VarWorkspace = "workspace"
	VarTimestamp = "timestamp"
	VarWorktree  = "worktree"
)

// GitFunc runs git with args in dir and returns trimmed stdout.
type GitFunc func(ctx context.Context, dir string, args ...string) (string, error)

// VariableSource supplies a set of template variables.
type VariableSource interface {
	Variables(ctx context.Context) map[string]string
}

// StaticVariables is a fixed VariableSource.
type StaticVariables map[string]string

// Variables implements VariableSource.
func (s StaticVariables) Variables(context.Context) map[string]string {
	return Merge(s)
}

// BuiltinResolver resolves branch, workspace, timestamp and worktree once
// and caches them for the life of the resolver.
type BuiltinResolver struct {
	dir    string
	git    GitFunc
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	cached map[string]string
}

// BuiltinOption configures a BuiltinResolver.
type BuiltinOption func(*BuiltinResolver)

// WithGit replaces the git runner.
func WithGit(fn GitFunc) BuiltinOption {
	return func(r *BuiltinResolver) { r.git = fn }
}

// WithClock replaces the timestamp clock.
func WithClock(now func() time.Time) BuiltinOption {
	return func(r *BuiltinResolver) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BuiltinOption {
	return func(r *BuiltinResolver) { r.logger = logger }
}

// NewBuiltinResolver creates a resolver for the workspace at dir. An empty
// dir means the current working directory.
func NewBuiltinResolver(dir string, opts ...BuiltinOption) *BuiltinResolver {
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		}
	}
	r := &BuiltinResolver{
		dir: dir,
		git: execGit,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	return r
}

// Variables implements VariableSource. The first call runs git; later calls
// return the cached map.
func (r *BuiltinResolver) Variables(ctx context.Context) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return Merge(r.cached)
	}

	vars := map[string]string{
		VarBranch:    r.branch(ctx),
		VarWorkspace: filepath.Base(r.dir),
		VarTimestamp: r.now().UTC().Format(time.RFC3339),
	}
	if wt := r.worktree(ctx); wt != "" {
		vars[VarWorktree] = wt
	}

	r.cached = vars
	return Merge(vars)
}

// Reset drops the cache so the next Variables call resolves again.
func (r *BuiltinResolver) Reset() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

func (r *BuiltinResolver) branch(ctx context.Context) string {
	name, err := r.git(ctx, r.dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil || name == "" {
		r.logger.Debug("branch lookup failed", "error", err)
		return "unknown"
	}
	if name != "HEAD" {
		return name
	}

	// Detached HEAD: fall back to the short commit hash.
	hash, err := r.git(ctx, r.dir, "rev-parse", "--short", "HEAD")
	if err != nil || hash == "" {
		return "unknown"
	}
	return hash
}

// worktree returns the checkout name when dir is a secondary worktree.
func (r *BuiltinResolver) worktree(ctx context.Context) string {
	out, err := r.git(ctx, r.dir, "rev-parse", "--git-dir", "--git-common-dir", "--show-toplevel")
	if err != nil {
		return ""
	}
	lines := strings.Split(out, "\n")
	if len(lines) < 3 {
		return ""
	}

	gitDir := r.absPath(strings.TrimSpace(lines[0]))
	commonDir := r.absPath(strings.TrimSpace(lines[1]))
	if gitDir == commonDir {
		return ""
	}
	return filepath.Base(strings.TrimSpace(lines[2]))
}

func (r *BuiltinResolver) absPath(p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.dir, p)
	}
	return filepath.Clean(p)
}

func execGit(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
