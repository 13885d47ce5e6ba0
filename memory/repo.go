package memory

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/becomeliminal/cortex/core"
)

// Cloner fetches a repository into dir.
type Cloner interface {
	Clone(ctx context.Context, url, dir string) error
}

// GitCloner shells out to the git binary for shallow clones.
type GitCloner struct {
	// Binary defaults to "git" on PATH.
	Binary string
	// Timeout bounds a single clone. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// Clone performs a depth-1 clone with interactive prompts disabled.
func (g *GitCloner) Clone(ctx context.Context, url, dir string) error {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}

	cmd := exec.CommandContext(ctx, bin, "clone", "--depth", "1", "--quiet", "--", url, dir)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %v", core.ErrCloneFailed, url, ctx.Err())
		}
		return fmt.Errorf("%w: %s: %s", core.ErrCloneFailed, url, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// IngestRepo clones repoURL into a scratch directory, ingests it with
// IngestDirectory semantics under the URL as label, and removes the scratch
// directory whatever the outcome.
func (m *Manager) IngestRepo(ctx context.Context, scope core.Scope, repoURL string) (*IngestReport, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := validateRepoURL(repoURL); err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp(m.config.ScratchDir, "cortex-clone-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Printf("[MEMORY] Failed to remove %s: %v", scratch, err)
		}
	}()

	dest := filepath.Join(scratch, "repo")
	log.Printf("[MEMORY] Cloning %s", repoURL)
	if err := m.cloner.Clone(ctx, repoURL, dest); err != nil {
		return nil, err
	}

	return m.ingestTree(ctx, scope, dest, repoURL, KindRepo)
}

// StartRepoIngestion queues IngestRepo as a background job and returns immediately.
func (m *Manager) StartRepoIngestion(ctx context.Context, scope core.Scope, repoURL string) (*Job, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := validateRepoURL(repoURL); err != nil {
		return nil, err
	}
	return m.jobs.Start(ctx, scope, JobKindRepo, repoURL, func(ctx context.Context) (*IngestReport, error) {
		return m.IngestRepo(ctx, scope, repoURL)
	})
}

// Job looks up a background job by id.
func (m *Manager) Job(ctx context.Context, id string) (*Job, error) {
	return m.jobs.Get(ctx, id)
}

func validateRepoURL(repoURL string) error {
	repoURL = strings.TrimSpace(repoURL)
	if repoURL == "" {
		return core.Invalid("repoUrl", "a repository URL is required")
	}
	if strings.HasPrefix(repoURL, "-") {
		return core.Invalid("repoUrl", "invalid repository URL")
	}
	return nil
}
