// Package media handles the local files of a relay: per-job temp
// directories, ffprobe/ffmpeg helpers and file splitting.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// WorkspaceConfig configures Workspace.
type WorkspaceConfig struct {
	// Dir holds one sub-directory per job (default: ./data/work).
	Dir string `yaml:"dir"`

	// TTL is how long a job directory may live before the sweeper removes it.
	TTL time.Duration `yaml:"ttl"`
}

// DefaultWorkspaceConfig returns default configuration.
func DefaultWorkspaceConfig() WorkspaceConfig {
	return WorkspaceConfig{
		Dir: "./data/work",
		TTL: 6 * time.Hour,
	}
}

// Workspace hands out job directories for downloads and removes stale ones.
type Workspace struct {
	config WorkspaceConfig
	logger *slog.Logger
}

// NewWorkspace creates a workspace.
func NewWorkspace(cfg WorkspaceConfig, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWorkspaceConfig()
	if cfg.Dir == "" {
		cfg.Dir = def.Dir
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return &Workspace{config: cfg, logger: logger.With("component", "workspace")}
}

// Dir returns the root directory.
func (w *Workspace) Dir() string { return w.config.Dir }

// EnsureDir creates the root directory if it doesn't exist.
func (w *Workspace) EnsureDir() error {
	if err := os.MkdirAll(w.config.Dir, 0o700); err != nil {
		return fmt.Errorf("creating directory %s: %w", w.config.Dir, err)
	}
	return nil
}

// NewJob creates a fresh job directory.
func (w *Workspace) NewJob() (*Job, error) {
	if err := w.EnsureDir(); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	dir := filepath.Join(w.config.Dir, id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating job directory: %w", err)
	}
	return &Job{ID: id, Dir: dir, logger: w.logger}, nil
}

// DeleteExpired removes job directories older than the TTL.
func (w *Workspace) DeleteExpired(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading workspace: %w", err)
	}

	cutoff := time.Now().Add(-w.config.TTL)
	count := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(w.config.Dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			w.logger.Warn("failed to delete expired job", "path", path, "error", err)
			continue
		}
		count++
	}
	if count > 0 {
		w.logger.Info("expired jobs removed", "count", count)
	}
	return count, nil
}

// Job is a temp directory owned by one relay.
type Job struct {
	ID     string
	Dir    string
	logger *slog.Logger
}

// Path returns a sanitized path for name inside the job directory.
func (j *Job) Path(name string) string {
	name = SanitizeFilename(name)
	if name == "" || name == "." {
		name = uuid.New().String()
	}
	return filepath.Join(j.Dir, name)
}

// TempPath returns a unique path with the given extension.
func (j *Job) TempPath(ext string) string {
	return filepath.Join(j.Dir, uuid.New().String()+ext)
}

// Cleanup removes the job directory and everything in it.
func (j *Job) Cleanup() {
	if err := os.RemoveAll(j.Dir); err != nil {
		j.logger.Warn("job cleanup failed", "dir", j.Dir, "error", err)
	}
}
