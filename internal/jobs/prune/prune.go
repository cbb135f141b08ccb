// Package prune clears build output trees, keeping only the artifact types
// worth archiving (firmware images and their symbol files by default).
package prune

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	logx "chored/pkg/logx"
)

// DefaultKeep lists the file extensions preserved when the config does not
// say otherwise.
var DefaultKeep = []string{".efi", ".pdb"}

type Config struct {
	Root string

	// Keep overrides DefaultKeep when non-nil. Extensions are matched
	// case-insensitively and must include the leading dot.
	Keep []string
}

type Job struct {
	cfg  Config
	keep []string
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Job {
	keep := cfg.Keep
	if keep == nil {
		keep = DefaultKeep
	}
	norm := make([]string, 0, len(keep))
	for _, ext := range keep {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		norm = append(norm, ext)
	}
	return &Job{cfg: cfg, keep: norm, log: log}
}

func (j *Job) Name() string { return "prune" }

func (j *Job) Run(ctx context.Context) error {
	removed, err := Sweep(j.cfg.Root, j.keep)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	j.log.Info("output tree pruned",
		logx.String("root", j.cfg.Root), logx.Int("removed", removed))
	return nil
}

// Sweep walks root recursively and removes every regular file whose extension
// is not on the keep list. Directories are left in place. Files that vanish
// mid-walk (or whose paths exceed OS limits) are skipped, not errors.
func Sweep(root string, keep []string) (int, error) {
	removed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if kept(path, keep) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		removed++
		return nil
	})
	return removed, err
}

func kept(path string, keep []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, k := range keep {
		if ext == k {
			return true
		}
	}
	return false
}
