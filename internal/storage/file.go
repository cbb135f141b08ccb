package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "chored/pkg/logx"
)

// fileStore is the dependency-free backend: one JSON object per line.
// Reads scan the whole file; acceptable for the daemon's modest run volume.
type fileStore struct {
	mu   sync.Mutex
	path string
	log  logx.Logger
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("file storage path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &fileStore{path: cfg.Path, log: log}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) AppendRun(ctx context.Context, e RunEntry) error {
	if s == nil {
		return ErrDisabled
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func (s *fileStore) RecentRuns(ctx context.Context, name string, limit int) ([]RunEntry, error) {
	if s == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var all []RunEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e RunEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			// Tolerate a torn tail line; everything else is suspect.
			s.log.Debug("skipping malformed run entry", logx.Err(err))
			continue
		}
		if name != "" && e.Name != name {
			continue
		}
		all = append(all, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	// Newest first, like the sqlite backend.
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}
