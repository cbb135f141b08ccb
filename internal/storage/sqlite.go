package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "chored/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// retention for run history; pruned opportunistically, not on a timer.
const runRetention = 90 * 24 * time.Hour

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, e RunEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(at, name, duration_ms, ok, err) VALUES(?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Name, e.DurationMS, boolInt(e.OK), nullStr(e.Error),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		s.pruneOld(pctx)
		cancel()
	}
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, name string, limit int) ([]RunEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, name, duration_ms, ok, err FROM runs
		 WHERE (? = '' OR name = ?)
		 ORDER BY id DESC LIMIT ?`,
		name, name, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var (
			at  string
			e   RunEntry
			ok  int
			ers sql.NullString
		)
		if err := rows.Scan(&at, &e.Name, &e.DurationMS, &ok, &ers); err != nil {
			return nil, err
		}
		if ts, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			e.At = ts
		}
		e.OK = ok != 0
		e.Error = ers.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) pruneOld(ctx context.Context) {
	cutoff := time.Now().Add(-runRetention).Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE at < ?`, cutoff); err != nil {
		s.log.Debug("run history prune failed", logx.Err(err))
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
