// Package logreport turns a raw build log into a CSV report of the warnings
// and errors worth looking at, dropping a configurable set of known-noisy
// diagnostic codes.
package logreport

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	logx "chored/pkg/logx"
)

// DefaultIgnoreCodes are diagnostic codes that are expected in every build
// and would only bury the real findings.
var DefaultIgnoreCodes = []string{
	"C3912W", "C9962I", "L9962I", "A9962I", "#1-D", "#177-D", "#550-D",
}

// Lines look like
//
//	src/foo.c(12): Warning:  #177-D: variable "x" was declared but never referenced
//
// i.e. "Warning:" followed by a code segment and the message, all separated
// by ": ".
var reDiagnostic = regexp.MustCompile(`Warning:\s.*:\s`)

type Config struct {
	Input  string
	Output string

	// IgnoreCodes overrides DefaultIgnoreCodes when non-nil.
	IgnoreCodes []string
}

// Entry is one reported diagnostic.
type Entry struct {
	Code    string
	Message string
	Details string
}

type Job struct {
	cfg    Config
	ignore map[string]struct{}
	log    logx.Logger
}

func New(cfg Config, log logx.Logger) *Job {
	codes := cfg.IgnoreCodes
	if codes == nil {
		codes = DefaultIgnoreCodes
	}
	ignore := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		ignore[strings.TrimSpace(c)] = struct{}{}
	}
	return &Job{cfg: cfg, ignore: ignore, log: log}
}

func (j *Job) Name() string { return "logreport" }

func (j *Job) Run(ctx context.Context) error {
	in, err := os.Open(j.cfg.Input)
	if err != nil {
		return fmt.Errorf("logreport: open input: %w", err)
	}
	defer in.Close()

	entries, err := Parse(in, j.ignore)
	if err != nil {
		return fmt.Errorf("logreport: parse %s: %w", j.cfg.Input, err)
	}

	if err := writeReport(j.cfg.Output, entries); err != nil {
		return fmt.Errorf("logreport: %w", err)
	}
	j.log.Info("warning report written",
		logx.String("output", j.cfg.Output), logx.Int("entries", len(entries)))
	return nil
}

// Parse scans the log for diagnostic lines and extracts code, message and
// details. Warnings whose code is on the ignore set are dropped; error lines
// are always kept.
func Parse(r io.Reader, ignore map[string]struct{}) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !reDiagnostic.MatchString(line) {
			continue
		}
		fields := strings.Split(line, ": ")
		if len(fields) < 2 {
			continue
		}

		details := ""
		if len(fields) == 4 {
			details = fields[0]
		}
		code := strings.ReplaceAll(fields[len(fields)-2], " ", "")
		if code == "" {
			code = "--"
		}
		message := strings.TrimRight(fields[len(fields)-1], "\r\n")

		isWarning := false
		for _, f := range fields {
			if f == "Warning" {
				isWarning = true
				break
			}
		}
		if isWarning {
			if _, skip := ignore[code]; skip {
				continue
			}
		}
		entries = append(entries, Entry{Code: code, Message: message, Details: details})
	}
	return entries, sc.Err()
}

func writeReport(path string, entries []Entry) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Code", "Message", "Details"}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.Write([]string{e.Code, e.Message, e.Details}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}
