// Package logfile manages the daily, append-only result logs.
package logfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// TimestampLayout is the UTC timestamp that prefixes every result line.
	TimestampLayout = "2006-01-02T15:04:05"
	dateLayout      = "2006-01-02"

	KindPing  = "ping"
	KindSpeed = "speed"
)

// Dir is a directory holding one log file per day per kind.
type Dir struct {
	path string
}

// New returns a Dir rooted at path. Nothing is created until Ensure.
func New(path string) *Dir {
	return &Dir{path: path}
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// Ensure creates the directory if it is absent.
func (d *Dir) Ensure() error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("creating log directory %q: %w", d.path, err)
	}
	return nil
}

// File returns the log file path for kind on the UTC date of t.
func (d *Dir) File(kind string, t time.Time) string {
	return filepath.Join(d.path, fmt.Sprintf("%s-%s.log", t.UTC().Format(dateLayout), kind))
}

// EnsureHeader creates path and writes one header line per entry. An existing
// file is left untouched. It reports whether the file was created.
func EnsureHeader(path string, header []string) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating %q: %w", path, err)
	}
	defer f.Close()

	if len(header) > 0 {
		if _, err := f.WriteString(strings.Join(header, "\n") + "\n"); err != nil {
			return true, fmt.Errorf("writing header to %q: %w", path, err)
		}
	}
	return true, nil
}

// AppendLine appends line plus a newline to path with a single write.
func AppendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("appending to %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %q: %w", path, err)
	}
	return nil
}

// Entry is a dated log file found on disk.
type Entry struct {
	Path string
	Kind string
	Date time.Time
}

// List returns the dated log files in the directory. Unrelated files are skipped.
func (d *Dir) List() ([]Entry, error) {
	des, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", d.path, err)
	}

	var entries []Entry
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		e, ok := parseName(de.Name())
		if !ok {
			continue
		}
		e.Path = filepath.Join(d.path, de.Name())
		entries = append(entries, e)
	}
	return entries, nil
}

// Prune removes dated log files older than the UTC date of before.
func (d *Dir) Prune(before time.Time) (int, error) {
	entries, err := d.List()
	if err != nil {
		return 0, err
	}
	cutoff := before.UTC().Truncate(24 * time.Hour)

	removed := 0
	for _, e := range entries {
		if !e.Date.Before(cutoff) {
			continue
		}
		if err := os.Remove(e.Path); err != nil {
			return removed, fmt.Errorf("removing %q: %w", e.Path, err)
		}
		removed++
	}
	return removed, nil
}

func parseName(name string) (Entry, bool) {
	base, ok := strings.CutSuffix(name, ".log")
	if !ok || len(base) <= len(dateLayout)+1 || base[len(dateLayout)] != '-' {
		return Entry{}, false
	}
	date, err := time.Parse(dateLayout, base[:len(dateLayout)])
	if err != nil {
		return Entry{}, false
	}
	kind := base[len(dateLayout)+1:]
	if kind != KindPing && kind != KindSpeed {
		return Entry{}, false
	}
	return Entry{Kind: kind, Date: date}, true
}
