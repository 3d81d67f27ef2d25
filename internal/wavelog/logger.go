// Package wavelog writes the per-run tuning result log: one append-only
// text file per process run (numbered within the day), timestamped per
// line, mirrored to a diagnostic
// Logger so results show up both on disk and wherever the process sends
// its own logs.
package wavelog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/n5hz/wavetuner/internal/logging"
)

// Logger appends timestamped result lines to a waveLog-MM-dd-yy-N.txt
// file. N is the smallest positive integer for which that file did not
// already exist when Open ran, so every process run gets its own file
// and nothing already on disk is ever overwritten.
type Logger struct {
	file *os.File
	path string
	diag logging.Logger
}

// Open creates (or resumes numbering for) today's waveform log under dir.
func Open(dir string, diag logging.Logger) (*Logger, error) {
	if diag == nil {
		diag = logging.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wavelog: create log directory: %w", err)
	}
	path, err := nextLogPath(dir, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wavelog: open %s: %w", path, err)
	}
	return &Logger{file: f, path: path, diag: diag}, nil
}

// Path returns the file this Logger is writing to.
func (l *Logger) Path() string {
	return l.path
}

// DebugAndLog writes msg to the diagnostic logger at debug level and
// appends a UTC-timestamped copy to the result file, flushing
// immediately so a crash mid-run never loses a written result.
func (l *Logger) DebugAndLog(msg string) error {
	l.diag.Debug(msg)
	line := fmt.Sprintf("<%s> %s\n", time.Now().UTC().Format("01-02-06 15:04:05 Z"), msg)
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("wavelog: write: %w", err)
	}
	return l.file.Sync()
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	return l.file.Close()
}

func nextLogPath(dir string, now time.Time) (string, error) {
	stamp := now.Format("01-02-06")
	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("waveLog-%s-%d.txt", stamp, n))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("wavelog: stat %s: %w", candidate, err)
		}
	}
}
