package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// RotationConfig controls when the log file is rotated and how many old
// files are kept.
type RotationConfig struct {
	// MaxSize in bytes. Zero uses 10 MiB.
	MaxSize int64
	// MaxAge in days. Zero keeps files regardless of age.
	MaxAge int
	// MaxBackups limits the number of rotated files. Zero keeps all.
	MaxBackups int
	// Daily rotates at the first write after midnight.
	Daily bool
}

const defaultMaxSize = 10 << 20

// DefaultRotationConfig returns the daemon's rotation policy.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    defaultMaxSize,
		MaxAge:     30,
		MaxBackups: 5,
		Daily:      true,
	}
}

// ParseSize parses a human size such as "10MB" or "512 KiB".
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parsing size %q: %w", s, err)
	}
	return int64(n), nil
}

// RotatingWriter is an io.WriteCloser that rotates its file by size and
// by day. Writes take an advisory lock on the file so the CLI and the
// daemon can share it.
type RotatingWriter struct {
	mu     sync.Mutex
	path   string
	cfg    RotationConfig
	file   *os.File
	size   int64
	opened time.Time
	now    func() time.Time
}

// NewRotatingWriter opens path for appending, creating parent directories.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultMaxSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	w := &RotatingWriter{path: path, cfg: cfg, now: time.Now}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()
	return w, nil
}

// Path returns the active log file.
func (w *RotatingWriter) Path() string {
	return w.path
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.due(int64(len(p))) {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}

	lockFile(w.file)
	defer unlockFile(w.file)

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing log file: %w", err)
	}
	return n, nil
}

// Close syncs and closes the file. It is safe to call more than once.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing log file: %w", err)
	}
	return f.Close()
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	w.opened = info.ModTime()
	if w.size == 0 {
		w.opened = w.now()
	}
	return nil
}

func (w *RotatingWriter) due(n int64) bool {
	if w.size > 0 && w.size+n > w.cfg.MaxSize {
		return true
	}
	if !w.cfg.Daily {
		return false
	}
	y1, m1, d1 := w.opened.Date()
	y2, m2, d2 := w.now().Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

// backupName returns base.<timestamp>[-n].ext, unique within the directory.
func (w *RotatingWriter) backupName() string {
	ext := filepath.Ext(w.path)
	base := strings.TrimSuffix(w.path, ext)
	stamp := w.now().Format("2006-01-02-150405")
	name := fmt.Sprintf("%s.%s%s", base, stamp, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s.%s-%d%s", base, stamp, i, ext)
	}
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing log file: %w", err)
	}
	w.file = nil
	if err := os.Rename(w.path, w.backupName()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("renaming log file: %w", err)
	}
	if err := w.open(); err != nil {
		return err
	}
	w.opened = w.now()
	w.prune()
	return nil
}

// prune deletes rotated files beyond MaxBackups or older than MaxAge.
// Failures are ignored.
func (w *RotatingWriter) prune() {
	dir := filepath.Dir(w.path)
	base := filepath.Base(w.path)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type backup struct {
		path string
		mod  time.Time
	}
	var backups []backup
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == base || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{filepath.Join(dir, name), info.ModTime()})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].mod.After(backups[j].mod) })

	maxAge := time.Duration(w.cfg.MaxAge) * 24 * time.Hour
	now := w.now()
	for i, b := range backups {
		tooMany := w.cfg.MaxBackups > 0 && i >= w.cfg.MaxBackups
		tooOld := w.cfg.MaxAge > 0 && now.Sub(b.mod) > maxAge
		if tooMany || tooOld {
			_ = os.Remove(b.path)
		}
	}
}
