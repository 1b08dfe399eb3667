// Package logging provides component loggers for the spectra CLI and
// daemon, backed by charmbracelet/log and a rotating log file.
//
//	if err := logging.Init(logging.DefaultConfig()); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logging.Get("controller").Info("state changed", "from", "Standby", "to", "Operate")
//
// Loggers obtained before Init discard their output and are rebuilt in place
// when Init runs.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level is a log severity.
type Level int

// Levels, least severe first.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "unknown"
	}
	return levelNames[l]
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned for an unknown level name.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a level name. "warning" is accepted for warn.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// Config configures Init.
type Config struct {
	// Level is the default level.
	Level string

	// Path is the log file. Empty uses DefaultLogPath.
	Path string

	Rotation RotationConfig

	// Components overrides Level per component, e.g. {"acquisition": "debug"}.
	Components map[string]string

	// ConsoleLevel, when set, also writes entries at or above it to stderr.
	ConsoleLevel string

	// BufferSize keeps the most recent entries in memory for Recent.
	// Zero disables the buffer.
	BufferSize int
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}

// DefaultLogPath returns $XDG_STATE_HOME/spectra/spectra.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "spectra", "spectra.log")
}

// Entry is one log record as seen by subscribers and the recent buffer.
type Entry struct {
	Time      time.Time
	Level     Level
	Component string
	Message   string
	// Fields holds the key/value pairs rendered as "k=v" separated by spaces.
	Fields string
}

func (e Entry) String() string {
	s := fmt.Sprintf("%s %-5s %s: %s", e.Time.Format(time.RFC3339), strings.ToUpper(e.Level.String()), e.Component, e.Message)
	if e.Fields != "" {
		s += " " + e.Fields
	}
	return s
}

// Logger writes entries for one component.
type Logger struct {
	component string
	level     Level
	file      *log.Logger
	console   *log.Logger
	fields    []any
}

func (l *Logger) Debug(msg string, kv ...any) { l.emit(LevelDebug, msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.emit(LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.emit(LevelWarn, msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { l.emit(LevelError, msg, kv) }

// With returns a logger that adds kv to every entry.
func (l *Logger) With(kv ...any) *Logger {
	child := *l
	child.fields = append(append([]any(nil), l.fields...), kv...)
	child.file = l.file.With(kv...)
	if l.console != nil {
		child.console = l.console.With(kv...)
	}
	return &child
}

func (l *Logger) emit(level Level, msg string, kv []any) {
	write(l.file, level, msg, kv)
	if l.console != nil {
		write(l.console, level, msg, kv)
	}
	if level < l.level {
		return
	}
	global.publish(Entry{
		Time:      time.Now(),
		Level:     level,
		Component: l.component,
		Message:   msg,
		Fields:    formatFields(append(append([]any(nil), l.fields...), kv...)),
	})
}

func write(lg *log.Logger, level Level, msg string, kv []any) {
	switch level {
	case LevelDebug:
		lg.Debug(msg, kv...)
	case LevelInfo:
		lg.Info(msg, kv...)
	case LevelWarn:
		lg.Warn(msg, kv...)
	case LevelError:
		lg.Error(msg, kv...)
	}
}

func formatFields(kv []any) string {
	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		if i+1 < len(kv) {
			fmt.Fprintf(&b, "%v=%v", kv[i], kv[i+1])
		} else {
			fmt.Fprintf(&b, "%v", kv[i])
		}
	}
	return b.String()
}

type registry struct {
	mu          sync.RWMutex
	initialized bool
	writer      *RotatingWriter
	level       Level
	components  map[string]Level
	console     bool
	consoleLvl  Level
	loggers     map[string]*Logger
	buffer      *LogBuffer
	subscribers map[chan Entry]struct{}
}

var global = &registry{
	components:  make(map[string]Level),
	loggers:     make(map[string]*Logger),
	subscribers: make(map[chan Entry]struct{}),
}

// Init opens the log file and applies cfg to every logger, including ones
// handed out earlier. Calling Init again replaces the configuration.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	components := make(map[string]Level, len(cfg.Components))
	for name, s := range cfg.Components {
		l, err := ParseLevel(s)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", name, err)
		}
		components[name] = l
	}
	var consoleLvl Level
	if cfg.ConsoleLevel != "" {
		if consoleLvl, err = ParseLevel(cfg.ConsoleLevel); err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	global.mu.Lock()
	defer global.mu.Unlock()

	if global.writer != nil {
		_ = global.writer.Close()
	}
	global.writer = writer
	global.level = level
	global.components = components
	global.console = cfg.ConsoleLevel != ""
	global.consoleLvl = consoleLvl
	global.buffer = nil
	if cfg.BufferSize > 0 {
		global.buffer = NewLogBuffer(cfg.BufferSize)
	}
	global.initialized = true

	for name, lg := range global.loggers {
		*lg = *global.build(name)
	}
	return nil
}

// Get returns the logger for component. Repeated calls return the same
// logger.
func Get(component string) *Logger {
	global.mu.RLock()
	lg, ok := global.loggers[component]
	global.mu.RUnlock()
	if ok {
		return lg
	}

	global.mu.Lock()
	defer global.mu.Unlock()
	if lg, ok := global.loggers[component]; ok {
		return lg
	}
	lg = global.build(component)
	global.loggers[component] = lg
	return lg
}

// build must be called with r.mu held.
func (r *registry) build(component string) *Logger {
	level := r.level
	if l, ok := r.components[component]; ok {
		level = l
	}

	lg := &Logger{component: component, level: level}
	if !r.initialized {
		lg.file = log.NewWithOptions(io.Discard, log.Options{Prefix: component})
		lg.level = LevelError + 1
		return lg
	}

	lg.file = log.NewWithOptions(r.writer, log.Options{
		Level:           level.charm(),
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          component,
	})
	if r.console {
		lg.console = log.NewWithOptions(os.Stderr, log.Options{
			Level:           r.consoleLvl.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
			Prefix:          component,
		})
	}
	return lg
}

// Close flushes the log file, closes every subscription and returns the
// loggers to discard mode.
func Close() error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if !global.initialized {
		return nil
	}
	for ch := range global.subscribers {
		close(ch)
		delete(global.subscribers, ch)
	}

	var err error
	if global.writer != nil {
		err = global.writer.Close()
		global.writer = nil
	}
	global.initialized = false
	global.buffer = nil
	global.level = LevelInfo
	global.components = make(map[string]Level)
	for name, lg := range global.loggers {
		*lg = *global.build(name)
	}
	if err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// Subscribe returns a channel receiving entries at or above each
// component's level. Entries are dropped while the channel is full.
func Subscribe(size int) <-chan Entry {
	if size <= 0 {
		size = DefaultBufferSize
	}
	ch := make(chan Entry, size)
	global.mu.Lock()
	global.subscribers[ch] = struct{}{}
	global.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch. The channel is not closed.
func Unsubscribe(ch <-chan Entry) {
	global.mu.Lock()
	defer global.mu.Unlock()
	for sub := range global.subscribers {
		if sub == ch {
			delete(global.subscribers, sub)
			return
		}
	}
}

// Recent returns up to n of the newest buffered entries, oldest first. It
// returns nil when the buffer is disabled.
func Recent(n int) []Entry {
	global.mu.RLock()
	defer global.mu.RUnlock()
	if global.buffer == nil {
		return nil
	}
	return global.buffer.Last(n)
}

func (r *registry) publish(e Entry) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.buffer != nil {
		r.buffer.Add(e)
	}
	for ch := range r.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}
