// Package logging provides component loggers shared by the resweep CLI, its
// TUI and the resweepd daemon. Output goes to a size-rotated log file and,
// optionally, to stderr.
//
//	if err := logging.Init(logging.DefaultConfig()); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	log := logging.Get("controller")
//	log.Info("iteration complete", "setup", "em_setup1", "accepted", 3)
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

// Level is a logging severity.
type Level int

// Severities, least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

// String returns the lower-case level name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
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

// ErrInvalidLevel is returned by ParseLevel for unknown names.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses "debug", "info", "warn"/"warning" or "error".
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		name = "warn"
	}
	for lvl, n := range levelNames {
		if n == name {
			return lvl, nil
		}
	}
	return LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// Config configures the logging system.
type Config struct {
	// Level is the default level for file output.
	Level string

	// Path is the log file. Empty means DefaultLogPath().
	Path string

	// Rotation controls log file rotation.
	Rotation RotationConfig

	// Components overrides the level for individual components,
	// e.g. {"daemon": "debug"}.
	Components map[string]string

	// Console mirrors entries at or above this level to stderr.
	// Empty disables console output.
	Console string

	// Interactive suppresses console output because a full-screen UI owns
	// the terminal, and keeps recent entries for Recent.
	Interactive bool
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}

// DefaultLogPath returns $XDG_STATE_HOME/resweep/resweep.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "resweep", "resweep.log")
}

// Entry is a log record delivered to subscribers.
type Entry struct {
	Time      time.Time
	Level     Level
	Component string
	Message   string
}

// Logger writes entries for one component. Loggers are cheap handles:
// their sinks are resolved on every call, so a logger obtained before Init
// starts writing once Init has run.
type Logger struct {
	component string
	keyvals   []interface{}
}

// Debug logs at debug level. Keyvals are alternating keys and values.
func (l *Logger) Debug(msg string, keyvals ...interface{}) { l.emit(LevelDebug, msg, keyvals) }

// Info logs at info level.
func (l *Logger) Info(msg string, keyvals ...interface{}) { l.emit(LevelInfo, msg, keyvals) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) { l.emit(LevelWarn, msg, keyvals) }

// Error logs at error level.
func (l *Logger) Error(msg string, keyvals ...interface{}) { l.emit(LevelError, msg, keyvals) }

// With returns a logger that adds keyvals to every entry.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	kv := make([]interface{}, 0, len(l.keyvals)+len(keyvals))
	kv = append(kv, l.keyvals...)
	kv = append(kv, keyvals...)
	return &Logger{component: l.component, keyvals: kv}
}

func (l *Logger) emit(level Level, msg string, keyvals []interface{}) {
	set := global.sinksFor(l.component)
	if len(l.keyvals) > 0 {
		keyvals = append(append(make([]interface{}, 0, len(l.keyvals)+len(keyvals)), l.keyvals...), keyvals...)
	}
	for _, s := range set.sinks {
		s.Log(level.charm(), msg, keyvals...)
	}
	if level >= set.level {
		global.publish(Entry{Time: time.Now(), Level: level, Component: l.component, Message: msg})
	}
}

// sinkSet is the resolved output of one component.
type sinkSet struct {
	level Level
	sinks []*log.Logger
}

// recentSize is the number of entries kept for Recent in interactive mode.
const recentSize = 200

type registry struct {
	mu          sync.RWMutex
	ready       bool
	writer      *RotatingWriter
	cfg         Config
	level       Level
	console     Level
	overrides   map[string]Level
	loggers     map[string]*Logger
	sets        map[string]*sinkSet
	subscribers map[chan Entry]struct{}
	recent      []Entry
}

var global = &registry{
	overrides:   map[string]Level{},
	loggers:     map[string]*Logger{},
	sets:        map[string]*sinkSet{},
	subscribers: map[chan Entry]struct{}{},
}

// Init configures logging. Loggers obtained before Init discard their output
// and are rebuilt against the new configuration.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	overrides := make(map[string]Level, len(cfg.Components))
	for comp, name := range cfg.Components {
		lvl, err := ParseLevel(name)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		overrides[comp] = lvl
	}
	console := Level(-1)
	if cfg.Console != "" && !cfg.Interactive {
		if console, err = ParseLevel(cfg.Console); err != nil {
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
	global.cfg = cfg
	global.level = level
	global.console = console
	global.overrides = overrides
	global.recent = nil
	global.ready = true
	global.sets = map[string]*sinkSet{}
	return nil
}

// Get returns the logger for component, creating it on first use.
func Get(component string) *Logger {
	global.mu.RLock()
	l, ok := global.loggers[component]
	global.mu.RUnlock()
	if ok {
		return l
	}

	global.mu.Lock()
	defer global.mu.Unlock()
	if l, ok := global.loggers[component]; ok {
		return l
	}
	l = &Logger{component: component}
	global.loggers[component] = l
	return l
}

func (r *registry) sinksFor(component string) *sinkSet {
	r.mu.RLock()
	set, ok := r.sets[component]
	r.mu.RUnlock()
	if ok {
		return set
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.sets[component]; ok {
		return set
	}
	set = r.build(component)
	r.sets[component] = set
	return set
}

// build must be called with r.mu held.
func (r *registry) build(component string) *sinkSet {
	level := r.level
	if lvl, ok := r.overrides[component]; ok {
		level = lvl
	}

	if !r.ready {
		return &sinkSet{
			level: level,
			sinks: []*log.Logger{log.NewWithOptions(io.Discard, log.Options{Level: level.charm()})},
		}
	}

	sinks := []*log.Logger{log.NewWithOptions(r.writer, log.Options{
		Level:           level.charm(),
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          component,
	})}
	if r.console >= 0 {
		sinks = append(sinks, log.NewWithOptions(os.Stderr, log.Options{
			Level:           r.console.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
			Prefix:          component,
		}))
	}
	return &sinkSet{level: level, sinks: sinks}
}

// Close flushes the log file and detaches subscribers. Loggers keep working
// but discard output until the next Init.
func Close() error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if !global.ready {
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
	global.ready = false
	global.recent = nil
	global.sets = map[string]*sinkSet{}
	if err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// Subscribe returns a channel receiving every entry at or above its
// component's level. Slow readers miss entries rather than block logging.
func Subscribe() <-chan Entry {
	global.mu.Lock()
	defer global.mu.Unlock()

	ch := make(chan Entry, 64)
	global.subscribers[ch] = struct{}{}
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

// Recent returns up to n of the latest entries, oldest first. Entries are
// only retained in interactive mode.
func Recent(n int) []Entry {
	global.mu.RLock()
	defer global.mu.RUnlock()

	if n > len(global.recent) {
		n = len(global.recent)
	}
	return append([]Entry(nil), global.recent[len(global.recent)-n:]...)
}

func (r *registry) publish(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.Interactive && r.ready {
		r.recent = append(r.recent, e)
		if len(r.recent) > recentSize {
			r.recent = r.recent[len(r.recent)-recentSize:]
		}
	}
	for ch := range r.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}
