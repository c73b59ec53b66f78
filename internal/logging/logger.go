package logging

import (
	"log/slog"
	"maps"
	"os"
	"strings"
	"sync"
)

const defaultHistorySize = 500

// Logger is satisfied by *slog.Logger. Accept it where a component only logs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config is the [logging] table of the config file.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// registry owns every module logger and the LevelVar behind it, so levels
// can change at runtime without handing out new loggers.
type registry struct {
	mu          sync.RWMutex
	cfg         Config
	initialized bool
	root        *slog.LevelVar
	levels      map[string]*slog.LevelVar
	loggers     map[string]*slog.Logger
	switches    map[string]*switchHandler
	history     *History
	onEntry     EntryFunc
}

func newRegistry() *registry {
	return &registry{
		root:     &slog.LevelVar{},
		levels:   make(map[string]*slog.LevelVar),
		loggers:  make(map[string]*slog.Logger),
		switches: make(map[string]*switchHandler),
	}
}

var std = newRegistry()

// Initialize configures output and levels and replaces the slog default.
// Loggers handed out earlier keep working; their handlers are rebuilt.
func Initialize(cfg Config) {
	std.mu.Lock()
	defer std.mu.Unlock()

	std.cfg = cfg
	std.initialized = true
	if std.history == nil {
		std.history = NewHistory(defaultHistorySize)
	}
	std.applyLevels()

	for module, sw := range std.switches {
		sw.swap(std.newHandler(std.levels[module]))
	}
	slog.SetDefault(slog.New(std.newHandler(std.root)))
}

// SetLevels applies new global and per-module levels in place. Format
// changes need a restart and are ignored here.
func SetLevels(cfg Config) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.cfg.Level = cfg.Level
	std.cfg.Modules = maps.Clone(cfg.Modules)
	std.applyLevels()
}

// Levels returns the effective level of every known module.
func Levels() map[string]string {
	std.mu.RLock()
	defer std.mu.RUnlock()
	out := make(map[string]string, len(std.levels)+1)
	out["default"] = levelName(std.root.Level())
	for module, lv := range std.levels {
		out[module] = levelName(lv.Level())
	}
	return out
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	std.mu.RLock()
	logger, ok := std.loggers[module]
	std.mu.RUnlock()
	if ok {
		return logger
	}

	std.mu.Lock()
	defer std.mu.Unlock()
	if logger, ok := std.loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	lv.Set(std.levelFor(module))
	sw := newSwitchHandler(std.newHandler(lv))
	logger = slog.New(sw).With("module", module)
	std.levels[module] = lv
	std.switches[module] = sw
	std.loggers[module] = logger
	return logger
}

// GetHistory returns the in-memory log history, nil before Initialize.
func GetHistory() *History {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.history
}

// OnEntry registers fn to receive every entry recorded in the history.
// It lets the events package forward logs without an import cycle.
func OnEntry(fn EntryFunc) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.onEntry = fn
}

// sink returns the current history and callback for the history handler.
func (r *registry) sink() (*History, EntryFunc) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.history, r.onEntry
}

// applyLevels must be called with mu held.
func (r *registry) applyLevels() {
	r.root.Set(r.globalLevel())
	for module, lv := range r.levels {
		lv.Set(r.levelFor(module))
	}
}

func (r *registry) globalLevel() slog.Level {
	if l, ok := parseLevel(r.cfg.Level); ok {
		return l
	}
	return slog.LevelInfo
}

func (r *registry) levelFor(module string) slog.Level {
	if !r.initialized {
		return slog.LevelInfo
	}
	if s, ok := r.cfg.Modules[module]; ok {
		if l, ok := parseLevel(s); ok {
			return l
		}
	}
	return r.globalLevel()
}

// newHandler builds the output chain: stdout when attached, the journal
// when running under systemd, and always the history.
func (r *registry) newHandler(level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var stdout slog.Handler
	if r.cfg.Format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdout)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, newHistoryHandler(r, level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// isStdoutAvailable is false when stdout is /dev/null or closed.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&os.ModeCharDevice != 0 || mode&os.ModeNamedPipe != 0 || mode&os.ModeSocket != 0 || mode.IsRegular()
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// ValidLevel reports whether level names a known level.
func ValidLevel(level string) bool {
	_, ok := parseLevel(level)
	return ok
}

// LevelAtLeast reports whether level is min or more severe. An unknown min
// matches everything.
func LevelAtLeast(level, min string) bool {
	m, ok := parseLevel(min)
	if !ok {
		return true
	}
	l, ok := parseLevel(level)
	return ok && l >= m
}
