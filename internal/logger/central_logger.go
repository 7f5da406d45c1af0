package logger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	// LoadLocation has to work on hosts without /usr/share/zoneinfo.
	_ "time/tzdata"
)

// LogFilePermissions applies to every log file the logger opens.
const LogFilePermissions = 0o600

var (
	global   *CentralLogger
	globalMu sync.Mutex
)

// SetGlobal installs cl as the logger behind Global.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	global = cl
	globalMu.Unlock()
}

// Global returns the installed CentralLogger, or a console logger at info
// when the CLI has not configured one yet. It never returns nil.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = &CentralLogger{
			config:  &LoggingConfig{DefaultLevel: DefaultLogLevel},
			tz:      time.Local,
			base:    consoleHandler(os.Stdout, slog.LevelInfo),
			modules: map[string]*BufferedFileWriter{},
		}
	}
	return global
}

// CentralLogger owns the configured sinks: console, the main JSON file and
// one JSON file per module that has a module output.
type CentralLogger struct {
	mu      sync.RWMutex
	config  *LoggingConfig
	tz      *time.Location
	base    slog.Handler
	main    *BufferedFileWriter
	modules map[string]*BufferedFileWriter
}

// NewCentralLogger opens every enabled sink in cfg. On error nothing is
// left open.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, errors.New("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz := time.Local
	if cfg.Timezone != "" && cfg.Timezone != "Local" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", cfg.Timezone, err)
		}
		tz = loc
	}

	cl := &CentralLogger{config: cfg, tz: tz, modules: map[string]*BufferedFileWriter{}}

	var handlers []slog.Handler
	if cfg.Console.Enabled {
		handlers = append(handlers, consoleHandler(os.Stdout, parseLevel(cfg.Console.Level)))
	}
	if cfg.FileOutput.Enabled {
		w, err := openLogFile(cfg.FileOutput.Path)
		if err != nil {
			return nil, err
		}
		cl.main = w
		handlers = append(handlers, fileHandler(w, parseLevel(cfg.FileOutput.Level), tz))
	}
	if len(handlers) == 0 {
		handlers = append(handlers, consoleHandler(os.Stdout, parseLevel(cfg.DefaultLevel)))
	}
	cl.base = combine(handlers)

	for name, out := range cfg.ModuleOutputs {
		if !out.Enabled {
			continue
		}
		w, err := openLogFile(out.FilePath)
		if err != nil {
			_ = cl.Close()
			return nil, fmt.Errorf("module %s: %w", name, err)
		}
		cl.modules[name] = w
	}
	return cl, nil
}

func openLogFile(path string) (*BufferedFileWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}
	return NewBufferedFileWriter(path)
}

// Module returns a logger for name. A module with an enabled module output
// logs only to its own file, plus the console when ConsoleAlso is set.
// Everything else goes to the base sinks.
func (cl *CentralLogger) Module(name string) Logger {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	level := parseLevel(cl.config.DefaultLevel)
	if lvl, ok := cl.config.ModuleLevels[name]; ok {
		level = parseLevel(lvl)
	}

	handler := cl.base
	if out, ok := cl.config.ModuleOutputs[name]; ok && out.Enabled {
		if out.Level != "" {
			level = parseLevel(out.Level)
		}
		var handlers []slog.Handler
		if w := cl.modules[name]; w != nil {
			handlers = append(handlers, fileHandler(w, level, cl.tz))
		}
		if out.ConsoleAlso && cl.config.Console != nil && cl.config.Console.Enabled {
			handlers = append(handlers, consoleHandler(os.Stdout, level))
		}
		if len(handlers) > 0 {
			handler = combine(handlers)
		}
	}

	return &slogLogger{handler: handler, floor: level, module: name}
}

// Flush hands buffered lines to the OS. Close also fsyncs.
func (cl *CentralLogger) Flush() error {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	var errs []error
	for _, w := range cl.writers() {
		errs = append(errs, w.Flush())
	}
	return errors.Join(errs...)
}

// Close closes every log file. Loggers handed out earlier keep working
// for console output; file writes after Close fail silently.
func (cl *CentralLogger) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	var errs []error
	for _, w := range cl.writers() {
		errs = append(errs, w.Close())
	}
	cl.main = nil
	cl.modules = map[string]*BufferedFileWriter{}
	return errors.Join(errs...)
}

func (cl *CentralLogger) writers() []*BufferedFileWriter {
	ws := make([]*BufferedFileWriter, 0, len(cl.modules)+1)
	if cl.main != nil {
		ws = append(ws, cl.main)
	}
	for _, w := range cl.modules {
		ws = append(ws, w)
	}
	return ws
}
