package common

import (
	"context"
	"fmt"
	"github.com/lmittmann/tint"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// dSyncLogger implements the ILogger interface on top of a shared slog sink
type dSyncLogger struct {
	name  string
	mu    sync.RWMutex
	level logger.LogLevel
	sink  *slog.Logger
}

func (l *dSyncLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *dSyncLogger) enabled(level logger.LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

func (l *dSyncLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.log(slog.LevelDebug, format, args...)
	}
}

func (l *dSyncLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.log(slog.LevelInfo, format, args...)
	}
}

func (l *dSyncLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.log(slog.LevelWarn, format, args...)
	}
}

func (l *dSyncLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.log(slog.LevelError, format, args...)
	}
}

func (l *dSyncLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.log(slog.LevelError, "%s", msg)
	panic(msg)
}

func (l *dSyncLogger) log(level slog.Level, format string, args ...interface{}) {
	l.sink.Log(context.Background(), level, fmt.Sprintf(format, args...), "pkg", l.name)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	sinkOnce sync.Once
	sink     *slog.Logger

	// names of all loggers used by dSync, so the level can be changed at runtime
	loggerNames = []string{"bus", "relay", "cache", "facts", "node", "metrics", "store", "transport", "cmd"}

	currentLevel   = "info"
	currentLevelMu sync.Mutex
)

// newSink creates the shared slog logger. Colours are only used on terminals.
func newSink() *slog.Logger {
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stdout), &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02 15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	}))
}

// CreateLogger implements the dragonboat logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	sinkOnce.Do(func() { sink = newSink() })
	return &dSyncLogger{
		name:  pkgName,
		level: logger.INFO,
		sink:  sink,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	case "critical":
		return logger.CRITICAL, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers installs the dSync logger factory and sets all loggers to level
func InitLoggers(level string) error {
	logger.SetLoggerFactory(CreateLogger)
	return SetLogLevel(level)
}

// SetLogLevel changes the level of every dSync logger
func SetLogLevel(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}
	for _, name := range loggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}

	currentLevelMu.Lock()
	currentLevel = strings.ToLower(strings.TrimSpace(level))
	currentLevelMu.Unlock()
	return nil
}

// LogLevel returns the level last applied with SetLogLevel
func LogLevel() string {
	currentLevelMu.Lock()
	defer currentLevelMu.Unlock()
	return currentLevel
}
