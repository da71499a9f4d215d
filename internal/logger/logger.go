package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level orders log severities
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// ParseLevel parses debug|info|warning|error, defaulting to info
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger provides leveled logging (debug/info/warning/error) to stdout/stderr and
// optionally to per-level files.
type Logger struct {
	debugLog   *log.Logger
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	level      Level
	files      []*os.File
	mu         sync.Mutex
}

const flags = log.Ldate | log.Ltime | log.Lshortfile

// New creates a Logger writing every level to w
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		debugLog:   log.New(w, "DEBUG   ", flags),
		infoLog:    log.New(w, "INFO    ", flags),
		warningLog: log.New(w, "WARNING ", flags),
		errorLog:   log.New(w, "ERROR   ", flags),
		level:      level,
	}
}

// Discard returns a Logger that drops everything
func Discard() *Logger {
	return New(io.Discard, LevelError+1)
}

// NewLogger creates a Logger writing to the console and, when logDir is not empty, to
// info.log, warning.log and error.log inside it.
func NewLogger(logDir string, level Level) (*Logger, error) {
	if logDir == "" {
		l := New(os.Stdout, level)
		l.errorLog.SetOutput(os.Stderr)
		return l, nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{level: level}
	infoFile, err := l.openLogFile(filepath.Join(logDir, "info.log"))
	if err != nil {
		return nil, err
	}
	warningFile, err := l.openLogFile(filepath.Join(logDir, "warning.log"))
	if err != nil {
		l.Close()
		return nil, err
	}
	errorFile, err := l.openLogFile(filepath.Join(logDir, "error.log"))
	if err != nil {
		l.Close()
		return nil, err
	}

	infoWriter := io.MultiWriter(os.Stdout, infoFile)
	l.debugLog = log.New(infoWriter, "DEBUG   ", flags)
	l.infoLog = log.New(infoWriter, "INFO    ", flags)
	l.warningLog = log.New(io.MultiWriter(os.Stdout, warningFile), "WARNING ", flags)
	l.errorLog = log.New(io.MultiWriter(os.Stderr, errorFile), "ERROR   ", flags)
	return l, nil
}

// openLogFile opens or creates a log file for appending
func (l *Logger) openLogFile(filename string) (*os.File, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filename, err)
	}
	l.files = append(l.files, file)
	return file, nil
}

// Close closes the log files
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first error
	for _, f := range l.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.files = nil
	return first
}

func (l *Logger) output(target *log.Logger, level Level, format string, v ...interface{}) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	target.Output(3, fmt.Sprintf(format, v...))
}

// Debug writes a formatted debug-level log entry
func (l *Logger) Debug(format string, v ...interface{}) {
	l.output(l.debugLog, LevelDebug, format, v...)
}

// Info writes a formatted info-level log entry
func (l *Logger) Info(format string, v ...interface{}) {
	l.output(l.infoLog, LevelInfo, format, v...)
}

// Warning writes a formatted warning-level log entry
func (l *Logger) Warning(format string, v ...interface{}) {
	l.output(l.warningLog, LevelWarning, format, v...)
}

// Error writes a formatted error-level log entry
func (l *Logger) Error(format string, v ...interface{}) {
	l.output(l.errorLog, LevelError, format, v...)
}
