package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) tag() string {
	switch l {
	case LevelDebug:
		return "[DEBUG] "
	case LevelInfo:
		return "[INFO] "
	case LevelWarn:
		return "[WARNING] "
	default:
		return "[ERROR] "
	}
}

var (
	mu      sync.RWMutex
	out     *log.Logger
	minimum = LevelInfo
	logFile *os.File

	DebugEnabled = false
)

// InitLogging sets up logging. With debug off nothing is written. With
// debug on, output goes to logPath, or to stderr when logPath is empty.
func InitLogging(debugMode bool, logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	DebugEnabled = debugMode
	closeLocked()

	if !debugMode {
		out = nil
		return nil
	}

	minimum = LevelDebug

	if logPath == "" {
		out = log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds)
		return nil
	}

	err := os.MkdirAll(filepath.Dir(logPath), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logFile = f
	out = log.New(f, "", log.Ldate|log.Ltime|log.Lshortfile)

	return nil
}

// SetOutput sends messages at or above level to w. A nil w disables
// logging.
func SetOutput(w io.Writer, level Level) {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()

	minimum = level
	DebugEnabled = level == LevelDebug && w != nil

	if w == nil {
		out = nil
		return
	}

	out = log.New(w, "", 0)
}

// Close closes the log file if open.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	out = nil
}

func closeLocked() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func logf(level Level, format string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if out == nil || level < minimum {
		return
	}

	_ = out.Output(3, level.tag()+fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) {
	logf(LevelDebug, format, v...)
}

func Infof(format string, v ...any) {
	logf(LevelInfo, format, v...)
}

func Warnf(format string, v ...any) {
	logf(LevelWarn, format, v...)
}

// Errorf logs an error message.
func Errorf(format string, v ...any) {
	logf(LevelError, format, v...)
}
