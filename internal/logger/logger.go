// Package logger is the leveled logger shared by the pipeline packages.
// Messages below the configured level are dropped; everything else is
// written through a standard log.Logger with a colored level tag.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

var (
	mu     sync.RWMutex
	level  = LevelInfo
	std    = log.New(os.Stderr, "", log.LstdFlags)
	labels = map[Level]string{
		LevelDebug: color.New(color.FgHiBlack).Sprint("[DEBUG]"),
		LevelInfo:  color.New(color.FgBlue).Sprint("[INFO]"),
		LevelWarn:  color.New(color.FgYellow).Sprint("[WARN]"),
		LevelError: color.New(color.FgRed).Sprint("[ERROR]"),
	}
)

// ParseLevel maps a config string to a Level. Unknown names fall back to info.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info", "":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// SetOutput redirects log output. Useful for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std.SetOutput(w)
}

func logf(l Level, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if l < level {
		return
	}
	std.Printf(labels[l]+" "+format, args...)
}

func Debug(format string, args ...any) { logf(LevelDebug, format, args...) }
func Info(format string, args ...any)  { logf(LevelInfo, format, args...) }
func Warn(format string, args ...any)  { logf(LevelWarn, format, args...) }
func Error(format string, args ...any) { logf(LevelError, format, args...) }
