// Package klog is a minimal, level-gated wrapper over the standard log
// package: direct use of log.Printf at warn/error sites rather than a
// structured logging library (see DESIGN.md).
package klog

import (
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Level orders verbosity, least to most.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var current atomic.Int32

func init() {
	SetLevel(levelFromString(os.Getenv("LOG_LEVEL")))
}

func levelFromString(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel changes the minimum level that is actually logged.
func SetLevel(l Level) {
	current.Store(int32(l))
}

func enabled(l Level) bool {
	return int32(l) >= current.Load()
}

func Debugf(format string, args ...any) {
	if enabled(LevelDebug) {
		log.Printf("kernel: DEBUG "+format, args...)
	}
}

func Infof(format string, args ...any) {
	if enabled(LevelInfo) {
		log.Printf("kernel: "+format, args...)
	}
}

func Warnf(format string, args ...any) {
	if enabled(LevelWarn) {
		log.Printf("kernel: WARN "+format, args...)
	}
}

func Errorf(format string, args ...any) {
	if enabled(LevelError) {
		log.Printf("kernel: ERROR "+format, args...)
	}
}
