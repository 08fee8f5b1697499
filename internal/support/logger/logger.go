// Package logger provides the leveled logging utility used across the
// pipeline. It wraps the standard `log` package and filters messages by the
// globally configured level.
package logger

import (
	"fmt"
	"log"
	"strings"
)

// LogLevel represents the logging level.
type LogLevel int

const (
	// LevelDebug outputs detailed diagnostic information.
	LevelDebug LogLevel = iota
	// LevelInfo outputs general informational messages.
	LevelInfo
	// LevelWarn outputs potential issues.
	LevelWarn
	// LevelError outputs error messages.
	LevelError
	// LevelFatal outputs fatal messages that terminate the process.
	LevelFatal
)

// logLevel is the currently active global level. Messages below it are dropped.
var logLevel = LevelInfo

// SetLogLevel sets the global log level from its string form.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR", "FATAL" (case-insensitive).
// An unknown value falls back to INFO with a notice on standard output.
func SetLogLevel(level string) {
	switch strings.ToUpper(level) {
	case "INFO":
		logLevel = LevelInfo
	case "WARN":
		logLevel = LevelWarn
	case "ERROR":
		logLevel = LevelError
	case "FATAL":
		logLevel = LevelFatal
	case "DEBUG":
		logLevel = LevelDebug
	default:
		fmt.Printf("Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
		logLevel = LevelInfo
	}
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	if logLevel <= LevelDebug {
		log.Printf("[DEBUG] "+format, v...)
	}
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	if logLevel <= LevelInfo {
		log.Printf("[INFO] "+format, v...)
	}
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	if logLevel <= LevelWarn {
		log.Printf("[WARN] "+format, v...)
	}
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	if logLevel <= LevelError {
		log.Printf("[ERROR] "+format, v...)
	}
}

// Fatalf formats and outputs a FATAL level log message, then exits the process.
func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}
