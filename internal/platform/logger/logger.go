// Package logger provides structured logging for the perk server.
// Every grant, jump and announcement should be traceable through this.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger provides structured logging with context.
type Logger struct {
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
	debug       bool
}

// NewLogger creates a new logger instance.
func NewLogger() *Logger {
	return &Logger{
		infoLogger:  log.New(os.Stdout, "[VIP-INFO] ", log.Ldate|log.Ltime|log.Lshortfile),
		warnLogger:  log.New(os.Stdout, "[VIP-WARN] ", log.Ldate|log.Ltime|log.Lshortfile),
		errorLogger: log.New(os.Stderr, "[VIP-ERROR] ", log.Ldate|log.Ltime|log.Lshortfile),
		debugLogger: log.New(os.Stdout, "[VIP-DEBUG] ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// NewDiscard returns a logger that drops everything. Used by tests.
func NewDiscard() *Logger {
	return &Logger{
		infoLogger:  log.New(io.Discard, "", 0),
		warnLogger:  log.New(io.Discard, "", 0),
		errorLogger: log.New(io.Discard, "", 0),
		debugLogger: log.New(io.Discard, "", 0),
	}
}

// SetDebug toggles Debug output.
func (l *Logger) SetDebug(on bool) {
	l.debug = on
}

// Info logs informational messages.
func (l *Logger) Info(msg string) {
	l.infoLogger.Output(2, msg)
}

// Infof logs a formatted informational message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.infoLogger.Output(2, fmt.Sprintf(format, args...))
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string) {
	l.warnLogger.Output(2, msg)
}

// Warnf logs a formatted warning.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.warnLogger.Output(2, fmt.Sprintf(format, args...))
}

// Error logs error messages.
func (l *Logger) Error(msg string) {
	l.errorLogger.Output(2, msg)
}

// Errorf logs a formatted error.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.errorLogger.Output(2, fmt.Sprintf(format, args...))
}

// Debugf logs only when debug output is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.debugLogger.Output(2, fmt.Sprintf(format, args...))
}

// Event logs a specific perk event (grant, jump, announce) for operator oversight.
func (l *Logger) Event(eventType string, actorID string, details string) {
	l.infoLogger.Output(2, fmt.Sprintf("[EVENT:%s] Actor:%s | %s", eventType, actorID, details))
}
