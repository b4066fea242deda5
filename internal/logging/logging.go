// Package logging provides the Logger handle passed through every
// collaborator's constructor. Per the design notes (spec.md §9), there is
// no process-wide logger singleton: main wires one concrete Logger and
// hands it to every component that needs one.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the narrow leveled-logging contract every collaborator
// depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// stdLogger implements Logger on top of the standard library's log.Logger,
// matching the teacher's own use of plain log.Printf throughout comm.go,
// config.go and apis/*.go.
type stdLogger struct {
	out   *log.Logger
	debug bool
}

// Options configures the default Logger.
type Options struct {
	// FilePath, if non-empty, routes output through a rotating file
	// writer instead of stderr.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Debug      bool
}

// New builds the default Logger. With no FilePath it logs to stderr,
// matching the teacher's behavior when run interactively; with FilePath
// set it rotates via lumberjack, for long-running daemon deployments.
func New(opts Options) Logger {
	var w io.Writer = os.Stderr
	if opts.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		}
	}
	return &stdLogger{out: log.New(w, "", log.LstdFlags|log.Lmicroseconds), debug: opts.Debug}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *stdLogger) log(level, msg string, args ...any) {
	l.out.Print(format(level, msg, args...))
}

func format(level, msg string, args ...any) string {
	s := level + ": " + msg
	for i := 0; i+1 < len(args); i += 2 {
		s += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	return s
}

func (l *stdLogger) Debug(msg string, args ...any) {
	if l.debug {
		l.log("DEBUG", msg, args...)
	}
}
func (l *stdLogger) Info(msg string, args ...any)  { l.log("INFO", msg, args...) }
func (l *stdLogger) Warn(msg string, args ...any)  { l.log("WARN", msg, args...) }
func (l *stdLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args...) }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoOp returns a Logger that discards everything, for tests and defaults.
func NoOp() Logger { return noopLogger{} }
