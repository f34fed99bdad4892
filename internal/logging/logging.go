// Package logging builds the component loggers used across the storefront.
//
// Every component logs through a *log.Logger with a bracketed prefix
// ("[sync] ", "[remote] ", ...). Output goes to stderr and, when a log file
// is configured, to a size-rotated file as well.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where logs go.
type Config struct {
	// File is the rotated log file. Empty means stderr only.
	File string

	MaxSizeMB  int // Size before rotation (default 10)
	MaxBackups int // Rotated files kept (default 3)
	MaxAgeDays int // Days to keep rotated files (default 28)

	// Quiet drops stderr output; the file, if any, still gets everything.
	Quiet bool
}

// Factory hands out loggers that share one output.
type Factory struct {
	out  io.Writer
	file *lumberjack.Logger

	mu      sync.Mutex
	loggers map[string]*log.Logger
}

// New builds a Factory from cfg.
func New(cfg Config) (*Factory, error) {
	var writers []io.Writer
	if !cfg.Quiet {
		writers = append(writers, os.Stderr)
	}

	f := &Factory{loggers: make(map[string]*log.Logger)}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, err
		}
		f.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		writers = append(writers, f.file)
	}

	switch len(writers) {
	case 0:
		f.out = io.Discard
	case 1:
		f.out = writers[0]
	default:
		f.out = io.MultiWriter(writers...)
	}
	return f, nil
}

// Discard returns a Factory whose loggers write nowhere.
func Discard() *Factory {
	return &Factory{out: io.Discard, loggers: make(map[string]*log.Logger)}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Logger returns the logger for component, creating it on first use.
func (f *Factory) Logger(component string) *log.Logger {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.loggers[component]; ok {
		return l
	}
	l := log.New(f.out, "["+component+"] ", log.LstdFlags)
	f.loggers[component] = l
	return l
}

// Writer returns the shared output.
func (f *Factory) Writer() io.Writer {
	return f.out
}

// Close flushes and closes the log file, if any.
func (f *Factory) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}
