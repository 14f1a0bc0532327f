package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation settings shared by every log file the controller writes.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAge:     DefaultMaxAgeDays,
	}
}

// New returns the controller's diagnostic logger writing JSON lines to path.
// An empty path disables logging. The closer releases the file.
func New(path string, debug bool) (zerolog.Logger, io.Closer, error) {
	if path == "" {
		return zerolog.Nop(), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	w := rotating(path)
	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logger, w, nil
}

// ServiceOutput returns a rotating file for a server's output at
// dir/<service>.log. An empty dir returns nil.
func ServiceOutput(dir, service string) (io.WriteCloser, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return rotating(filepath.Join(dir, service+".log")), nil
}
