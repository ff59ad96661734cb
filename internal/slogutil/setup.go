package slogutil

import (
	"io"
	"log/slog"

	"aisum/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup builds the process logger: always to console, and additionally to
// cfg.File (rotated at cfg.MaxSize) when set. A non-nil override replaces
// cfg.Level, which is how -v and -q win over the config file. The returned
// closer releases the log file.
func Setup(cfg config.LoggingConfig, console io.Writer, override *slog.Level) (*slog.Logger, io.Closer, error) {
	level := LevelFromString(cfg.Level)
	if override != nil {
		level = *override
	}
	opts := &slog.HandlerOptions{Level: level}
	consoleHandler := NewHandler(console, opts)
	if cfg.File == "" {
		return slog.New(consoleHandler), nopCloser{}, nil
	}

	rf, err := OpenRotatingFile(cfg.File, ParseSize(cfg.MaxSize), cfg.MaxBackups)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(NewTeeHandler(consoleHandler, NewHandler(rf, opts)))
	return logger, rf, nil
}
