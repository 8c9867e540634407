package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ihiteshgupta/avatar-client/internal/config"
)

// LoggerResult holds the configured logger and the file it writes to, if any.
type LoggerResult struct {
	Logger   *slog.Logger
	LogFile  io.WriteCloser
	FilePath string
}

// Close closes the log file if one was opened.
func (r *LoggerResult) Close() error {
	if r.LogFile != nil {
		return r.LogFile.Close()
	}
	return nil
}

// parseLevel maps a config log level to a slog level.
func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger builds the process logger. Output goes to stderr, or to a
// rotating file when cfg.LogFile is set. Debug mode forces the debug level.
func SetupLogger(cfg *config.Config, debug bool) (*LoggerResult, error) {
	level := parseLevel(cfg.LogLevel)
	if debug {
		level = slog.LevelDebug
	}

	result := &LoggerResult{}
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0700); err != nil {
			return nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
		}
		result.LogFile = lj
		result.FilePath = cfg.LogFile
		w = lj
	}

	result.Logger = newLogger(w, cfg.LogFormat, level)
	return result, nil
}

func newLogger(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
