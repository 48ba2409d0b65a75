// Package logging configures the daemon's structured logger. In
// foreground/debug mode it writes JSON to stderr (optionally
// rotated with lumberjack when pointed at a file); otherwise it
// writes to the local syslog daemon, matching the source's
// syslog-by-default, stderr-under-D behavior.
package logging

import (
	"fmt"
	"log/slog"
	"log/syslog"
	"os"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how the daemon logs.
type Config struct {
	// Foreground selects stderr/file logging instead of syslog,
	// mirroring the -D CLI flag.
	Foreground bool
	// FilePath, if set while Foreground is true, routes logs to a
	// rotated file instead of stderr.
	FilePath string
	// Debug lowers the minimum level to slog.LevelDebug.
	Debug bool
}

// Init builds the process-wide default slog.Logger for cfg.
func Init(cfg Config) (*slog.Logger, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	if !cfg.Foreground {
		writer, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, "netdumpd")
		if err != nil {
			return nil, fmt.Errorf("logging: connect to syslog: %w", err)
		}
		handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})
		logger := slog.New(handler)
		slog.SetDefault(logger)
		return logger, nil
	}

	var out *os.File = os.Stderr
	var writer interface {
		Write([]byte) (int, error)
	} = out

	if cfg.FilePath != "" {
		writer = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
