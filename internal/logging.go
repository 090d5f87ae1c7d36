package internal

import (
	"io"
	"log/slog"
	"os"

	"github.com/mama165/sdk-go/logs"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogger builds the process logger. Without a log file it delegates to
// the shared SDK logger; with one it writes JSON to a size-rotated file and
// mirrors it to stderr.
func SetupLogger(level, file string) *slog.Logger {
	if file == "" {
		return logs.GetLoggerFromString(level)
	}

	rotated := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	handler := slog.NewJSONHandler(io.MultiWriter(os.Stderr, rotated), &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
