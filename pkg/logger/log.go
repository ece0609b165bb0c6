package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the global logger instance
var Logger *slog.Logger
var LogLevel *slog.LevelVar

func init() {
	LogLevel = &slog.LevelVar{}
	LogLevel.Set(slog.LevelInfo)
	Logger = newLogger(os.Stderr)
}

func newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: LogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "time" {
				return slog.Attr{Key: "timestamp", Value: slog.TimeValue(a.Value.Time())}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetOutput 替换日志输出目标 (测试中用于捕获日志)
func SetOutput(w io.Writer) {
	Logger = newLogger(w)
}

// SetLogLevel 设置全局日志级别，无法识别的级别保持不变并返回 false
func SetLogLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		LogLevel.Set(slog.LevelDebug)
	case "info":
		LogLevel.Set(slog.LevelInfo)
	case "warn", "warning":
		LogLevel.Set(slog.LevelWarn)
	case "error":
		LogLevel.Set(slog.LevelError)
	default:
		return false
	}
	return true
}
