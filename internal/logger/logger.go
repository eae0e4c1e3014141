// Package logger は JSON 構造化ログの設定を提供します。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup は JSON 構造化ログ出力の slog.Logger を生成して返します。
func Setup(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler)
}

// SetupDefault は JSON 構造化ログ出力をグローバルロガーとして設定します。
// w が nil の場合は os.Stdout に出力します。
func SetupDefault(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w, level)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel はログレベル名を slog.Level に変換します。未知の値は Info です。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
