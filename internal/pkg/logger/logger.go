package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/toolbox_server/config"
)

// Init 配置全局 zerolog
func Init(cfg config.LogConfig, component string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	var writer io.Writer = os.Stderr
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(writer).With().Timestamp()
	if component != "" {
		ctx = ctx.Str("component", component)
	}
	log.Logger = ctx.Logger()
	return log.Logger
}

// ParseLevel 解析日志级别，未知值按 info 处理
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
