package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/antigravity/summarizer-gateway/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a new logger instance
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	// 确保日志目录存在
	if cfg.Output != "" {
		dir := filepath.Dir(cfg.Output)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var cores []zapcore.Core

	// 文件输出
	if cfg.Output != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(fileEncoder(cfg.Format), fileWriter, level))
	}

	// 控制台输出
	if cfg.ConsoleOutput || len(cores) == 0 {
		consoleWriter := zapcore.AddSync(os.Stdout)
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig(true)), consoleWriter, level))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// NewDevelopment creates a development logger (console output with color)
func NewDevelopment() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

func fileEncoder(format string) zapcore.Encoder {
	if strings.EqualFold(format, "console") {
		return zapcore.NewConsoleEncoder(encoderConfig(false))
	}
	return zapcore.NewJSONEncoder(encoderConfig(false))
}

func encoderConfig(color bool) zapcore.EncoderConfig {
	levelEncoder := zapcore.LowercaseLevelEncoder
	if color {
		levelEncoder = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// ClientIP returns a zap field for the caller's network address.
func ClientIP(ip string) zap.Field { return zap.String("client_ip", ip) }

// KeyPrefix returns a zap field carrying a masked key.
func KeyPrefix(key string) zap.Field { return zap.String("key_prefix", MaskKey(key)) }

// Repo returns a zap field for repository coordinates.
func Repo(ownerName string) zap.Field { return zap.String("repo", ownerName) }

// MaskKey returns a masked version of the API key for logging
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
