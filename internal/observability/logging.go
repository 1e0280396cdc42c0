// Package observability holds the logging, metrics, and tracing plumbing
// shared by the server and the routing core.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig holds configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // json or console
	OutputPath  string `mapstructure:"output_path"`
	ErrorPath   string `mapstructure:"error_path"`
	Development bool   `mapstructure:"development"`
}

// NewLogger creates a new configured logger instance.
func NewLogger(config LoggerConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(config.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var encoder zapcore.Encoder
	if config.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var core zapcore.Core
	if config.Development {
		core = zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	} else {
		outputFile, err := os.OpenFile(config.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}

		errorFile, err := os.OpenFile(config.ErrorPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			outputFile.Close()
			return nil, err
		}

		core = zapcore.NewTee(
			zapcore.NewCore(encoder, zapcore.AddSync(outputFile), level),
			zapcore.NewCore(encoder, zapcore.AddSync(errorFile), zapcore.ErrorLevel),
		)
	}

	options := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	if config.Development {
		options = append(options, zap.Development())
	}

	return zap.New(core, options...), nil
}

// DefaultLogger creates a logger with sensible defaults.
func DefaultLogger() *zap.Logger {
	logger, err := NewLogger(LoggerConfig{
		Level:       "info",
		Format:      "json",
		OutputPath:  "logs/app.log",
		ErrorPath:   "logs/error.log",
		Development: false,
	})

	if err != nil {
		config := zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		logger, _ = config.Build()
	}

	return logger
}

// SyncLogger ensures all buffered logs are written before shutdown.
func SyncLogger(logger *zap.Logger) {
	_ = logger.Sync()
}
