package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process logger. It is a no-op until Init is called.
var Logger = zap.NewNop()

// Init builds the logger. "release" mode logs JSON at info level, anything
// else logs colored console output at debug level.
func Init(mode string) error {
	var config zap.Config

	if mode == "release" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := config.Build()
	if err != nil {
		return err
	}

	Logger = logger
	return nil
}

// Sync flushes buffered log entries
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}
