package logger

import (
	"os"

	"fieldsync/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is a no-op logger until Init is called, so packages can log from tests
// without any setup.
var Log = zap.NewNop()

func Init(debug bool, cfg config.LogConfig) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEnc zapcore.Encoder
	if debug {
		level.SetLevel(zap.DebugLevel)
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(devCfg)
	} else {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level),
	}

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	opts := []zap.Option{zap.AddCaller()}
	if debug {
		opts = append(opts, zap.Development())
	}

	Log = zap.New(zapcore.NewTee(cores...), opts...)
}

func Sync() {
	_ = Log.Sync()
}
