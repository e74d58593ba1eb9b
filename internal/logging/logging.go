// Package logging builds the process zap logger from configuration.
package logging

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/loadplan/internal/config"
)

// Rotation limits for file output.
const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 3
	defaultMaxAgeDays = 7
)

// New builds a logger writing to stderr and, when cfg.File is set, to a
// rotating log file.
func New(cfg config.LogConfig, opts ...zap.Option) (*zap.Logger, error) {
	outputs := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if cfg.File != "" {
		lj, err := fileOutput(cfg.File)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, zapcore.AddSync(lj))
	}
	return NewWithWriteSyncer(cfg, zap.CombineWriteSyncers(outputs...), opts...)
}

// NewWithWriteSyncer builds a logger over an explicit output.
func NewWithWriteSyncer(cfg config.LogConfig, output zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch cfg.Format {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console", "":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, errors.Newf("unknown log format %q", cfg.Format)
	}

	core := zapcore.NewCore(enc, output, zap.NewAtomicLevelAt(level))
	return zap.New(core, opts...), nil
}

// ParseLevel parses a level name case-insensitively. "trace" maps to debug.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	if strings.EqualFold(name, "trace") {
		name = "debug"
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return level, errors.Wrapf(err, "log level %q", name)
	}
	return level, nil
}

func fileOutput(path string) (*lumberjack.Logger, error) {
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		return nil, errors.Newf("can't use directory as log file name: %s", path)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    defaultMaxSizeMB,
		MaxBackups: defaultMaxBackups,
		MaxAge:     defaultMaxAgeDays,
		LocalTime:  true,
	}, nil
}
