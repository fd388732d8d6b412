// Package logging builds the zap loggers used across slooh-downloader.
//
// Every component receives a *zap.SugaredLogger through its constructor;
// there is no package-level logger. New writes human-readable output to
// stderr and, when a log folder is configured, a timestamped log file
// alongside it ("slooh-downloader_20260829_153000.log").
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger writing to stderr at the given level. When
// logFolder is non-empty a timestamped file sink is added at debug level,
// so the file always carries more detail than the console.
//
// The returned close function flushes and closes the file sink; callers
// defer it in main.
func New(level string, logFolder string) (*zap.SugaredLogger, func(), error) {
	consoleLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), consoleLevel),
	}
	closeFn := func() {}

	if logFolder != "" {
		if err := os.MkdirAll(logFolder, 0755); err != nil {
			return nil, nil, errors.Wrap(err, "creating log folder")
		}
		name := fmt.Sprintf("slooh-downloader_%s.log", time.Now().Format("20060102_150405"))
		f, err := os.OpenFile(filepath.Join(logFolder, name),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening log file")
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(f), zapcore.DebugLevel))
		closeFn = func() { _ = f.Close() }
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger.Sugar(), func() {
		_ = logger.Sync()
		closeFn()
	}, nil
}

// Nop returns a logger that discards everything. Tests use it so
// components never need nil checks around logging.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
