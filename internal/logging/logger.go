package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultBaseDir is where file loggers write when it is writable.
// Falls back to ./logs otherwise.
var DefaultBaseDir = "/var/log/benchctl"

// Options configures a logger
type Options struct {
	Level      string
	JSONFormat bool
	// File, when set, tees log output into <base>/<File>.log
	File string
}

// ParseLevel parses a log level string. Unknown values map to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger creates a logger writing to w.
// Task output goes to stdout, so callers normally pass os.Stderr here.
func NewLogger(level zapcore.Level, jsonFormat bool, w io.Writer) *zap.Logger {
	return zap.New(newCore(level, jsonFormat, zapcore.AddSync(w)))
}

// New builds the process logger from options. The returned close func
// flushes and closes the log file if one was opened.
func New(opts Options) (*zap.Logger, func() error, error) {
	level := ParseLevel(opts.Level)
	if opts.File == "" {
		logger := NewLogger(level, opts.JSONFormat, os.Stderr)
		return logger, func() error { return nil }, nil
	}
	return NewFileLogger(opts.File, level, opts.JSONFormat)
}

// NewFileLogger creates a logger that writes to <base>/<component>.log and stderr.
func NewFileLogger(component string, level zapcore.Level, jsonFormat bool) (*zap.Logger, func() error, error) {
	logPath := GetLogPath(component)
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory %s: %w", filepath.Dir(logPath), err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	core := zapcore.NewTee(
		// Files always get JSON so they can be grepped by field.
		newCore(level, true, zapcore.AddSync(logFile)),
		newCore(level, jsonFormat, zapcore.AddSync(os.Stderr)),
	)
	logger := zap.New(core).With(zap.String("component", component))
	logger.Debug("logger initialized", zap.String("path", logPath))

	closeFn := func() error {
		_ = logger.Sync()
		return logFile.Close()
	}
	return logger, closeFn, nil
}

// GetLogPath returns the expected log path for a component
func GetLogPath(component string) string {
	baseDir := DefaultBaseDir
	if !isWritable(baseDir) {
		baseDir = "./logs"
	}
	return filepath.Join(baseDir, component+".log")
}

func newCore(level zapcore.Level, jsonFormat bool, ws zapcore.WriteSyncer) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if jsonFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(enc, ws, zap.NewAtomicLevelAt(level))
}

// isWritable checks if directory is writable
func isWritable(path string) bool {
	if err := os.MkdirAll(path, 0755); err != nil {
		return false
	}

	testFile := filepath.Join(path, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(testFile)
	return true
}
