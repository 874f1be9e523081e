package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ZapLevel converts the level to its zap counterpart.
func (l LogLevel) ZapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel // Default to INFO for unknown
	}
}

// ParseLevel converts a textual level (debug, info, warn, error) to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Output formats accepted by Init.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

var defaultLogger atomic.Pointer[zap.Logger]

func init() {
	defaultLogger.Store(newLogger(LevelInfo, FormatConsole, os.Stderr))
}

func newLogger(level LogLevel, format string, output io.Writer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if format == FormatJSON {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(output), zap.NewAtomicLevelAt(level.ZapLevel()))
	return zap.New(core)
}

// Init initializes the process-wide logger. It also routes controller-runtime
// and klog output through the same logger so client-go warnings end up in one stream.
// This should be called once at application startup.
func Init(level LogLevel, format string, output io.Writer) {
	logger := newLogger(level, format, output)
	defaultLogger.Store(logger)

	ctrl.SetLogger(zapr.NewLogger(logger.Named("controller-runtime")))
	klog.SetLogger(zapr.NewLogger(logger.Named("client-go")))
}

// InitForCLI initializes console logging at the given level.
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	Init(filterLevel, FormatConsole, output)
}

// Logger returns the underlying zap logger.
func Logger() *zap.Logger {
	return defaultLogger.Load()
}

// Sync flushes buffered log entries.
func Sync() {
	_ = defaultLogger.Load().Sync()
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	logger := defaultLogger.Load()
	zl := level.ZapLevel()
	if !logger.Core().Enabled(zl) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	fields := []zap.Field{zap.String("subsystem", subsystem)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Log(zl, msg, fields...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}
