package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global logger instance
	Logger *zap.SugaredLogger
	// Flag to track if JSON output is enabled
	JSONOutput bool
)

func init() {
	// Initialize with a safe no-op logger at package load time
	// This prevents nil pointer panics if logger is used before Initialize() is called
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger.
// jsonOutput selects machine-readable output; verbosity is the -v flag count.
func Initialize(jsonOutput bool, verbosity int) error {
	return initialize(jsonOutput, verbosity, os.Stdout)
}

func initialize(jsonOutput bool, verbosity int, out io.Writer) error {
	JSONOutput = jsonOutput
	level := zap.NewAtomicLevelAt(consoleLevel(verbosity))

	loadThemeFromEnv()

	var zapLogger *zap.Logger
	var err error

	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = level
		config.EncoderConfig.TimeKey = "ts"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zapLogger, err = config.Build()
	} else {
		zapLogger = zap.New(
			zapcore.NewCore(
				newMinimalEncoder(),
				zapcore.AddSync(out),
				level,
			),
		)
	}

	if err != nil {
		return err
	}

	Logger = zapLogger.Sugar()
	return nil
}

// consoleLevel keeps the run loop's lifecycle lines visible without -v.
// A bot operator expects to see each fire and reply by default.
func consoleLevel(verbosity int) zapcore.Level {
	if verbosity <= VerbosityUser {
		return zapcore.InfoLevel
	}
	return VerbosityToLevel(verbosity)
}

// loadThemeFromEnv lets AUTOBOAT_LOG_THEME override the default palette.
// The config file's log.theme is applied later via SetTheme.
func loadThemeFromEnv() {
	if theme := os.Getenv("AUTOBOAT_LOG_THEME"); theme != "" {
		SetTheme(theme)
	}
}

// InitializeFromEnvironment picks JSON output when running unattended
// (systemd, containers, ENVIRONMENT=production) and console output otherwise.
func InitializeFromEnvironment(verbosity int) error {
	return Initialize(isProductionEnvironment(), verbosity)
}

// isProductionEnvironment reports whether the process runs unattended
func isProductionEnvironment() bool {
	// systemd sets INVOCATION_ID for every unit it starts
	if os.Getenv("INVOCATION_ID") != "" {
		return true
	}

	if env := strings.ToLower(os.Getenv("ENVIRONMENT")); env == "production" || env == "prod" {
		return true
	}

	if os.Getenv("AUTOBOAT_LOG_JSON") == "1" || strings.EqualFold(os.Getenv("AUTOBOAT_LOG_JSON"), "true") {
		return true
	}

	return false
}

// getEnvironmentType returns a string description of the environment
func getEnvironmentType() string {
	if isProductionEnvironment() {
		return "production"
	}
	return "interactive"
}

// Cleanup flushes any buffered log entries
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Info logs an info message
func Info(args ...interface{}) {
	if Logger != nil {
		Logger.Info(args...)
	}
}

// Infof logs a formatted info message
func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

// Infow logs an info message with structured fields
func Infow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, keysAndValues...)
	}
}

// Error logs an error message
func Error(args ...interface{}) {
	if Logger != nil {
		Logger.Error(args...)
	}
}

// Errorf logs a formatted error message
func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

// Errorw logs an error message with structured fields
func Errorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Errorw(msg, keysAndValues...)
	}
}

// Warn logs a warning message
func Warn(args ...interface{}) {
	if Logger != nil {
		Logger.Warn(args...)
	}
}

// Warnf logs a formatted warning message
func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

// Warnw logs a warning message with structured fields
func Warnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Warnw(msg, keysAndValues...)
	}
}

// Debugw logs a debug message with structured fields
func Debugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Debugw(msg, keysAndValues...)
	}
}
