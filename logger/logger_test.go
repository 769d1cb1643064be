package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			err := Initialize(tt.jsonOutput, VerbosityUser)
			require.NoError(t, err)
			require.NotNil(t, Logger, "Initialize() did not set global Logger")
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			_ = Logger.Sync()
			Logger = zap.NewNop().Sugar()
		})
	}
}

func TestConsoleLevel(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, consoleLevel(VerbosityUser))
	assert.Equal(t, zapcore.InfoLevel, consoleLevel(VerbosityInfo))
	assert.Equal(t, zapcore.DebugLevel, consoleLevel(VerbosityDebug))
	assert.Equal(t, zapcore.DebugLevel, consoleLevel(VerbosityTrace+2))
}

func TestInitializeConsoleWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, initialize(false, VerbosityUser, &buf))
	defer func() { Logger = zap.NewNop().Sugar() }()

	Infow("Fired [work]", FieldCommand, "work")
	Debugw("hidden at default verbosity")

	out := stripANSI(buf.String())
	assert.Contains(t, out, "Fired [work]")
	assert.Contains(t, out, "command=work")
	assert.NotContains(t, out, "hidden at default verbosity")
}

func TestIsProductionEnvironment(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    bool
	}{
		{name: "systemd unit", envVars: map[string]string{"INVOCATION_ID": "abc123"}, want: true},
		{name: "ENVIRONMENT=production", envVars: map[string]string{"ENVIRONMENT": "production"}, want: true},
		{name: "ENVIRONMENT=PROD uppercase", envVars: map[string]string{"ENVIRONMENT": "PROD"}, want: true},
		{name: "AUTOBOAT_LOG_JSON=true", envVars: map[string]string{"AUTOBOAT_LOG_JSON": "true"}, want: true},
		{name: "ENVIRONMENT=dev", envVars: map[string]string{"ENVIRONMENT": "dev"}, want: false},
		{name: "nothing set", envVars: map[string]string{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"INVOCATION_ID", "ENVIRONMENT", "AUTOBOAT_LOG_JSON"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			assert.Equal(t, tt.want, isProductionEnvironment())
			if tt.want {
				assert.Equal(t, "production", getEnvironmentType())
			} else {
				assert.Equal(t, "interactive", getEnvironmentType())
			}
		})
	}
}

func TestCleanup(t *testing.T) {
	t.Run("initialized logger", func(t *testing.T) {
		Logger = newTestLogger(t)
		Cleanup()
		assert.NotNil(t, Logger, "Cleanup() should not nil out the logger")
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		Logger = nil
		assert.NotPanics(t, Cleanup)
	})

	Logger = zap.NewNop().Sugar()
}

func TestFieldsFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, FieldsFromContext(ctx))

	ctx = WithCycleID(ctx, "c-1")
	ctx = WithCommand(ctx, "work")
	ctx = WithComponent(ctx, "pulse.dispatch")

	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{
		FieldCycleID, "c-1",
		FieldCommand, "work",
		FieldComponent, "pulse.dispatch",
	}, fields)
}

func TestFromContextAttachesFields(t *testing.T) {
	var buf bytes.Buffer
	base := zap.New(zapcore.NewCore(newMinimalEncoder(), zapcore.AddSync(&buf), zap.InfoLevel)).Sugar()

	ctx := WithCommand(WithCycleID(context.Background(), "c-42"), "collect")
	FromContext(ctx, base).Infow("Reply matched")

	out := stripANSI(buf.String())
	assert.Contains(t, out, "cycle_id=c-42")
	assert.Contains(t, out, "command=collect")
}

func TestSymbolHelpers(t *testing.T) {
	var buf bytes.Buffer
	base := zap.New(zapcore.NewCore(newMinimalEncoder(), zapcore.AddSync(&buf), zap.InfoLevel)).Sugar()

	AddGatewaySymbol(base.Named("gateway")).Infow("Connected", FieldEndpoint, "wss://a")

	out := stripANSI(buf.String())
	assert.Contains(t, out, "⇌")
	assert.Contains(t, out, "endpoint=wss://a")
	assert.NotContains(t, out, "symbol=", "symbol is rendered up front, not as a field")
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(VerbosityUser))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(VerbosityInfo))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(VerbosityDebug))
	assert.Equal(t, "Trace (-vvv+)", LevelName(7))
}

func TestShouldOutput(t *testing.T) {
	assert.True(t, ShouldOutput(VerbosityUser, OutputFires))
	assert.False(t, ShouldOutput(VerbosityUser, OutputSchedule))
	assert.True(t, ShouldOutput(VerbosityInfo, OutputSchedule))
	assert.False(t, ShouldOutput(VerbosityDebug, OutputFrames))
	assert.True(t, ShouldOutput(VerbosityTrace, OutputFrames))
	assert.Equal(t, "rate-limit", CategoryName(OutputRateLimit))
	assert.Equal(t, "unknown", CategoryName(OutputCategory(999)))
}

// newTestLogger creates a logger for testing without modifying global state
func newTestLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()

	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)

	zapLogger, err := config.Build()
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}

	return zapLogger.Sugar()
}

// TestLoggingFunctions tests the package-level logging functions
func TestLoggingFunctions(t *testing.T) {
	Logger = newTestLogger(t)
	defer func() { Logger = zap.NewNop().Sugar() }()

	Info("test")
	Infof("test %s", "format")
	Infow("test", "key", "value")
	Error("test")
	Errorf("test %s", "format")
	Errorw("test", "key", "value")
	Warn("test")
	Warnf("test %s", "format")
	Warnw("test", "key", "value")
	Debugw("test", "key", "value")
	PulseOpenInfow("startup", "key", "value")
	PulseCloseInfow("shutdown", "key", "value")
	SymbolInfow("⊔", "stored", "key", "value")

	t.Run("With nil logger (should not panic)", func(t *testing.T) {
		Logger = nil
		assert.NotPanics(t, func() {
			Info("test")
			Infow("test", "key", "value")
			Errorw("test", "key", "value")
			Warnw("test", "key", "value")
			Debugw("test", "key", "value")
			PulseOpenInfow("test")
		})
	})
}

// BenchmarkInfow benchmarks structured Info logging through the console encoder
func BenchmarkInfow(b *testing.B) {
	Logger = zap.New(zapcore.NewCore(newMinimalEncoder(), zapcore.AddSync(&bytes.Buffer{}), zap.InfoLevel)).Sugar()
	defer func() { Logger = zap.NewNop().Sugar() }()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Infow("Fired [work]", FieldCommand, "work", FieldAttempt, i)
	}
}

func TestAbbreviateName(t *testing.T) {
	assert.Equal(t, "p.dispatch", abbreviateName("pulse.dispatch"))
	assert.Equal(t, "gateway", abbreviateName("gateway"))
	assert.True(t, strings.HasPrefix(abbreviateName("pulse.schedule.store"), "p."))
}
