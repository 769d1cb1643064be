package logger

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// stripANSI removes ANSI color codes from a string for testing
func stripANSI(str string) string {
	return ansiRegex.ReplaceAllString(str, "")
}

func encode(t *testing.T, enc zapcore.Encoder, level zapcore.Level, msg string, fields ...zapcore.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(zapcore.Entry{
		Level:      level,
		Time:       time.Date(2026, 1, 2, 13, 4, 35, 0, time.UTC),
		LoggerName: "pulse.dispatch",
		Message:    msg,
	}, fields)
	if err != nil {
		t.Fatalf("Failed to encode entry: %v", err)
	}
	return stripANSI(buf.String())
}

// TestMinimalEncoderNeverDiscardsFields ensures every field the caller
// passes shows up in the console line.
func TestMinimalEncoderNeverDiscardsFields(t *testing.T) {
	testFields := []struct {
		field    zapcore.Field
		mustFind string
	}{
		{zap.String("command", "work"), "command=work"},
		{zap.String("cycle_id", "c-1"), "cycle_id=c-1"},
		{zap.String("state", "awaiting_response"), "state=awaiting_response"},
		{zap.Int("attempt", 3), "attempt=3"},
		{zap.Int64("backoff_ms", 20000), "backoff_ms=20000ms"},
		{zap.Bool("silent", true), "silent=true"},
		{zap.Float64("ratio", 0.8), "ratio=0.8"},
		{zap.Strings("match_patterns", []string{"deposited", "coins"}), "match_patterns=[deposited coins]"},
		{zap.String("field.with.dots", "test2"), "field.with.dots=test2"},
		{zap.Int32("int32_field", 42), "int32_field=42"},
		{zap.Uint("uint_field", 7), "uint_field=7"},
		{zap.Duration("next_in", 5*time.Minute), "next_in=5m0s"},
		{zap.Error(nil), ""}, // nil error shouldn't crash
		{zap.String("error", "something went wrong"), "error=something went wrong"},
	}

	var allFields []zapcore.Field
	for _, tf := range testFields {
		allFields = append(allFields, tf.field)
	}

	out := encode(t, newMinimalEncoder(), zapcore.InfoLevel, "Testing field preservation", allFields...)

	for _, tf := range testFields {
		if tf.mustFind != "" && !strings.Contains(out, tf.mustFind) {
			t.Errorf("Field was silently discarded from log output: %s\nOutput: %s", tf.mustFind, out)
		}
	}
}

func TestMinimalEncoderKeepsFieldOrder(t *testing.T) {
	out := encode(t, newMinimalEncoder(), zapcore.InfoLevel, "Fired [work]",
		zap.String("command", "work"),
		zap.String("cycle_id", "c-9"),
		zap.Int("attempt", 1),
	)

	ci := strings.Index(out, "command=")
	yi := strings.Index(out, "cycle_id=")
	ai := strings.Index(out, "attempt=")
	if !(ci < yi && yi < ai) {
		t.Errorf("fields out of order: %s", out)
	}
}

func TestMinimalEncoderFormat(t *testing.T) {
	out := encode(t, newMinimalEncoder(), zapcore.InfoLevel, "Fired [work]",
		zap.String(FieldSymbol, "꩜"),
	)

	want := "13:04:35  ꩜  p.dispatch  Fired [work]\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestMinimalEncoderLevels(t *testing.T) {
	enc := newMinimalEncoder()

	if out := encode(t, enc, zapcore.InfoLevel, "info"); strings.Contains(out, "INFO") {
		t.Errorf("info level should not be labelled: %s", out)
	}
	if out := encode(t, enc, zapcore.WarnLevel, "warn"); !strings.Contains(out, "WARN") {
		t.Errorf("warn level missing label: %s", out)
	}
	if out := encode(t, enc, zapcore.ErrorLevel, "err"); !strings.Contains(out, "ERROR") {
		t.Errorf("error level missing label: %s", out)
	}
	if out := encode(t, enc, zapcore.DebugLevel, "dbg"); !strings.Contains(out, "debug") {
		t.Errorf("debug level missing label: %s", out)
	}
}

func TestMinimalEncoderVerboseErrorOnlyAtDebug(t *testing.T) {
	err := errors.New("gateway closed")

	info := encode(t, newMinimalEncoder(), zapcore.ErrorLevel, "send failed", zap.Error(err))
	if !strings.Contains(info, "error=gateway closed") {
		t.Errorf("error message missing: %s", info)
	}
	if strings.Contains(info, "errorVerbose=") {
		t.Errorf("stack trace should be hidden above debug: %s", info)
	}

	debug := encode(t, newMinimalEncoder(), zapcore.DebugLevel, "send failed", zap.Error(err))
	if !strings.Contains(debug, "errorVerbose=") {
		t.Errorf("stack trace should be shown at debug: %s", debug)
	}
}

// Fields bound with logger.With must survive Clone and render on every entry.
func TestMinimalEncoderWithContext(t *testing.T) {
	var sink strings.Builder
	l := zap.New(zapcore.NewCore(newMinimalEncoder(), zapcore.AddSync(&sink), zap.InfoLevel)).Sugar()

	child := l.With("command", "collect", "attempt", 2)
	child.Infow("Reply matched", "cycle_id", "c-3")
	l.Infow("unrelated")

	lines := strings.Split(strings.TrimSpace(stripANSI(sink.String())), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), lines)
	}
	for _, want := range []string{"command=collect", "attempt=2", "cycle_id=c-3"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("missing %s in %s", want, lines[0])
		}
	}
	if strings.Contains(lines[1], "command=") {
		t.Errorf("parent logger picked up child context: %s", lines[1])
	}
}

func TestSetTheme(t *testing.T) {
	defer SetTheme("everforest")

	SetTheme("gruvbox")
	if currentTheme != "gruvbox" {
		t.Errorf("theme = %s, want gruvbox", currentTheme)
	}
	SetTheme("solarized")
	if currentTheme != "gruvbox" {
		t.Errorf("unknown theme should be ignored, got %s", currentTheme)
	}
}

// TestUnknownFieldTypes tests that the encoder handles uncommon field types
// without crashing or silently dropping them
func TestUnknownFieldTypes(t *testing.T) {
	out := encode(t, newMinimalEncoder(), zapcore.InfoLevel, "Testing unknown field types",
		zap.Complex128("complex", complex(1.0, 2.0)),
		zap.Time("timestamp", time.Now()),
		zap.Uint64("uint64", 5000000000),
		zap.ByteString("bytes", []byte("hello world")),
		zap.Binary("binary", []byte{0x01, 0x02, 0x03}),
	)

	for _, expected := range []string{"complex=", "timestamp=", "uint64=5000000000", "bytes=hello world", "binary="} {
		if !strings.Contains(out, expected) {
			t.Errorf("Field %q was dropped from output: %s", expected, out)
		}
	}
}
