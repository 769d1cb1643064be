package logger

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// palette holds the ANSI colors for one theme
type palette struct {
	fg       string
	time     string
	symbol   string
	id       string
	number   string
	command  string
	key      string
	rotation []string // component names hash into this
	warn     string
	warnBg   string
	err      string
	errBg    string
}

// Gruvbox Dark (warm, muted)
var gruvbox = palette{
	fg:       "\x1b[38;5;223m",
	time:     "\x1b[38;5;108m",
	symbol:   "\x1b[38;5;142m",
	id:       "\x1b[38;5;109m",
	number:   "\x1b[38;5;175m",
	command:  "\x1b[38;5;214m",
	key:      "\x1b[38;5;245m",
	rotation: []string{"\x1b[38;5;208m", "\x1b[38;5;214m"},
	warn:     "\x1b[38;5;214m",
	warnBg:   "\x1b[48;5;58m",
	err:      "\x1b[38;5;167m",
	errBg:    "\x1b[48;5;88m",
}

// Everforest Dark (forest greens)
var everforest = palette{
	fg:       "\x1b[38;5;223m",
	time:     "\x1b[38;5;107m",
	symbol:   "\x1b[38;5;108m",
	id:       "\x1b[38;5;109m",
	number:   "\x1b[38;5;108m",
	command:  "\x1b[38;5;208m",
	key:      "\x1b[38;5;245m",
	rotation: []string{"\x1b[38;5;108m", "\x1b[38;5;65m", "\x1b[38;5;208m"},
	warn:     "\x1b[38;5;179m",
	warnBg:   "\x1b[48;5;58m",
	err:      "\x1b[38;5;167m",
	errBg:    "\x1b[48;5;52m",
}

// Current active theme (log.theme in config, or AUTOBOAT_LOG_THEME)
var currentTheme = "everforest"

// SetTheme configures the color scheme for log output.
// Unknown names are ignored.
func SetTheme(theme string) {
	if theme == "everforest" || theme == "gruvbox" {
		currentTheme = theme
	}
}

func colors() palette {
	if currentTheme == "gruvbox" {
		return gruvbox
	}
	return everforest
}

func colorComponent(name string) string {
	hash := 0
	for _, c := range name {
		hash += int(c)
	}
	rot := colors().rotation
	return rot[hash%len(rot)]
}

var bracketPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// colorizeMessage highlights bracketed command names like [work] inside a message
func colorizeMessage(msg string) string {
	c := colors()
	var result strings.Builder
	lastIndex := 0

	for _, match := range bracketPattern.FindAllStringIndex(msg, -1) {
		if before := msg[lastIndex:match[0]]; before != "" {
			result.WriteString(c.fg + before + colorReset)
		}
		result.WriteString(c.command + msg[match[0]:match[1]] + colorReset)
		lastIndex = match[1]
	}
	if remaining := msg[lastIndex:]; remaining != "" {
		result.WriteString(c.fg + remaining + colorReset)
	}
	return result.String()
}

// minimalEncoder implements a calm, compact console encoder with theme support
// Format: "13:04:35  ꩜  p.dispatch  Fired [work]  cycle_id=3f2a… next_in=5m0s"
type minimalEncoder struct {
	zapcore.Encoder // context added via With() lands here
	ctx             *zapcore.MapObjectEncoder
	ctxOrder        []string
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{
		Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		ctx:     zapcore.NewMapObjectEncoder(),
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	clone := &minimalEncoder{
		Encoder:  enc.Encoder.Clone(),
		ctx:      zapcore.NewMapObjectEncoder(),
		ctxOrder: append([]string(nil), enc.ctxOrder...),
	}
	for k, v := range enc.ctx.Fields {
		clone.ctx.Fields[k] = v
	}
	return clone
}

// AddString and friends capture fields bound with logger.With so they are
// rendered alongside per-entry fields.
func (enc *minimalEncoder) AddString(key, val string) {
	enc.remember(key)
	enc.ctx.AddString(key, val)
}

func (enc *minimalEncoder) AddInt64(key string, val int64) {
	enc.remember(key)
	enc.ctx.AddInt64(key, val)
}

func (enc *minimalEncoder) AddInt32(key string, val int32) {
	enc.remember(key)
	enc.ctx.AddInt32(key, val)
}

func (enc *minimalEncoder) AddUint64(key string, val uint64) {
	enc.remember(key)
	enc.ctx.AddUint64(key, val)
}

func (enc *minimalEncoder) AddFloat64(key string, val float64) {
	enc.remember(key)
	enc.ctx.AddFloat64(key, val)
}

func (enc *minimalEncoder) AddTime(key string, val time.Time) {
	enc.remember(key)
	enc.ctx.AddTime(key, val)
}

func (enc *minimalEncoder) AddBool(key string, val bool) {
	enc.remember(key)
	enc.ctx.AddBool(key, val)
}

func (enc *minimalEncoder) AddDuration(key string, val time.Duration) {
	enc.remember(key)
	enc.ctx.AddDuration(key, val)
}

func (enc *minimalEncoder) AddReflected(key string, val interface{}) error {
	enc.remember(key)
	return enc.ctx.AddReflected(key, val)
}

func (enc *minimalEncoder) remember(key string) {
	if _, seen := enc.ctx.Fields[key]; !seen {
		enc.ctxOrder = append(enc.ctxOrder, key)
	}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	c := colors()
	final := buffer.NewPool().Get()

	final.AppendString(c.time)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	// Level: only show for WARN/ERROR with bold + background
	if ent.Level > zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(levelColorString(ent.Level))
	} else if ent.Level == zapcore.DebugLevel {
		final.AppendString("  ")
		final.AppendString(c.key + "debug" + colorReset)
	}

	values := zapcore.NewMapObjectEncoder()
	order := append([]string(nil), enc.ctxOrder...)
	for k, v := range enc.ctx.Fields {
		values.Fields[k] = v
	}
	for _, f := range fields {
		if f.Type == zapcore.SkipType {
			continue
		}
		if _, seen := values.Fields[f.Key]; !seen {
			order = append(order, f.Key)
		}
		f.AddTo(values)
		if f.Type == zapcore.ErrorType {
			if _, ok := values.Fields[f.Key+"Verbose"]; ok {
				order = append(order, f.Key+"Verbose")
			}
		}
	}

	if symbol, ok := values.Fields[FieldSymbol].(string); ok && symbol != "" {
		final.AppendString("  ")
		final.AppendString(c.symbol + symbol + colorReset)
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(colorComponent(ent.LoggerName))
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(colorReset)
	}

	final.AppendString("  ")
	final.AppendString(colorizeMessage(ent.Message))

	if rendered := renderFields(order, values.Fields, ent.Level); rendered != "" {
		final.AppendString("  ")
		final.AppendString(rendered)
	}

	final.AppendString("\n")
	return final, nil
}

// renderFields writes every field as key=value in the order it was logged.
// The symbol is already shown up front; verbose error stacks only at debug.
func renderFields(order []string, values map[string]interface{}, level zapcore.Level) string {
	c := colors()
	var parts []string

	for _, key := range order {
		if key == FieldSymbol {
			continue
		}
		val, ok := values[key]
		if !ok {
			continue
		}
		if strings.HasSuffix(key, "Verbose") && level > zapcore.DebugLevel {
			continue
		}
		parts = append(parts, c.key+key+"="+colorReset+colorValue(key, val))
	}
	return strings.Join(parts, " ")
}

func colorValue(key string, val interface{}) string {
	c := colors()
	text := formatValue(val)
	switch key {
	case FieldCycleID:
		return c.id + text + colorReset
	case FieldCommand:
		return c.command + text + colorReset
	case FieldDurationMS, FieldBackoffMS:
		return c.number + text + colorReset + "ms"
	}
	switch val.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return c.number + text + colorReset
	}
	return c.fg + text + colorReset
}

func formatValue(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return fmt.Sprintf("%x", v)
	case time.Time:
		return v.Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// levelColorString returns bold + colored + background for WARN/ERROR
func levelColorString(level zapcore.Level) string {
	c := colors()
	switch level {
	case zapcore.WarnLevel:
		return colorBold + c.warnBg + c.warn + "WARN" + colorReset
	case zapcore.ErrorLevel:
		return colorBold + c.errBg + c.err + "ERROR" + colorReset
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return colorBold + c.errBg + c.err + level.CapitalString() + colorReset
	default:
		return ""
	}
}

// abbreviateName shortens component names: pulse.dispatch -> p.dispatch
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}
