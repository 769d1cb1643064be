package logger

import (
	"github.com/teranos/autoboat/sym"
	"go.uber.org/zap"
)

// Symbol-aware logging helpers.
// These wrap a logger with the symbol as a structured field, not in the message,
// so logs stay queryable by component and messages stay clean.
//
// Usage:
//
//	d.log = logger.AddPulseSymbol(logger.ComponentLogger("pulse.dispatch"))
//	d.log.Infow("Fired", "command", name)

// AddPulseSymbol wraps a logger with the Pulse symbol (꩜)
func AddPulseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Pulse)
}

// AddPulseOpenSymbol wraps a logger with the PulseOpen symbol (✿)
func AddPulseOpenSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.PulseOpen)
}

// AddPulseCloseSymbol wraps a logger with the PulseClose symbol (❀)
func AddPulseCloseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.PulseClose)
}

// AddDBSymbol wraps a logger with the DB symbol (⊔)
func AddDBSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.DB)
}

// AddAMSymbol wraps a logger with the config symbol (≡)
func AddAMSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.AM)
}

// AddGatewaySymbol wraps a logger with the Gateway symbol (⇌)
func AddGatewaySymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Gateway)
}

// AddReplySymbol wraps a logger with the Reply symbol (↩)
func AddReplySymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Reply)
}

// PulseOpenInfow logs an info message with the PulseOpen symbol (✿)
// Used for graceful startup operations
func PulseOpenInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.PulseOpen}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// PulseCloseInfow logs an info message with the PulseClose symbol (❀)
// Used for graceful shutdown operations
func PulseCloseInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.PulseClose}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// SymbolInfow logs with any symbol
func SymbolInfow(symbol, msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, symbol}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}
