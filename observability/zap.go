package observability

import "go.uber.org/zap"

// Zap adapts a zap logger to the Logger contract. The cmd binaries use this;
// library packages only ever see the interface.
func Zap(l *zap.Logger) Logger { return zapLogger{l: l} }

type zapLogger struct{ l *zap.Logger }

func (z zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, zapFields(fields)...) }
func (z zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, zapFields(fields)...) }
func (z zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, zapFields(fields)...) }
func (z zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, zapFields(fields)...) }

func (z zapLogger) With(fields ...Field) Logger {
	return zapLogger{l: z.l.With(zapFields(fields)...)}
}

func zapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		switch v := f.Value().(type) {
		case string:
			out[i] = zap.String(f.Key(), v)
		case int:
			out[i] = zap.Int(f.Key(), v)
		case float64:
			out[i] = zap.Float64(f.Key(), v)
		case error:
			out[i] = zap.NamedError(f.Key(), v)
		default:
			out[i] = zap.Any(f.Key(), v)
		}
	}
	return out
}
