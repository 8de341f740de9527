package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger - обертка над zap.SugaredLogger со структурированными методами *w.
type Logger struct {
	*zap.SugaredLogger
	base *zap.Logger
}

// New создает логгер с заданным уровнем. В production пишет JSON, иначе - консольный формат.
func New(level string, production bool) *Logger {
	cfg := zap.NewDevelopmentConfig()
	if production {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if !production {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	base, err := cfg.Build()
	if err != nil {
		base = zap.NewExample()
	}
	return Wrap(base)
}

// Wrap оборачивает готовый *zap.Logger (удобно в тестах: zaptest, zap.NewNop).
func Wrap(base *zap.Logger) *Logger {
	return &Logger{SugaredLogger: base.Sugar(), base: base}
}

// Nop возвращает логгер, который ничего не пишет.
func Nop() *Logger {
	return Wrap(zap.NewNop())
}

// ParseLevel переводит строку LOG_LEVEL в уровень zap. Неизвестные значения дают info.
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

// Named возвращает дочерний логгер с именем компонента.
func (l *Logger) Named(name string) *Logger {
	return Wrap(l.base.Named(name))
}

// With возвращает дочерний логгер с постоянными полями.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	child := l.SugaredLogger.With(keysAndValues...)
	return &Logger{SugaredLogger: child, base: child.Desugar()}
}

// Zap отдает исходный *zap.Logger.
func (l *Logger) Zap() *zap.Logger {
	return l.base
}

// Sync сбрасывает буферы. Ошибку для stdout/stderr игнорируем.
func (l *Logger) Sync() {
	_ = l.base.Sync()
}
