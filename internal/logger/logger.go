// Package logger builds the process logger from application settings.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rbx-valuation-api/internal/config"
)

// New returns a console logger in development and a JSON logger otherwise.
// Debug lowers the level to debug in both.
func New(app config.AppConfig) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if app.IsDevelopment() {
		cfg = zap.NewDevelopmentConfig()
	}
	if app.Debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("app", app.Name), zap.String("version", app.Version)), nil
}

// Must is like New but falls back to a no-op logger on error.
func Must(app config.AppConfig) *zap.Logger {
	l, err := New(app)
	if err != nil {
		return zap.NewNop()
	}
	return l
}
