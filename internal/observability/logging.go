// Package observability provides structured logging utilities.
package observability

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/telnetd/internal/config"
)

// NewLogger creates a structured logger from the given logging configuration.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// NewSessionLogger returns a child of base tagged with a Telnet session's
// correlation ID and remote address. Every log line the Acceptor or a
// SessionHandler emits while a connection is live should go through the
// returned logger instead of re-adding those two fields by hand at each
// call site, so a single session's log lines can be grep'd out of a busy
// server's output by session_id.
//
// Precondition: sessionID should be the Session.ID the core assigned at
// construction; remoteAddr is typically net.Conn.RemoteAddr().String().
func NewSessionLogger(base *zap.Logger, sessionID uuid.UUID, remoteAddr string) *zap.Logger {
	return base.With(
		zap.String("session_id", sessionID.String()),
		zap.String("remote_addr", remoteAddr),
	)
}
