// Package main provides a minimal line-echo Telnet server illustrating how
// the core telnet package, acceptor, configuration, logging, and lifecycle
// pieces fit together. It is example glue, not part of the tested core.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/telnetd/internal/acceptor"
	"github.com/cory-johannsen/telnetd/internal/config"
	"github.com/cory-johannsen/telnetd/internal/observability"
	"github.com/cory-johannsen/telnetd/internal/server"
	"github.com/cory-johannsen/telnetd/internal/telnet"
)

// echoHandler wires a freshly accepted Session to a trivial line echo: it
// greets the peer, logs window-size changes, and echoes every span of user
// data it receives, prefixed, until the peer disconnects.
type echoHandler struct {
	logger *zap.Logger
}

func (h *echoHandler) HandleSession(_ context.Context, sess *telnet.Session) error {
	_, _ = sess.Write([]byte("welcome\n"))

	sess.On("window size", func(ev telnet.OptionEvent) {
		h.logger.Debug("window size changed",
			zap.String("session_id", sess.ID.String()),
			zap.Int("columns", sess.Columns()),
			zap.Int("rows", sess.Rows()),
		)
	})

	sess.OnData(func(data []byte) {
		_, _ = sess.Write(append([]byte("> "), data...))
	})

	sess.OnEnd(func() {
		h.logger.Info("session closed", zap.String("session_id", sess.ID.String()))
	})

	return nil
}

// acceptorService adapts an Acceptor to server.Service. The embedded
// Acceptor's ActiveSessions also makes it a server.SessionCounter, so the
// Lifecycle's shutdown log reports the live session count.
type acceptorService struct {
	*acceptor.Acceptor
}

func (s *acceptorService) Start() error { return s.ListenAndServe() }

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting telnetd",
		zap.String("telnet_addr", cfg.Telnet.Addr()),
		zap.Bool("tty", cfg.Session.TTY),
	)

	handler := &echoHandler{logger: logger}
	acc := acceptor.NewAcceptor(cfg.Telnet, cfg.Session, handler, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("telnet", &acceptorService{Acceptor: acc})

	logger.Info("telnetd initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
