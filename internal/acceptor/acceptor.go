// Package acceptor provides a TCP listener that accepts Telnet
// connections, wraps each one in an internal/telnet.Session, and
// dispatches it to a SessionHandler.
package acceptor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/telnetd/internal/config"
	"github.com/cory-johannsen/telnetd/internal/observability"
	"github.com/cory-johannsen/telnetd/internal/telnet"
)

// SessionHandler wires application behavior onto a freshly constructed
// Session. The Session has already sent its proactive negotiations (if
// cfg.Session.TTY is set) by the time HandleSession is called.
// HandleSession is expected to register its OnData/OnCommand/On handlers
// and return promptly; the acceptor owns the read loop that feeds bytes
// into the Session and drives those handlers. A returned error is logged
// but never torn down the acceptor itself.
type SessionHandler interface {
	HandleSession(ctx context.Context, sess *telnet.Session) error
}

// Acceptor listens for Telnet connections on a TCP port and dispatches
// each connection to a SessionHandler.
type Acceptor struct {
	telnetCfg  config.TelnetConfig
	sessionCfg telnet.Config
	handler    SessionHandler
	logger     *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool

	activeSessions atomic.Int32
}

// NewAcceptor creates a Telnet acceptor with the given configuration.
//
// Precondition: telnetCfg must have a valid port; handler and logger must
// be non-nil.
// Postcondition: Returns an Acceptor ready to be started with
// ListenAndServe.
func NewAcceptor(telnetCfg config.TelnetConfig, sessionCfg config.SessionConfig, handler SessionHandler, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		telnetCfg: telnetCfg,
		sessionCfg: telnet.Config{
			ConvertLF: sessionCfg.ConvertLF,
			TTY:       sessionCfg.TTY,
			Debug:     sessionCfg.Debug,
		},
		handler: handler,
		logger:  logger,
		quit:    make(chan struct{}),
	}
}

// ListenAndServe starts the TCP listener and accepts connections until
// Stop is called. This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.telnetCfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.telnetCfg.Addr(), err)
	}

	a.mu.Lock()
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("telnet acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-a.quit:
				return nil
			default:
				a.logger.Error("accepting connection", zap.Error(err))
				continue
			}
		}

		a.wg.Add(1)
		go a.handleConn(conn)
	}
}

// handleConn processes a single TCP connection: it wraps the raw conn in
// a Transport, constructs a Session, and dispatches to the handler. Both
// decoder errors (surfaced through Session.OnError) and the handler's
// returned error are logged; neither tears down the acceptor itself.
func (a *Acceptor) handleConn(raw net.Conn) {
	defer a.wg.Done()
	start := time.Now()
	addr := raw.RemoteAddr().String()

	transport := telnet.NewConnTransport(raw)
	sess := telnet.NewSession(transport, a.sessionCfg)
	defer sess.Destroy()

	log := observability.NewSessionLogger(a.logger, sess.ID, addr)
	log.Info("client connected")

	a.activeSessions.Add(1)
	defer a.activeSessions.Add(-1)

	sess.OnError(func(err error) {
		log.Warn("session error", zap.Error(err))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-a.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := a.handler.HandleSession(ctx, sess); err != nil {
		log.Warn("session handler setup failed", zap.Error(err))
		return
	}

	a.readLoop(ctx, raw, sess, log)

	log.Info("session ended", zap.Duration("duration", time.Since(start)))
}

// readLoop feeds raw bytes from the connection into the Session until the
// connection is closed or an unrecoverable read error occurs. Transport
// errors are forwarded to the Session's error handlers (spec.md §7) rather
// than silently dropped.
func (a *Acceptor) readLoop(ctx context.Context, raw net.Conn, sess *telnet.Session, log *zap.Logger) {
	buf := make([]byte, 4096)
	for {
		if a.telnetCfg.ReadTimeout > 0 {
			_ = raw.SetReadDeadline(time.Now().Add(a.telnetCfg.ReadTimeout))
		}
		n, err := raw.Read(buf)
		if n > 0 {
			sess.Feed(buf[:n])
		}
		if err != nil {
			if !sess.Destroyed() {
				sess.NotifyError(err)
			}
			_ = sess.End()
			log.Debug("connection closed", zap.Error(err))
			return
		}
		select {
		case <-ctx.Done():
			_ = sess.End()
			return
		default:
		}
	}
}

// ActiveSessions reports the number of connections currently being served.
// It satisfies internal/server.SessionCounter so a Lifecycle can log how
// many live Telnet sessions it is draining when the Acceptor is stopped.
func (a *Acceptor) ActiveSessions() int {
	return int(a.activeSessions.Load())
}

// Stop gracefully stops the acceptor, closing the listener and waiting
// for all active sessions to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.running = false

	close(a.quit)
	if a.listener != nil {
		a.listener.Close()
	}
	a.wg.Wait()

	a.logger.Info("telnet acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet
// listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting
// connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
