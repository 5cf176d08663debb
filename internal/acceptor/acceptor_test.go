package acceptor

import (
	"bufio"
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/telnetd/internal/config"
	"github.com/cory-johannsen/telnetd/internal/telnet"
)

// echoHandler is a test SessionHandler that echoes each line of data back
// to the client, prefixed, and ends the session on "quit".
type echoHandler struct {
	sessionCount atomic.Int32
}

func (h *echoHandler) HandleSession(_ context.Context, sess *telnet.Session) error {
	h.sessionCount.Add(1)
	sess.OnData(func(data []byte) {
		line := string(data)
		if line == "quit\r\n" || line == "quit\n" {
			_, _ = sess.Write([]byte("bye\n"))
			_ = sess.End()
			return
		}
		_, _ = sess.Write(append([]byte("echo: "), data...))
	})
	return nil
}

func waitForListening(t *testing.T, acc *Acceptor) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if acc.IsRunning() && acc.Addr() != "" {
			return acc.Addr()
		}
		select {
		case <-deadline:
			t.Fatal("acceptor did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	return ""
}

func TestAcceptorStartAndStop(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := &echoHandler{}
	telnetCfg := config.TelnetConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	sessionCfg := config.SessionConfig{ConvertLF: true}

	acc := NewAcceptor(telnetCfg, sessionCfg, handler, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- acc.ListenAndServe()
	}()

	addr := waitForListening(t, acc)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	reader := bufio.NewReader(conn)

	_, err = conn.Write([]byte("hello\n"))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := reader.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "echo: hello")

	_, _ = conn.Write([]byte("quit\n"))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _ = reader.Read(buf)
	assert.Contains(t, string(buf[:n]), "bye")

	conn.Close()

	acc.Stop()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("acceptor did not stop in time")
	}

	assert.Equal(t, int32(1), handler.sessionCount.Load())
}

func TestAcceptorMultipleClients(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := &echoHandler{}
	telnetCfg := config.TelnetConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	sessionCfg := config.SessionConfig{ConvertLF: true}

	acc := NewAcceptor(telnetCfg, sessionCfg, handler, logger)
	go func() { _ = acc.ListenAndServe() }()

	addr := waitForListening(t, acc)

	const numClients = 3
	conns := make([]net.Conn, numClients)
	for i := 0; i < numClients; i++ {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		require.NoError(t, err)
		conns[i] = conn
	}

	for _, conn := range conns {
		_, err := conn.Write([]byte("ping\n"))
		require.NoError(t, err)
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, 256)
		n, err := conn.Read(buf)
		require.NoError(t, err)
		assert.Contains(t, string(buf[:n]), "echo: ping")
		conn.Close()
	}

	acc.Stop()
	assert.Equal(t, int32(numClients), handler.sessionCount.Load())
}

func TestAcceptorTTYNegotiatesOnConnect(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := &echoHandler{}
	telnetCfg := config.TelnetConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	sessionCfg := config.SessionConfig{ConvertLF: true, TTY: true}

	acc := NewAcceptor(telnetCfg, sessionCfg, handler, logger)
	go func() { _ = acc.ListenAndServe() }()

	addr := waitForListening(t, acc)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	// Four proactive DO negotiations: TRANSMIT_BINARY, TERMINAL_TYPE, NAWS,
	// NEW_ENVIRON, each IAC DO <opt>.
	assert.Equal(t, 12, n)
	assert.Equal(t, byte(255), buf[0]) // IAC
	assert.Equal(t, byte(253), buf[1]) // DO

	acc.Stop()
}
