package telnet

import "net"

// Transport is the duplex byte stream the core consumes, per spec.md §6.
// It is deliberately minimal: accepting connections, the concrete wire, and
// back-pressure policy all live outside the core.
type Transport interface {
	Write(p []byte) (int, error)
	Pause()
	Resume()
	End() error
	Destroy() error

	Readable() bool
	Writable() bool
	Destroyed() bool
}

// connTransport adapts a net.Conn to the Transport interface for
// production use. Pause/Resume have no direct net.Conn analogue; they only
// toggle a flag that Readable reports, and do not stop reads on the
// underlying connection.
type connTransport struct {
	conn      net.Conn
	destroyed bool
	paused    bool
}

// NewConnTransport wraps raw as a Transport.
func NewConnTransport(raw net.Conn) Transport {
	return &connTransport{conn: raw}
}

func (t *connTransport) Write(p []byte) (int, error) {
	if t.destroyed {
		return 0, net.ErrClosed
	}
	return t.conn.Write(p)
}

func (t *connTransport) Pause()  { t.paused = true }
func (t *connTransport) Resume() { t.paused = false }

func (t *connTransport) End() error {
	if t.destroyed {
		return nil
	}
	t.destroyed = true
	return t.conn.Close()
}

func (t *connTransport) Destroy() error {
	return t.End()
}

func (t *connTransport) Readable() bool  { return !t.destroyed && !t.paused }
func (t *connTransport) Writable() bool  { return !t.destroyed }
func (t *connTransport) Destroyed() bool { return t.destroyed }
