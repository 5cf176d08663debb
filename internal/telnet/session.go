package telnet

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// EventHandler receives a decoded OptionEvent.
type EventHandler func(OptionEvent)

// DataHandler receives a span of user data.
type DataHandler func([]byte)

// ErrorHandler receives a non-fatal parse or transport error.
type ErrorHandler func(error)

// SimpleHandler receives a lifecycle signal with no payload.
type SimpleHandler func()

// Session represents one connected peer, per spec.md §3. It owns the
// Scanner's residue buffer, the negotiated option state, and the event
// listener registry; it is not safe for concurrent use by more than one
// reader goroutine, matching the single-threaded-per-session model in
// spec.md §5.
type Session struct {
	ID uuid.UUID

	scan      scanner
	transport Transport

	mu sync.Mutex

	// Negotiated / observed state (spec.md §3).
	env      map[string]string
	terminal string
	columns  int
	rows     int
	isRaw    bool
	isTTY    bool

	convertLF bool
	debug     bool

	dataHandlers    []DataHandler
	commandHandlers []EventHandler
	named           map[string][]EventHandler
	endHandlers     []SimpleHandler
	closeHandlers   []SimpleHandler
	drainHandlers   []SimpleHandler
	errorHandlers   []ErrorHandler
}

// Config carries the per-session options enumerated in spec.md §6.
type Config struct {
	// ConvertLF rewrites a lone '\n' not already preceded by '\r' to "\r\n"
	// on output. Default true.
	ConvertLF bool
	// TTY, when true, causes NewSession to proactively negotiate
	// TRANSMIT_BINARY, TERMINAL_TYPE, NAWS, and NEW_ENVIRON, and reports
	// IsTTY() == true with an initial 80x24 window.
	TTY bool
	// Debug is stored on the Session but changes no behaviour: no parse
	// trace is emitted, and the "command" event fires for every decoded
	// frame whether or not Debug is set.
	Debug bool
}

// DefaultConfig returns the spec.md §6 defaults: ConvertLF true, TTY and
// Debug false.
func DefaultConfig() Config {
	return Config{ConvertLF: true}
}

// NewSession creates a Session bound to transport, applying cfg.
//
// Postcondition: Session.terminal == "ansi", columns == 80, rows == 24,
// isRaw == false, matching spec.md §3's initial state. If cfg.TTY is set,
// the DO negotiations for TRANSMIT_BINARY/TERMINAL_TYPE/NAWS/NEW_ENVIRON
// are written to transport immediately.
func NewSession(transport Transport, cfg Config) *Session {
	s := &Session{
		ID:        uuid.New(),
		transport: transport,
		env:       make(map[string]string),
		terminal:  "ansi",
		columns:   80,
		rows:      24,
		convertLF: cfg.ConvertLF,
		debug:     cfg.Debug,
		isTTY:     cfg.TTY,
		named:     make(map[string][]EventHandler),
	}
	if cfg.TTY {
		_ = s.Do(TransmitBinary)
		_ = s.Do(TerminalType)
		_ = s.Do(NAWS)
		_ = s.Do(NewEnviron)
	}
	return s
}

// --- listener registration ---

func (s *Session) OnData(h DataHandler)       { s.dataHandlers = append(s.dataHandlers, h) }
func (s *Session) OnCommand(h EventHandler)   { s.commandHandlers = append(s.commandHandlers, h) }
func (s *Session) OnEnd(h SimpleHandler)      { s.endHandlers = append(s.endHandlers, h) }
func (s *Session) OnClose(h SimpleHandler)    { s.closeHandlers = append(s.closeHandlers, h) }
func (s *Session) OnDrain(h SimpleHandler)    { s.drainHandlers = append(s.drainHandlers, h) }
func (s *Session) OnError(h ErrorHandler)     { s.errorHandlers = append(s.errorHandlers, h) }

// On registers h under the given event name — either an event's canonical
// name (e.g. "window size") or one of its short aliases (e.g. "naws",
// "size"). Both spellings of a dual-named option ("window size"/"naws",
// "environment variables"/"new environ") deliver the same events.
func (s *Session) On(name string, h EventHandler) {
	s.named[name] = append(s.named[name], h)
}

// --- state accessors ---

func (s *Session) Columns() int           { return s.columns }
func (s *Session) Rows() int              { return s.rows }
func (s *Session) Terminal() string       { return s.terminal }
func (s *Session) IsRaw() bool            { return s.isRaw }
func (s *Session) IsTTY() bool            { return s.isTTY }
func (s *Session) Env(name string) string { return s.env[name] }

func (s *Session) Readable() bool  { return s.transport.Readable() }
func (s *Session) Writable() bool  { return s.transport.Writable() }
func (s *Session) Destroyed() bool { return s.transport.Destroyed() }

// --- inbound: feed bytes from the transport adapter ---

// Feed consumes a chunk of bytes newly read from the transport. It first
// publishes the pass's user data as one span (every data span in the pass,
// concatenated), then the option events in wire order; data and events are
// not interleaved with each other within one pass. A structural
// decode error surfaces via the registered ErrorHandlers; Feed does not
// return an error because a malformed frame never fails the Session
// itself (spec.md §7).
func (s *Session) Feed(chunk []byte) {
	result := s.scan.feed(chunk)

	if len(result.data) > 0 {
		for _, h := range s.dataHandlers {
			h(result.data)
		}
	}

	for _, ev := range result.events {
		s.applyState(ev)
		s.publish(ev)
	}

	if result.err != nil {
		for _, h := range s.errorHandlers {
			h(result.err)
		}
	}
}

// applyState performs the state mutations spec.md §3 ties to specific
// decoders: NAWS updates columns/rows, TERMINAL-TYPE updates terminal, and
// NEW-ENVIRON updates the env map (mirroring TERM into terminal too).
func (s *Session) applyState(ev OptionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case EventWindowSize:
		if ev.HasSize {
			s.columns = int(ev.Width)
			s.rows = int(ev.Height)
		}
	case EventTerminalType:
		if ev.HasName {
			s.terminal = ev.Name
		}
	case EventEnvironmentVariables:
		if ev.HasVariable && ev.VarName != "" {
			value := ev.VarValue
			if strings.EqualFold(ev.VarName, "TERM") {
				value = strings.ToLower(value)
				s.terminal = value
			}
			s.env[ev.VarName] = value
		}
	}
}

// publish fires the generic "command" event and the event's canonical
// name plus aliases, then runs any protocol-level reply the event
// triggers (currently: soliciting TERMINAL-TYPE on WILL).
func (s *Session) publish(ev OptionEvent) {
	for _, h := range s.commandHandlers {
		h(ev)
	}

	canonical, aliases := ev.Kind.Names()
	for _, h := range s.named[canonical] {
		h(ev)
	}
	for _, alias := range aliases {
		for _, h := range s.named[alias] {
			h(ev)
		}
	}

	if ev.Kind == EventTerminalType && ev.Command == WILL {
		_ = s.sendTerminalTypeSend()
	}
}

// --- outbound: negotiation senders ---

// Do writes IAC DO <opt>.
func (s *Session) Do(opt Option) error { return s.negotiate(DO, opt) }

// Dont writes IAC DONT <opt>.
func (s *Session) Dont(opt Option) error { return s.negotiate(DONT, opt) }

// Will writes IAC WILL <opt>.
func (s *Session) Will(opt Option) error { return s.negotiate(WILL, opt) }

// Wont writes IAC WONT <opt>.
func (s *Session) Wont(opt Option) error { return s.negotiate(WONT, opt) }

func (s *Session) negotiate(cmd Command, opt Option) error {
	_, err := s.transport.Write([]byte{byte(IAC), byte(cmd), byte(opt)})
	return err
}

func (s *Session) sendTerminalTypeSend() error {
	_, err := s.transport.Write([]byte{byte(IAC), byte(SB), byte(TerminalType), byte(opSEND), byte(IAC), byte(SE)})
	return err
}

// SetRawMode enables or disables raw mode: when enabling, it emits
// WILL ECHO, WILL SUPPRESS_GO_AHEAD, DO SUPPRESS_GO_AHEAD, in that fixed
// order, as a single write (spec.md §4.4, §8 scenario S6, and the frozen
// open question in spec.md §9). Disabling emits the corresponding
// WONT/DONT pair. A no-op if the transport is not writable.
func (s *Session) SetRawMode(enable bool) error {
	if !s.transport.Writable() {
		return nil
	}
	var out []byte
	if enable {
		out = []byte{
			byte(IAC), byte(WILL), byte(Echo),
			byte(IAC), byte(WILL), byte(SuppressGoAhead),
			byte(IAC), byte(DO), byte(SuppressGoAhead),
		}
	} else {
		out = []byte{
			byte(IAC), byte(WONT), byte(Echo),
			byte(IAC), byte(WONT), byte(SuppressGoAhead),
			byte(IAC), byte(DONT), byte(SuppressGoAhead),
		}
	}
	if _, err := s.transport.Write(out); err != nil {
		return err
	}
	s.isRaw = enable
	return nil
}

// Write forwards p to the transport, rewriting a lone '\n' to "\r\n" when
// ConvertLF is enabled. Each call is rewritten independently: whether the
// previous write ended with '\r' is not tracked (spec.md §9's documented
// rough edge).
func (s *Session) Write(p []byte) (int, error) {
	if !s.convertLF {
		return s.transport.Write(p)
	}
	return s.transport.Write(convertLF(p))
}

func convertLF(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		b := p[i]
		if b == '\n' && (i == 0 || p[i-1] != '\r') {
			out = append(out, '\r', '\n')
			continue
		}
		out = append(out, b)
	}
	return out
}

// --- lifecycle, forwarded to the transport ---

func (s *Session) Pause()  { s.transport.Pause() }
func (s *Session) Resume() { s.transport.Resume() }

// End signals transport-level end; the residue is discarded and End/Close
// handlers fire (spec.md §5).
func (s *Session) End() error {
	err := s.transport.End()
	s.scan.residue = nil
	for _, h := range s.endHandlers {
		h()
	}
	for _, h := range s.closeHandlers {
		h()
	}
	return err
}

// Destroy severs the transport immediately.
func (s *Session) Destroy() error {
	return s.transport.Destroy()
}

// NotifyError forwards a transport-level error to registered ErrorHandlers,
// verbatim, per spec.md §7.
func (s *Session) NotifyError(err error) {
	for _, h := range s.errorHandlers {
		h(err)
	}
}

// NotifyDrain forwards the transport's back-pressure-relieved signal.
func (s *Session) NotifyDrain() {
	for _, h := range s.drainHandlers {
		h()
	}
}
