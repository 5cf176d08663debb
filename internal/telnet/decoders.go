package telnet

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// needMore is the consumed-length sentinel a decoder returns when buf does
// not yet hold a complete frame.
const needMore = -1

// fixedEventKinds maps each option that has its own event kind to that
// kind, for the 3-byte DO/DONT/WILL/WONT frames. WindowSize, TerminalType
// and EnvironmentVariable also carry SB payloads, which
// decodeSubnegotiation handles separately.
var fixedEventKinds = map[Option]EventKind{
	Echo:                EventEcho,
	Status:              EventStatus,
	Linemode:            EventLinemode,
	TransmitBinary:      EventTransmitBinary,
	Authentication:      EventAuthentication,
	TerminalSpeed:       EventTerminalSpeed,
	RemoteFlowControl:   EventRemoteFlowControl,
	XDisplayLocation:    EventXDisplayLocation,
	SuppressGoAhead:     EventSuppressGoAhead,
	WindowSize:          EventWindowSize,
	TerminalType:        EventTerminalType,
	EnvironmentVariable: EventEnvironmentVariables,
}

// decodeFrame decodes the Telnet frame starting at buf[0] (which must be
// IAC). It returns the number of bytes consumed and the resulting event, or
// consumed == needMore if buf does not yet hold a complete frame. A non-nil
// error indicates a structural protocol violation (spec.md §7); the frame
// is not consumable and the scanner must abort the current parse pass.
//
// Precondition: len(buf) >= 3, buf[0] == byte(IAC), buf[1] is a known
// command code (the Scanner's frame-head recognition rule has already
// verified this).
func decodeFrame(buf []byte) (int, OptionEvent, error) {
	cmd := Command(buf[1])
	opt := Option(buf[2])

	if isNegotiationVerb(cmd) {
		return decodeFixed(cmd, opt)
	}

	if cmd == SB {
		return decodeSubnegotiation(opt, buf)
	}

	// Any other recognised command (NOP, GA, AYT, ...) carries no option
	// byte at all in the strict sense, but the scanner only ever routes
	// here via the 3-byte frame-head rule, so treat it the same as an
	// unknown 3-byte frame for uniformity.
	return 3, OptionEvent{Kind: EventUnknown, Command: cmd, Option: opt, Bytes: cloneBytes(buf[:3])}, nil
}

func decodeFixed(cmd Command, opt Option) (int, OptionEvent, error) {
	kind, ok := fixedEventKinds[opt]
	if !ok {
		return 3, OptionEvent{Kind: EventUnknown, Command: cmd, Option: opt, Bytes: []byte{byte(IAC), byte(cmd), byte(opt)}}, nil
	}
	return 3, OptionEvent{Kind: kind, Command: cmd, Option: opt}, nil
}

func decodeSubnegotiation(opt Option, buf []byte) (int, OptionEvent, error) {
	switch opt {
	case WindowSize:
		return decodeNAWS(buf)
	case TerminalType:
		return decodeTerminalType(buf)
	case EnvironmentVariable:
		return decodeNewEnviron(buf)
	default:
		return decodeUnknownSB(opt, buf)
	}
}

// decodeNAWS parses IAC SB 31 w_hi w_lo h_hi h_lo IAC SE (9 bytes, fixed).
func decodeNAWS(buf []byte) (int, OptionEvent, error) {
	const frameLen = 9
	if len(buf) < frameLen {
		return needMore, OptionEvent{}, nil
	}
	if Command(buf[7]) != IAC || Command(buf[8]) != SE {
		return 0, OptionEvent{}, fmt.Errorf("telnet: naws subnegotiation missing trailing IAC SE")
	}
	width := binary.BigEndian.Uint16(buf[3:5])
	height := binary.BigEndian.Uint16(buf[5:7])
	return frameLen, OptionEvent{
		Kind:    EventWindowSize,
		Command: SB,
		Option:  WindowSize,
		HasSize: true,
		Width:   width,
		Height:  height,
	}, nil
}

// decodeTerminalType parses IAC SB 24 IS <name...> IAC SE. The name is
// terminated by the next IAC byte, which must be followed by SE.
func decodeTerminalType(buf []byte) (int, OptionEvent, error) {
	const minLen = 7 // IAC SB 24 op <>=1 name byte IAC SE
	if len(buf) < minLen {
		return needMore, OptionEvent{}, nil
	}
	nameStart := 4
	term, ok := findIACSE(buf, nameStart)
	if !ok {
		if term == -1 {
			return needMore, OptionEvent{}, nil
		}
		return 0, OptionEvent{}, fmt.Errorf("telnet: terminal-type subnegotiation missing trailing IAC SE")
	}
	if term < nameStart+1 {
		return 0, OptionEvent{}, fmt.Errorf("telnet: terminal-type subnegotiation has an empty name")
	}
	name := strings.ToLower(string(buf[nameStart:term]))
	return term + 2, OptionEvent{
		Kind:    EventTerminalType,
		Command: SB,
		Option:  TerminalType,
		HasName: true,
		Name:    name,
	}, nil
}

// decodeNewEnviron parses
// IAC SB 39 INFO=2 <kind> <name...> VALUE=1 <value...> IAC SE (RFC 1572).
func decodeNewEnviron(buf []byte) (int, OptionEvent, error) {
	const minLen = 10
	if len(buf) < minLen {
		return needMore, OptionEvent{}, nil
	}
	if Operation(buf[3]) != envINFO {
		return 0, OptionEvent{}, fmt.Errorf("telnet: new-environ subnegotiation missing INFO marker")
	}
	var kind EnvironmentKind
	switch Operation(buf[4]) {
	case envVAR:
		kind = EnvironmentSystem
	case envUSERVAR:
		kind = EnvironmentUser
	default:
		return 0, OptionEvent{}, fmt.Errorf("telnet: new-environ subnegotiation has an invalid variable kind")
	}

	valueSep := indexByte(buf, 5, byte(envVALUE))
	if valueSep == -1 {
		return needMore, OptionEvent{}, nil
	}
	if valueSep == 5 {
		return 0, OptionEvent{}, fmt.Errorf("telnet: new-environ subnegotiation has an empty name")
	}
	name := string(buf[5:valueSep])

	term, ok := findIACSE(buf, valueSep+1)
	if !ok {
		if term == -1 {
			return needMore, OptionEvent{}, nil
		}
		return 0, OptionEvent{}, fmt.Errorf("telnet: new-environ subnegotiation missing trailing IAC SE")
	}
	value := string(buf[valueSep+1 : term])
	if value == "" {
		return 0, OptionEvent{}, fmt.Errorf("telnet: new-environ subnegotiation has an empty value")
	}

	return term + 2, OptionEvent{
		Kind:        EventEnvironmentVariables,
		Command:     SB,
		Option:      EnvironmentVariable,
		HasVariable: true,
		VarName:     name,
		VarValue:    value,
		VarKind:     kind,
	}, nil
}

// decodeUnknownSB scans forward from position 3 (just past the option
// byte) for the two-byte sequence IAC SE, consuming through it. Per
// spec.md §9's REDESIGN FLAG, this scans for the two-byte IAC SE sequence
// rather than a bare SE byte, which would false-match a data byte inside
// an unknown payload that happens to equal 0xF0.
func decodeUnknownSB(opt Option, buf []byte) (int, OptionEvent, error) {
	term, found := scanForIACSE(buf, 3)
	if !found {
		return needMore, OptionEvent{}, nil
	}
	consumed := term + 2
	return consumed, OptionEvent{
		Kind:    EventUnknown,
		Command: SB,
		Option:  opt,
		Bytes:   cloneBytes(buf[:consumed]),
	}, nil
}

// scanForIACSE looks for the first IAC-SE pair at or after start, skipping
// past any IAC byte not immediately followed by SE (an unknown payload may
// contain arbitrary bytes, including a lone 0xFF). It returns -1, false if
// no such pair is present in buf yet.
func scanForIACSE(buf []byte, start int) (int, bool) {
	for i := start; i < len(buf)-1; i++ {
		if Command(buf[i]) == IAC && Command(buf[i+1]) == SE {
			return i, true
		}
	}
	return -1, false
}

// findIACSE scans buf from index start for the two-byte sequence IAC SE.
// It returns the index of the IAC byte and true on a clean match. If an
// IAC is found but not followed by SE, it returns that IAC's index and
// false (a structural error). If no IAC is found at all, it returns -1 and
// false (need more data).
func findIACSE(buf []byte, start int) (int, bool) {
	for i := start; i < len(buf)-1; i++ {
		if Command(buf[i]) == IAC {
			if Command(buf[i+1]) == SE {
				return i, true
			}
			return i, false
		}
	}
	return -1, false
}

// indexByte returns the index of the first occurrence of c in buf at or
// after start, or -1 if not present.
func indexByte(buf []byte, start int, c byte) int {
	for i := start; i < len(buf); i++ {
		if buf[i] == c {
			return i
		}
	}
	return -1
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
