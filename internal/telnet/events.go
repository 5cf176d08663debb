package telnet

// EventKind tags which variant an OptionEvent carries.
type EventKind int

const (
	EventEcho EventKind = iota
	EventStatus
	EventLinemode
	EventTransmitBinary
	EventAuthentication
	EventTerminalSpeed
	EventRemoteFlowControl
	EventXDisplayLocation
	EventSuppressGoAhead
	EventWindowSize
	EventTerminalType
	EventEnvironmentVariables
	EventUnknown
)

// eventNames gives the canonical event name published for each kind, plus
// the short aliases spec.md §4.4 requires alongside it.
var eventNames = map[EventKind]struct {
	canonical string
	aliases   []string
}{
	EventEcho:                 {"echo", nil},
	EventStatus:               {"status", nil},
	EventLinemode:             {"linemode", nil},
	EventTransmitBinary:       {"transmit binary", nil},
	EventAuthentication:       {"authentication", nil},
	EventTerminalSpeed:        {"terminal speed", nil},
	EventRemoteFlowControl:    {"remote flow control", nil},
	EventXDisplayLocation:     {"x display location", nil},
	EventSuppressGoAhead:      {"suppress go ahead", nil},
	EventWindowSize:           {"window size", []string{"size", "naws"}},
	EventTerminalType:         {"terminal type", []string{"term"}},
	EventEnvironmentVariables: {"environment variables", []string{"env", "new environ"}},
	EventUnknown:              {"unknown", nil},
}

// Names returns the canonical event name and its aliases for k.
func (k EventKind) Names() (canonical string, aliases []string) {
	n := eventNames[k]
	return n.canonical, n.aliases
}

// OptionEvent is the structured result of a successful decode. Only the
// fields relevant to Kind are populated; the rest are zero values.
type OptionEvent struct {
	Kind    EventKind
	Command Command
	Option  Option

	// WindowSize payload (Kind == EventWindowSize, Command == SB).
	HasSize bool
	Width   uint16
	Height  uint16

	// TerminalType payload (Kind == EventTerminalType, Command == SB).
	HasName bool
	Name    string

	// EnvironmentVariables payload (Kind == EventEnvironmentVariables, Command == SB).
	HasVariable bool
	VarName     string
	VarValue    string
	VarKind     EnvironmentKind

	// Unknown payload.
	Bytes []byte
}
