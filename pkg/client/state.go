package client

// State is the connection lifecycle state. Exactly one value is
// current at any time; it is owned by the Manager and only ever moves
// along the edges in validTransition.
type State uint8

const (
	// Disconnected is the initial state, and the state after an
	// explicit Disconnect.
	Disconnected State = iota

	// Connecting means a dial/handshake is in flight for a fresh
	// connection.
	Connecting

	// Connected means the handshake completed and envelopes flow.
	Connected

	// Reconnecting means the connection dropped unexpectedly and
	// automatic retries are in progress.
	Reconnecting

	// Failed means the last handshake attempt failed. It is terminal
	// only once the retry budget is exhausted; until then an automatic
	// reconnect is scheduled.
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// validTransition reports whether the edge from → to is part of the
// lifecycle state machine:
//
//	Disconnected ──connect──────────> Connecting
//	Connecting ───handshake ok──────> Connected
//	Connecting ───handshake fail────> Failed
//	Connected ────transport drop────> Reconnecting | Failed
//	Reconnecting ─handshake ok──────> Connected
//	Reconnecting ─retries exhausted─> Failed
//	Failed ───────connect───────────> Connecting
//	any ──────────disconnect────────> Disconnected
func validTransition(from, to State) bool {
	if to == Disconnected {
		return true
	}
	switch from {
	case Disconnected:
		return to == Connecting
	case Connecting:
		return to == Connected || to == Failed
	case Connected:
		return to == Reconnecting || to == Failed
	case Reconnecting:
		return to == Connected || to == Failed
	case Failed:
		return to == Connecting
	}
	return false
}
