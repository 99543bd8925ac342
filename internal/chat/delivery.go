package chat

import "fmt"

// State is the delivery state of a message.
type State string

const (
	Pending   State = "PENDING"
	Sent      State = "SENT"
	Delivered State = "DELIVERED"
	Read      State = "READ"
	Failed    State = "FAILED"
)

// rank orders the forward lattice. FAILED sits outside it.
var rank = map[State]int{
	Pending:   0,
	Sent:      1,
	Delivered: 2,
	Read:      3,
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	if s == Failed {
		return true
	}
	_, ok := rank[s]
	return ok
}

// Unresolved reports whether a message in this state still waits on the
// local client (not yet accepted by the server).
func (s State) Unresolved() bool {
	return s == Pending || s == Failed
}

// Advance returns the state after applying to. Forward moves along
// PENDING → SENT → DELIVERED → READ are taken; regressions are ignored and
// keep s. PENDING → FAILED is the only move into FAILED.
func (s State) Advance(to State) (State, error) {
	if !to.Valid() {
		return s, fmt.Errorf("unknown delivery state %q", to)
	}
	if to == Failed {
		if s != Pending {
			return s, fmt.Errorf("invalid transition from %s to %s", s, to)
		}
		return Failed, nil
	}
	if s == Failed {
		// A failed attempt is superseded by a new attempt, never revived.
		return s, fmt.Errorf("invalid transition from %s to %s", s, to)
	}
	if rank[to] <= rank[s] {
		return s, nil
	}
	return to, nil
}

// ParseState maps a provider status string onto a State. Unknown values
// become SENT since anything the server returns was at least accepted.
func ParseState(v string) State {
	switch v {
	case "pending", "PENDING", "queued":
		return Pending
	case "sent", "SENT", "accepted":
		return Sent
	case "delivered", "DELIVERED":
		return Delivered
	case "read", "READ", "seen":
		return Read
	case "failed", "FAILED", "error":
		return Failed
	default:
		return Sent
	}
}
