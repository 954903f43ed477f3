package status

import (
	"fmt"
	"slices"
)

// Status is the delivery state of a stored message.
type Status string

const (
	Received  Status = "received"
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Read      Status = "read"
	Failed    Status = "failed"
)

// validTransitions defines allowed forward moves. Provider status events are
// not ordered, so anything not listed here is treated as a stale update.
var validTransitions = map[Status][]Status{
	Received:  {},
	Sent:      {Delivered, Read, Failed},
	Delivered: {Read, Failed},
	Read:      {},
	Failed:    {},
}

// Parse validates a provider status string.
func Parse(s string) (Status, error) {
	st := Status(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("unknown message status %q", s)
	}
	return st, nil
}

// CanAdvance reports whether a message in state s may move to state to.
func (s Status) CanAdvance(to Status) bool {
	return slices.Contains(validTransitions[s], to)
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// Predecessors returns every state from which to is directly reachable,
// in a stable order. The store uses it to build a conditional update.
func Predecessors(to Status) []Status {
	var out []Status
	for _, from := range []Status{Received, Sent, Delivered, Read, Failed} {
		if from.CanAdvance(to) {
			out = append(out, from)
		}
	}
	return out
}
