package scan

import "github.com/praetorian-inc/scanrt/pkg/types"

// Matching is a match handler's decision.
type Matching int

const (
	// Continue scanning.
	Continue Matching = iota
	// Terminate stops the current call. Databases, scratch and streams stay
	// usable.
	Terminate
)

// MatchHandler is called synchronously for every match, before the scan call
// that found it returns. Offsets are byte offsets into the logical input.
type MatchHandler func(id uint32, from, to uint64, flags uint32) Matching

// Outcome is how a successful scan call ended.
type Outcome int

const (
	// Completed means the input was exhausted.
	Completed Outcome = iota
	// Terminated means a handler returned Terminate. It is not an error.
	Terminated
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Collect returns a handler appending every match to dst.
func Collect(dst *[]types.MatchEvent) MatchHandler {
	return func(id uint32, from, to uint64, flags uint32) Matching {
		*dst = append(*dst, types.MatchEvent{ID: id, From: from, To: to, Flags: flags})
		return Continue
	}
}

// First returns a handler that records the first match and terminates.
func First(dst *types.MatchEvent) MatchHandler {
	return func(id uint32, from, to uint64, flags uint32) Matching {
		*dst = types.MatchEvent{ID: id, From: from, To: to, Flags: flags}
		return Terminate
	}
}

// call bridges one MatchHandler to the backend for the duration of a single
// scan, feed or close.
type call struct {
	h        MatchHandler
	matches  int64
	panicked any
}

func (c *call) match(id uint32, from, to uint64, flags uint32) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			c.panicked = r
			cont = false
		}
	}()
	c.matches++
	return c.h(id, from, to, flags) == Continue
}

// rethrow re-raises a handler panic once the backend has returned.
func (c *call) rethrow() {
	if c.panicked != nil {
		panic(c.panicked)
	}
}
