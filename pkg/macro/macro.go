// Package macro defines the recorded event model: timestamped input events
// and the ordered macro they belong to.
package macro

import (
	"errors"
	"fmt"
)

// Kind identifies the payload carried by an Event.
type Kind string

const (
	KindMove       Kind = "move"
	KindClick      Kind = "click"
	KindScroll     Kind = "scroll"
	KindKeyPress   Kind = "kpress"
	KindKeyRelease Kind = "krelease"
)

// Kinds lists every event kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindMove, KindClick, KindScroll, KindKeyPress, KindKeyRelease}
}

// ParseKind validates a serialized kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindMove, KindClick, KindScroll, KindKeyPress, KindKeyRelease:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown event kind %q", s)
	}
}

// Payload is the kind-specific part of an Event. The set of implementations
// is closed: Move, Click, Scroll, KeyPress and KeyRelease.
type Payload interface {
	Kind() Kind
	payload()
}

// Move sets the pointer position.
type Move struct {
	X, Y int
}

// Click is one half of a click: a button press or a button release.
type Click struct {
	X, Y    int
	Button  Button
	Pressed bool
}

// Scroll is a wheel delta. X and Y record the pointer position at scroll time.
type Scroll struct {
	X, Y   int
	DX, DY int
}

// KeyPress presses a key.
type KeyPress struct {
	Key KeySymbol
}

// KeyRelease releases a key.
type KeyRelease struct {
	Key KeySymbol
}

func (Move) Kind() Kind       { return KindMove }
func (Click) Kind() Kind      { return KindClick }
func (Scroll) Kind() Kind     { return KindScroll }
func (KeyPress) Kind() Kind   { return KindKeyPress }
func (KeyRelease) Kind() Kind { return KindKeyRelease }

func (Move) payload()       {}
func (Click) payload()      {}
func (Scroll) payload()     {}
func (KeyPress) payload()   {}
func (KeyRelease) payload() {}

// Event is one recorded action. T is seconds since recording started.
type Event struct {
	T    float64
	Data Payload
}

// Kind returns the kind of the event payload, or "" for an empty event.
func (e Event) Kind() Kind {
	if e.Data == nil {
		return ""
	}
	return e.Data.Kind()
}

// ErrNotMonotonic reports events whose timestamps go backwards.
var ErrNotMonotonic = errors.New("event timestamps must be non-decreasing")

// Macro is an ordered sequence of events. Order is chronological and equals
// insertion order during recording.
type Macro struct {
	Events []Event
}

// New wraps events in a macro without copying.
func New(events ...Event) Macro {
	return Macro{Events: events}
}

// Len returns the number of events.
func (m Macro) Len() int { return len(m.Events) }

// IsEmpty reports whether the macro has no events.
func (m Macro) IsEmpty() bool { return len(m.Events) == 0 }

// Duration returns the timestamp of the last event.
func (m Macro) Duration() float64 {
	if len(m.Events) == 0 {
		return 0
	}
	return m.Events[len(m.Events)-1].T
}

// Clone returns a macro with its own copy of the event slice.
func (m Macro) Clone() Macro {
	if m.Events == nil {
		return Macro{}
	}
	events := make([]Event, len(m.Events))
	copy(events, m.Events)
	return Macro{Events: events}
}

// Validate checks the invariants the player relies on.
func (m Macro) Validate() error {
	prev := 0.0
	for i, ev := range m.Events {
		if ev.Data == nil {
			return fmt.Errorf("event %d: missing payload", i)
		}
		if ev.T < 0 {
			return fmt.Errorf("event %d: negative timestamp %v", i, ev.T)
		}
		if ev.T < prev {
			return fmt.Errorf("event %d: %w (%v after %v)", i, ErrNotMonotonic, ev.T, prev)
		}
		prev = ev.T
	}
	return nil
}

// Summary counts events per kind.
type Summary struct {
	Total    int
	Duration float64
	ByKind   map[Kind]int
}

// Summarize tallies the macro's events.
func (m Macro) Summarize() Summary {
	s := Summary{
		Total:    len(m.Events),
		Duration: m.Duration(),
		ByKind:   make(map[Kind]int, len(Kinds())),
	}
	for _, ev := range m.Events {
		s.ByKind[ev.Kind()]++
	}
	return s
}
