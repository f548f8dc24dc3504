package input

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/offlinefirst/tinymacro/pkg/macro"
)

// Step is one scripted input event, delivered Delay after the previous step.
type Step struct {
	Delay time.Duration
	Event macro.Payload
}

// Script is a deterministic Source that replays fixed steps. It backs the
// non-darwin default source and the package tests of its consumers.
type Script struct {
	Steps []Step
	// Hold keeps Listen blocked after the last step until ctx is cancelled,
	// mimicking a live source.
	Hold bool
	// Sleep overrides the wait between steps.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Listen delivers each step to h in order.
func (s Script) Listen(ctx context.Context, h Handler) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sleep := s.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	for _, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if step.Delay > 0 {
			if err := sleep(ctx, step.Delay); err != nil {
				return err
			}
		}
		if step.Event != nil {
			Dispatch(h, step.Event)
		}
	}
	if s.Hold {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// StepsFromMacro converts recorded events into script steps that preserve the
// original spacing.
func StepsFromMacro(m macro.Macro) []Step {
	steps := make([]Step, 0, len(m.Events))
	prev := 0.0
	for _, ev := range m.Events {
		delay := time.Duration((ev.T - prev) * float64(time.Second))
		if delay < 0 {
			delay = 0
		}
		steps = append(steps, Step{Delay: delay, Event: ev.Data})
		prev = ev.T
	}
	return steps
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Op names the emitter call captured by a Tape.
type Op string

const (
	OpMove    Op = "move"
	OpPress   Op = "press"
	OpRelease Op = "release"
	OpScroll  Op = "scroll"
	OpKeyDown Op = "keydown"
	OpKeyUp   Op = "keyup"
)

// Call is one emitter invocation captured by a Tape.
type Call struct {
	Op     Op
	X, Y   int
	DX, DY int
	Button macro.Button
	Key    macro.KeySymbol
	At     time.Time
}

// Tape is an Emitter that records every call instead of touching the host.
// Fail, when set, is consulted before recording and its error returned.
type Tape struct {
	mu    sync.Mutex
	calls []Call
	now   func() time.Time

	Fail func(Call) error
}

// NewTape constructs an empty tape. A nil now uses time.Now.
func NewTape(now func() time.Time) *Tape {
	if now == nil {
		now = time.Now
	}
	return &Tape{now: now}
}

// Calls returns a copy of the recorded calls.
func (t *Tape) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// Reset discards recorded calls.
func (t *Tape) Reset() {
	t.mu.Lock()
	t.calls = nil
	t.mu.Unlock()
}

func (t *Tape) record(c Call) error {
	if t.now == nil {
		c.At = time.Now()
	} else {
		c.At = t.now()
	}
	if t.Fail != nil {
		if err := t.Fail(c); err != nil {
			return err
		}
	}
	t.mu.Lock()
	t.calls = append(t.calls, c)
	t.mu.Unlock()
	return nil
}

// MoveTo records a pointer move.
func (t *Tape) MoveTo(x, y int) error { return t.record(Call{Op: OpMove, X: x, Y: y}) }

// Press records a button press.
func (t *Tape) Press(b macro.Button) error { return t.record(Call{Op: OpPress, Button: b}) }

// Release records a button release.
func (t *Tape) Release(b macro.Button) error { return t.record(Call{Op: OpRelease, Button: b}) }

// Scroll records a wheel delta.
func (t *Tape) Scroll(dx, dy int) error { return t.record(Call{Op: OpScroll, DX: dx, DY: dy}) }

// KeyDown records a key press.
func (t *Tape) KeyDown(k macro.KeySymbol) error { return t.record(Call{Op: OpKeyDown, Key: k}) }

// KeyUp records a key release.
func (t *Tape) KeyUp(k macro.KeySymbol) error { return t.record(Call{Op: OpKeyUp, Key: k}) }

// EmitterOptions configures the platform emitter.
type EmitterOptions struct {
	Logger *slog.Logger
}

func (o EmitterOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}
