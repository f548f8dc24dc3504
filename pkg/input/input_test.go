package input

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/offlinefirst/tinymacro/pkg/macro"
)

type collector struct {
	events []macro.Payload
}

func (c *collector) OnMove(x, y int) { c.events = append(c.events, macro.Move{X: x, Y: y}) }

func (c *collector) OnClick(x, y int, b macro.Button, pressed bool) {
	c.events = append(c.events, macro.Click{X: x, Y: y, Button: b, Pressed: pressed})
}

func (c *collector) OnScroll(x, y, dx, dy int) {
	c.events = append(c.events, macro.Scroll{X: x, Y: y, DX: dx, DY: dy})
}

func (c *collector) OnKeyPress(k macro.KeySymbol) { c.events = append(c.events, macro.KeyPress{Key: k}) }

func (c *collector) OnKeyRelease(k macro.KeySymbol) {
	c.events = append(c.events, macro.KeyRelease{Key: k})
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestScriptDeliversStepsInOrder(t *testing.T) {
	steps := []Step{
		{Event: macro.Move{X: 1, Y: 2}},
		{Delay: time.Second, Event: macro.Click{X: 1, Y: 2, Button: macro.ButtonRight, Pressed: true}},
		{Event: macro.Scroll{DY: 1}},
		{Event: macro.KeyPress{Key: macro.Char('a')}},
		{Event: macro.KeyRelease{Key: macro.Char('a')}},
	}
	var slept []time.Duration
	script := Script{Steps: steps, Sleep: func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}}

	c := &collector{}
	if err := script.Listen(context.Background(), c); err != nil {
		t.Fatalf("listen: %v", err)
	}
	if len(c.events) != len(steps) {
		t.Fatalf("expected %d events, got %d", len(steps), len(c.events))
	}
	for i, step := range steps {
		if c.events[i] != step.Event {
			t.Fatalf("event %d: got %#v want %#v", i, c.events[i], step.Event)
		}
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected a single one second wait, got %v", slept)
	}
}

func TestScriptHoldBlocksUntilCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Script{Steps: []Step{{Event: macro.Move{}}}, Hold: true, Sleep: noSleep}.Listen(ctx, &collector{})
	}()

	select {
	case err := <-done:
		t.Fatalf("listen returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("listen did not return after cancel")
	}
}

func TestScriptRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &collector{}
	err := Script{Steps: []Step{{Event: macro.Move{}}}}.Listen(ctx, c)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(c.events) != 0 {
		t.Fatalf("expected no events after cancellation")
	}
}

func TestStepsFromMacroKeepsSpacing(t *testing.T) {
	m := macro.New(
		macro.Event{T: 0.5, Data: macro.Move{}},
		macro.Event{T: 0.75, Data: macro.Move{X: 1}},
		macro.Event{T: 0.75, Data: macro.Move{X: 2}},
	)
	steps := StepsFromMacro(m)
	want := []time.Duration{500 * time.Millisecond, 250 * time.Millisecond, 0}
	for i, step := range steps {
		if step.Delay != want[i] {
			t.Fatalf("step %d: delay %v, want %v", i, step.Delay, want[i])
		}
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := &collector{}, &collector{}
	h := Multi(a, nil, b)
	h.OnMove(3, 4)
	h.OnKeyPress(macro.Named("esc"))
	if len(a.events) != 2 || len(b.events) != 2 {
		t.Fatalf("expected both handlers to see 2 events, got %d and %d", len(a.events), len(b.events))
	}
}

func TestTapeRecordsAndFails(t *testing.T) {
	tape := NewTape(nil)
	boom := errors.New("boom")
	tape.Fail = func(c Call) error {
		if c.Op == OpKeyDown && c.Key == macro.Named("f13") {
			return boom
		}
		return nil
	}

	if err := tape.MoveTo(1, 2); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := tape.KeyDown(macro.Named("f13")); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if err := tape.Press(macro.ButtonLeft); err != nil {
		t.Fatalf("press: %v", err)
	}

	calls := tape.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected failed call to be skipped, got %d calls", len(calls))
	}
	if calls[0].Op != OpMove || calls[1].Op != OpPress {
		t.Fatalf("unexpected calls: %+v", calls)
	}

	tape.Reset()
	if len(tape.Calls()) != 0 {
		t.Fatalf("expected reset to clear calls")
	}
}

func TestDetectEnvironmentSetsFields(t *testing.T) {
	env := DetectEnvironment(nil)
	if env.Provider == "" {
		t.Fatalf("expected provider")
	}
	if env.Permission == "" {
		t.Fatalf("expected permission status")
	}
	if env.Message == "" {
		t.Fatalf("expected message")
	}
}
