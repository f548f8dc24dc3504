// Package hotkey maps reserved keys to control actions. The same bindings
// tell the recorder which keys to leave out of a macro.
package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/offlinefirst/tinymacro/pkg/macro"
	"github.com/offlinefirst/tinymacro/pkg/recorder"
)

// Action identifies a control action bound to a key.
type Action string

const (
	ActionRecord Action = "record"
	ActionPlay   Action = "play"
	ActionSave   Action = "save"
	ActionOpen   Action = "open"
	ActionStop   Action = "stop"
)

// Bindings assigns one key to each action. A zero KeySymbol leaves the
// action unbound.
type Bindings struct {
	Record macro.KeySymbol
	Play   macro.KeySymbol
	Save   macro.KeySymbol
	Open   macro.KeySymbol
	Stop   macro.KeySymbol
}

// DefaultBindings returns F3 record, F7 play, F4 save, F6 open and Esc stop.
func DefaultBindings() Bindings {
	return Bindings{
		Record: macro.Named("f3"),
		Play:   macro.Named("f7"),
		Save:   macro.Named("f4"),
		Open:   macro.Named("f6"),
		Stop:   macro.Named("esc"),
	}
}

// Labels are user-facing key names for each action, as found in config files.
type Labels struct {
	Record string
	Play   string
	Save   string
	Open   string
	Stop   string
}

// ParseBindings converts labels to bindings. Empty labels leave the action
// unbound.
func ParseBindings(l Labels) (Bindings, error) {
	var b Bindings
	fields := []struct {
		action Action
		label  string
		dst    *macro.KeySymbol
	}{
		{ActionRecord, l.Record, &b.Record},
		{ActionPlay, l.Play, &b.Play},
		{ActionSave, l.Save, &b.Save},
		{ActionOpen, l.Open, &b.Open},
		{ActionStop, l.Stop, &b.Stop},
	}
	for _, f := range fields {
		if f.label == "" {
			continue
		}
		sym, err := macro.ParseKeyLabel(f.label)
		if err != nil {
			return Bindings{}, fmt.Errorf("hotkey %s: %w", f.action, err)
		}
		*f.dst = sym
	}
	if err := b.Validate(); err != nil {
		return Bindings{}, err
	}
	return b, nil
}

// Lookup returns the action bound to key.
func (b Bindings) Lookup(key macro.KeySymbol) (Action, bool) {
	if key.IsZero() {
		return "", false
	}
	switch key {
	case b.Record:
		return ActionRecord, true
	case b.Play:
		return ActionPlay, true
	case b.Save:
		return ActionSave, true
	case b.Open:
		return ActionOpen, true
	case b.Stop:
		return ActionStop, true
	}
	return "", false
}

// Keys lists the bound keys.
func (b Bindings) Keys() []macro.KeySymbol {
	out := make([]macro.KeySymbol, 0, 5)
	for _, k := range []macro.KeySymbol{b.Record, b.Play, b.Save, b.Open, b.Stop} {
		if !k.IsZero() {
			out = append(out, k)
		}
	}
	return out
}

// Validate rejects a key bound to more than one action.
func (b Bindings) Validate() error {
	seen := make(map[macro.KeySymbol]bool, 5)
	for _, k := range b.Keys() {
		if seen[k] {
			return fmt.Errorf("hotkey %s is bound to more than one action", k)
		}
		seen[k] = true
	}
	return nil
}

// Actions are the callbacks a Dispatcher triggers. Nil callbacks are ignored.
type Actions struct {
	Record func()
	Play   func()
	Save   func()
	Open   func()
	Stop   func()
}

func (a Actions) empty() bool {
	return a.Record == nil && a.Play == nil && a.Save == nil && a.Open == nil && a.Stop == nil
}

func (a Actions) lookup(action Action) func() {
	switch action {
	case ActionRecord:
		return a.Record
	case ActionPlay:
		return a.Play
	case ActionSave:
		return a.Save
	case ActionOpen:
		return a.Open
	case ActionStop:
		return a.Stop
	}
	return nil
}

// Dispatcher is an input.Handler that fires actions on bound key presses.
// Callbacks run on the input source's goroutine.
type Dispatcher struct {
	bindings atomic.Pointer[Bindings]
	actions  Actions
	logger   *slog.Logger
}

// ErrNoActions is returned when a dispatcher would have nothing to trigger.
var ErrNoActions = errors.New("hotkey dispatcher requires at least one action")

// NewDispatcher constructs a dispatcher.
func NewDispatcher(b Bindings, actions Actions, logger *slog.Logger) (*Dispatcher, error) {
	if actions.empty() {
		return nil, ErrNoActions
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &Dispatcher{actions: actions, logger: logger}
	d.bindings.Store(&b)
	return d, nil
}

// Bindings returns the active bindings.
func (d *Dispatcher) Bindings() Bindings {
	return *d.bindings.Load()
}

// SetBindings swaps the active bindings atomically.
func (d *Dispatcher) SetBindings(b Bindings) error {
	if err := b.Validate(); err != nil {
		return err
	}
	d.bindings.Store(&b)
	d.logger.Info("hotkeys rebound", "record", b.Record.String(), "play", b.Play.String(), "stop", b.Stop.String())
	return nil
}

// Reserved returns a key filter that follows the active bindings.
func (d *Dispatcher) Reserved() recorder.KeyFilter {
	return func(k macro.KeySymbol) bool {
		_, ok := d.bindings.Load().Lookup(k)
		return ok
	}
}

// OnKeyPress triggers the action bound to key, if any.
func (d *Dispatcher) OnKeyPress(key macro.KeySymbol) {
	action, ok := d.bindings.Load().Lookup(key)
	if !ok {
		return
	}
	fn := d.actions.lookup(action)
	if fn == nil {
		return
	}
	d.logger.Debug("hotkey", "action", string(action), "key", key.String())
	fn()
}

// OnKeyRelease is a no-op; actions fire on press.
func (d *Dispatcher) OnKeyRelease(macro.KeySymbol) {}

func (d *Dispatcher) OnMove(int, int) {}

func (d *Dispatcher) OnClick(int, int, macro.Button, bool) {}

func (d *Dispatcher) OnScroll(int, int, int, int) {}
