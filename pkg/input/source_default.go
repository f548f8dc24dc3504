//go:build !darwin

package input

import (
	"time"

	"github.com/offlinefirst/tinymacro/pkg/macro"
)

// defaultSource returns a short synthetic session followed by an idle hold,
// so record/play can be exercised end to end on hosts without a global hook.
func defaultSource() Source {
	return Script{Steps: demoTimeline(40 * time.Millisecond), Hold: true}
}

func demoTimeline(step time.Duration) []Step {
	return []Step{
		{Delay: step, Event: macro.Move{X: 100, Y: 100}},
		{Delay: step, Event: macro.Move{X: 140, Y: 120}},
		{Delay: step, Event: macro.Move{X: 180, Y: 140}},
		{Delay: step, Event: macro.Click{X: 180, Y: 140, Button: macro.ButtonLeft, Pressed: true}},
		{Delay: step, Event: macro.Click{X: 180, Y: 140, Button: macro.ButtonLeft}},
		{Delay: step, Event: macro.KeyPress{Key: macro.Char('h')}},
		{Delay: step, Event: macro.KeyRelease{Key: macro.Char('h')}},
		{Delay: step, Event: macro.KeyPress{Key: macro.Char('i')}},
		{Delay: step, Event: macro.KeyRelease{Key: macro.Char('i')}},
		{Delay: step, Event: macro.KeyPress{Key: macro.Named("enter")}},
		{Delay: step, Event: macro.KeyRelease{Key: macro.Named("enter")}},
		{Delay: step, Event: macro.Scroll{X: 180, Y: 140, DY: -3}},
	}
}

// logEmitter reports synthesised input through the logger instead of the host.
type logEmitter struct {
	opts EmitterOptions
}

func defaultEmitter(opts EmitterOptions) Emitter {
	return logEmitter{opts: opts}
}

func (e logEmitter) MoveTo(x, y int) error {
	e.opts.logger().Debug("emit move", "x", x, "y", y)
	return nil
}

func (e logEmitter) Press(b macro.Button) error {
	e.opts.logger().Debug("emit press", "button", string(b))
	return nil
}

func (e logEmitter) Release(b macro.Button) error {
	e.opts.logger().Debug("emit release", "button", string(b))
	return nil
}

func (e logEmitter) Scroll(dx, dy int) error {
	e.opts.logger().Debug("emit scroll", "dx", dx, "dy", dy)
	return nil
}

func (e logEmitter) KeyDown(k macro.KeySymbol) error {
	if k.IsZero() {
		return ErrUnresolvedKey
	}
	e.opts.logger().Debug("emit key down", "key", k.String())
	return nil
}

func (e logEmitter) KeyUp(k macro.KeySymbol) error {
	if k.IsZero() {
		return ErrUnresolvedKey
	}
	e.opts.logger().Debug("emit key up", "key", k.String())
	return nil
}
