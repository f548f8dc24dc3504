package control

import (
	"context"
	"time"

	"github.com/offlinefirst/tinymacro/pkg/hotkey"
	"github.com/offlinefirst/tinymacro/pkg/recorder"
)

// HotkeySettings supply the values hotkey actions read at trigger time, so
// a config reload takes effect on the next key press.
type HotkeySettings struct {
	Play     func() PlayOptions
	SavePath func() string
	OpenPath func() string
	// Squelch is how long key capture pauses after a control key. Zero
	// means recorder.DefaultSquelch; negative disables the pause.
	Squelch time.Duration
}

// HotkeyActions returns the callbacks a hotkey.Dispatcher triggers. Record
// and play toggle; stop only stops playback. Every action first squelches
// key capture so the triggering key never lands in a recording.
func (c *Controller) HotkeyActions(ctx context.Context, s HotkeySettings) hotkey.Actions {
	squelch := s.Squelch
	if squelch == 0 {
		squelch = recorder.DefaultSquelch
	}
	guard := func(fn func()) func() {
		return func() {
			c.rec.Squelch(squelch)
			fn()
		}
	}
	playOpts := s.Play
	if playOpts == nil {
		playOpts = DefaultPlayOptions
	}

	actions := hotkey.Actions{
		Record: guard(func() {
			if err := c.ToggleRecording(); err != nil {
				c.logger.Debug("record hotkey rejected", "error", err)
			}
		}),
		Play: guard(func() {
			if c.State() == StatePlaying {
				c.StopPlayback()
				return
			}
			if err := c.Play(ctx, playOpts()); err != nil {
				c.logger.Debug("play hotkey rejected", "error", err)
			}
		}),
		Stop: guard(c.StopPlayback),
	}
	if s.SavePath != nil {
		actions.Save = guard(func() {
			if err := c.SaveFile(s.SavePath()); err != nil {
				c.logger.Warn("save hotkey failed", "error", err)
			}
		})
	}
	if s.OpenPath != nil {
		actions.Open = guard(func() {
			if _, err := c.LoadFile(s.OpenPath()); err != nil {
				c.logger.Warn("open hotkey failed", "error", err)
			}
		})
	}
	return actions
}
