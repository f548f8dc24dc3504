// Package recorder turns live input callbacks into a timestamped macro.
package recorder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/offlinefirst/tinymacro/pkg/clock"
	"github.com/offlinefirst/tinymacro/pkg/macro"
	"github.com/offlinefirst/tinymacro/pkg/metrics"
)

const (
	// DefaultMoveMinInterval is the minimum spacing between recorded moves.
	DefaultMoveMinInterval = 10 * time.Millisecond
	// DefaultSquelch is how long key events are ignored after a control action.
	DefaultSquelch = 180 * time.Millisecond
)

// KeyFilter reports whether a key is reserved and must not be recorded.
type KeyFilter func(macro.KeySymbol) bool

// ReservedSet returns a filter matching exactly the given keys.
func ReservedSet(keys ...macro.KeySymbol) KeyFilter {
	set := make(map[macro.KeySymbol]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return func(k macro.KeySymbol) bool {
		_, ok := set[k]
		return ok
	}
}

// Options configures a Recorder.
type Options struct {
	// MoveMinInterval throttles pointer moves. Zero selects the default;
	// a negative value disables the interval check.
	MoveMinInterval time.Duration
	Clock           *clock.Clock
	KeyFilter       KeyFilter
	IgnoreMouse     bool
	IgnoreKeys      bool
	Logger          *slog.Logger
	// Now drives the squelch window.
	Now func() time.Time
}

// Recorder appends events while recording. Its callbacks implement
// input.Handler and may be invoked from any goroutine.
type Recorder struct {
	mu sync.Mutex

	clock   *clock.Clock
	now     func() time.Time
	logger  *slog.Logger
	moveMin float64
	filter  KeyFilter

	trackMouse bool
	trackKeys  bool

	recording bool
	events    []macro.Event
	frozen    macro.Macro
	lastT     float64

	haveMove  bool
	lastMoveT float64
	lastMoveX int
	lastMoveY int

	squelchUntil time.Time
}

// New constructs an idle recorder.
func New(opts Options) *Recorder {
	interval := opts.MoveMinInterval
	if interval == 0 {
		interval = DefaultMoveMinInterval
	}
	if interval < 0 {
		interval = 0
	}
	c := opts.Clock
	if c == nil {
		c = clock.New()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{
		clock:      c,
		now:        now,
		logger:     logger,
		moveMin:    interval.Seconds(),
		filter:     opts.KeyFilter,
		trackMouse: !opts.IgnoreMouse,
		trackKeys:  !opts.IgnoreKeys,
	}
}

// Start clears the macro and begins recording. It reports false when a
// recording is already in progress.
func (r *Recorder) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return false
	}
	r.events = nil
	r.lastT = 0
	r.haveMove = false
	r.clock.Start()
	r.recording = true
	r.logger.Debug("recording started")
	return true
}

// Stop ends recording and returns the frozen macro. No event is appended
// after Stop returns. Calling Stop while idle returns the last macro.
func (r *Recorder) Stop() macro.Macro {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		r.recording = false
		r.frozen = macro.New(r.events...)
		r.events = nil
		r.logger.Debug("recording stopped", "events", r.frozen.Len(), "duration", r.frozen.Duration())
	}
	return r.frozen.Clone()
}

// Recording reports whether the recorder is capturing.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Macro returns a snapshot of the events captured so far, or the last frozen
// macro when idle.
func (r *Recorder) Macro() macro.Macro {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return macro.New(r.events...).Clone()
	}
	return r.frozen.Clone()
}

// SetKeyFilter swaps the reserved-key predicate.
func (r *Recorder) SetKeyFilter(f KeyFilter) {
	r.mu.Lock()
	r.filter = f
	r.mu.Unlock()
}

// SetTracking enables or disables capture of mouse and keyboard events.
func (r *Recorder) SetTracking(mouse, keys bool) {
	r.mu.Lock()
	r.trackMouse = mouse
	r.trackKeys = keys
	r.mu.Unlock()
}

// Squelch drops every key event for d, so the key that triggered a control
// action does not end up in the macro.
func (r *Recorder) Squelch(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	until := r.now().Add(d)
	if until.After(r.squelchUntil) {
		r.squelchUntil = until
	}
	r.mu.Unlock()
}

// appendLocked stamps and appends an event. The stamp is taken under the lock
// and never precedes the previous one.
func (r *Recorder) appendLocked(p macro.Payload) float64 {
	t := r.clock.Elapsed()
	if t < r.lastT {
		t = r.lastT
	}
	r.lastT = t
	r.events = append(r.events, macro.Event{T: t, Data: p})
	metrics.IncRecorded(string(p.Kind()))
	return t
}

// OnMove records a pointer move that passes the throttle.
func (r *Recorder) OnMove(x, y int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording || !r.trackMouse {
		return
	}
	if r.haveMove {
		if x == r.lastMoveX && y == r.lastMoveY {
			metrics.IncThrottledMove()
			return
		}
		if r.clock.Elapsed()-r.lastMoveT < r.moveMin {
			metrics.IncThrottledMove()
			return
		}
	}
	r.lastMoveT = r.appendLocked(macro.Move{X: x, Y: y})
	r.lastMoveX, r.lastMoveY = x, y
	r.haveMove = true
}

// OnClick records a button press or release.
func (r *Recorder) OnClick(x, y int, button macro.Button, pressed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording || !r.trackMouse {
		return
	}
	r.appendLocked(macro.Click{X: x, Y: y, Button: button, Pressed: pressed})
}

// OnScroll records a wheel delta.
func (r *Recorder) OnScroll(x, y, dx, dy int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording || !r.trackMouse {
		return
	}
	r.appendLocked(macro.Scroll{X: x, Y: y, DX: dx, DY: dy})
}

// OnKeyPress records a key press unless it is filtered or squelched.
func (r *Recorder) OnKeyPress(key macro.KeySymbol) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.acceptKeyLocked(key) {
		return
	}
	r.appendLocked(macro.KeyPress{Key: key})
}

// OnKeyRelease records a key release unless it is filtered or squelched.
func (r *Recorder) OnKeyRelease(key macro.KeySymbol) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.acceptKeyLocked(key) {
		return
	}
	r.appendLocked(macro.KeyRelease{Key: key})
}

func (r *Recorder) acceptKeyLocked(key macro.KeySymbol) bool {
	if !r.recording || !r.trackKeys || key.IsZero() {
		return false
	}
	if r.now().Before(r.squelchUntil) {
		metrics.IncFilteredKey()
		return false
	}
	if r.filter != nil && r.filter(key) {
		metrics.IncFilteredKey()
		return false
	}
	return true
}
