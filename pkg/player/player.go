// Package player replays macros through an input.Emitter with scaled timing,
// positional jitter and cancellable waits.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/offlinefirst/tinymacro/pkg/input"
	"github.com/offlinefirst/tinymacro/pkg/macro"
	"github.com/offlinefirst/tinymacro/pkg/metrics"
)

// Status messages reported through the StatusSink.
const (
	StatusNothingToPlay = "Nothing to play."
	StatusPlaying       = "Playing..."
	StatusFinished      = "Playback finished."
	StatusStopped       = "Playback stopped."
)

var (
	// ErrNothingToPlay is returned for a macro without events.
	ErrNothingToPlay = errors.New("nothing to play")
	// ErrAlreadyPlaying is returned when Play is called during playback.
	ErrAlreadyPlaying = errors.New("already playing")
)

// StatusSink receives human-readable progress messages.
type StatusSink func(string)

// ErrorStatus formats the status reported for a skipped event.
func ErrorStatus(err error) string {
	return "Playback error: " + err.Error()
}

// Outcome describes how a playback pass ended.
type Outcome string

const (
	OutcomeFinished Outcome = metrics.OutcomeFinished
	OutcomeStopped  Outcome = metrics.OutcomeStopped
)

// Params are the per-run playback settings.
type Params struct {
	// Speed scales timing: 2 plays twice as fast. Non-positive or
	// non-finite values are treated as 1.
	Speed float64
	// JitterPixels offsets move and click coordinates by a uniform random
	// amount in [-JitterPixels, +JitterPixels] on each axis. Values above
	// MaxJitterPixels are capped.
	JitterPixels int
}

// Result summarises one playback pass.
type Result struct {
	Outcome Outcome
	Emitted int
	Failed  int
}

// Options configure a Player.
type Options struct {
	Emitter input.Emitter
	Sleeper func(context.Context, time.Duration) error
	Logger  *slog.Logger
	// IntN returns a uniform integer in [0, n). Tests override it to make
	// jitter deterministic.
	IntN func(n int) int
}

// Player replays one macro at a time. Stop is sticky: once called, playback
// keeps refusing to emit until Reset, so a caller looping over passes can
// observe a stop that lands between two of them.
type Player struct {
	emitter input.Emitter
	sleeper func(context.Context, time.Duration) error
	logger  *slog.Logger
	intN    func(int) int

	mu      sync.Mutex
	playing bool
	stopped bool
	cancel  context.CancelFunc
}

// New validates options and constructs a player.
func New(opts Options) (*Player, error) {
	if opts.Emitter == nil {
		return nil, errors.New("player requires an emitter")
	}
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = defaultSleeper
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	intN := opts.IntN
	if intN == nil {
		intN = rand.IntN
	}
	return &Player{
		emitter: opts.Emitter,
		sleeper: sleeper,
		logger:  logger,
		intN:    intN,
	}, nil
}

// MaxJitterPixels caps the jitter radius.
const MaxJitterPixels = 1 << 16

// NormalizeJitter clamps jitter to [0, MaxJitterPixels].
func NormalizeJitter(jitter int) int {
	return min(max(jitter, 0), MaxJitterPixels)
}

// NormalizeSpeed maps unusable speed values to 1.
func NormalizeSpeed(speed float64) float64 {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return 1.0
	}
	return speed
}

// Schedule precomputes the wait before each event: the gap to the previous
// event (or to t=0 for the first one) divided by speed, never negative.
func Schedule(events []macro.Event, speed float64) []time.Duration {
	speed = NormalizeSpeed(speed)
	waits := make([]time.Duration, len(events))
	prev := 0.0
	for i, ev := range events {
		dt := (ev.T - prev) / speed
		switch ns := dt * float64(time.Second); {
		case ns >= math.MaxInt64:
			waits[i] = time.Duration(math.MaxInt64)
		case ns > 0:
			waits[i] = time.Duration(ns)
		}
		prev = ev.T
	}
	return waits
}

// Playing reports whether a pass is in progress.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Stopped reports whether Stop has been called since the last Reset.
func (p *Player) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Stop interrupts the current wait and prevents further emission. It is
// idempotent and safe to call while idle.
func (p *Player) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset clears a previous Stop.
func (p *Player) Reset() {
	p.mu.Lock()
	p.stopped = false
	p.mu.Unlock()
}

// Play replays m and blocks until it finishes, is stopped, or ctx ends.
// Failures on individual events are reported through sink and skipped.
func (p *Player) Play(ctx context.Context, m macro.Macro, params Params, sink StatusSink) (Result, error) {
	if sink == nil {
		sink = func(string) {}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if m.IsEmpty() {
		sink(StatusNothingToPlay)
		return Result{}, ErrNothingToPlay
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		cancel()
		return Result{}, ErrAlreadyPlaying
	}
	p.playing = true
	p.cancel = cancel
	if p.stopped {
		cancel()
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.playing = false
		p.cancel = nil
		p.mu.Unlock()
		cancel()
	}()

	sink(StatusPlaying)
	speed := NormalizeSpeed(params.Speed)
	jitter := NormalizeJitter(params.JitterPixels)
	waits := Schedule(m.Events, speed)
	p.logger.Debug("playback started", "events", m.Len(), "speed", speed, "jitter", jitter)

	res := Result{Outcome: OutcomeFinished}
	for i, ev := range m.Events {
		if runCtx.Err() != nil {
			res.Outcome = OutcomeStopped
			break
		}
		metrics.ObserveWait(waits[i])
		if waits[i] > 0 {
			if err := p.sleeper(runCtx, waits[i]); err != nil {
				res.Outcome = OutcomeStopped
				break
			}
		}
		if runCtx.Err() != nil {
			res.Outcome = OutcomeStopped
			break
		}

		kind := string(ev.Kind())
		if err := p.emit(ev, jitter); err != nil {
			res.Failed++
			metrics.IncPlaybackError(kind)
			p.logger.Warn("playback event failed", "index", i, "kind", kind, "error", err)
			sink(ErrorStatus(err))
			continue
		}
		res.Emitted++
		metrics.IncEmitted(kind)
	}

	metrics.IncPlaybackRun(string(res.Outcome))
	p.logger.Debug("playback ended", "outcome", res.Outcome, "emitted", res.Emitted, "failed", res.Failed)
	if res.Outcome == OutcomeStopped {
		sink(StatusStopped)
	} else {
		sink(StatusFinished)
	}
	return res, nil
}

func (p *Player) offset(jitter int) int {
	jitter = NormalizeJitter(jitter)
	if jitter == 0 {
		return 0
	}
	return p.intN(2*jitter+1) - jitter
}

func (p *Player) emit(ev macro.Event, jitter int) error {
	switch data := ev.Data.(type) {
	case macro.Move:
		x := data.X + p.offset(jitter)
		y := data.Y + p.offset(jitter)
		return p.emitter.MoveTo(x, y)
	case macro.Click:
		x := data.X + p.offset(jitter)
		y := data.Y + p.offset(jitter)
		if err := p.emitter.MoveTo(x, y); err != nil {
			return err
		}
		if data.Pressed {
			return p.emitter.Press(data.Button)
		}
		return p.emitter.Release(data.Button)
	case macro.Scroll:
		return p.emitter.Scroll(data.DX, data.DY)
	case macro.KeyPress:
		if data.Key.IsZero() {
			return input.ErrUnresolvedKey
		}
		return p.emitter.KeyDown(data.Key)
	case macro.KeyRelease:
		if data.Key.IsZero() {
			return input.ErrUnresolvedKey
		}
		return p.emitter.KeyUp(data.Key)
	default:
		return fmt.Errorf("unsupported event payload %T", ev.Data)
	}
}

func defaultSleeper(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
