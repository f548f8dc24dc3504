// Package control owns the recorder, the player and the current macro, and
// keeps recording and playback mutually exclusive. CLI commands, hotkeys and
// the HTTP API all drive the same Controller.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/offlinefirst/tinymacro/pkg/macro"
	"github.com/offlinefirst/tinymacro/pkg/macrofile"
	"github.com/offlinefirst/tinymacro/pkg/player"
	"github.com/offlinefirst/tinymacro/pkg/recorder"
)

// Controller states.
const (
	StateIdle      = "idle"
	StateRecording = "recording"
	StatePlaying   = "playing"
)

// Status messages reported by the controller itself. Playback progress
// messages come from the player package.
const (
	StatusReady                    = "Ready."
	StatusRecording                = "Recording..."
	StatusCantRecordDuringPlayback = "Can't record during playback."
	StatusStopRecordingFirst       = "Stop recording first."
	StatusAlreadyPlaying           = "Already playing."
	StatusStoppingPlayback         = "Stopping playback..."
	StatusNothingToSave            = "Nothing to save."
)

var (
	// ErrBusy is returned when an operation conflicts with recording or playback.
	ErrBusy = errors.New("controller busy")
	// ErrNothingToPlay is returned when the current macro has no events.
	ErrNothingToPlay = player.ErrNothingToPlay
	// ErrEmptyMacro is returned when saving a macro without events.
	ErrEmptyMacro = macrofile.ErrEmptyMacro
)

// Options configure a Controller.
type Options struct {
	Recorder *recorder.Recorder
	Player   *player.Player
	Logger   *slog.Logger
	// Status receives every status message in order.
	Status player.StatusSink
	Clock  func() time.Time
}

// TimelineEntry records a controller state transition.
type TimelineEntry struct {
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const maxTimeline = 256

// Controller coordinates recording and playback of a single current macro.
type Controller struct {
	rec    *recorder.Recorder
	ply    *player.Player
	logger *slog.Logger
	clock  func() time.Time

	mu         sync.Mutex
	recording  bool
	playing    bool
	current    macro.Macro
	done       chan struct{}
	lastResult PlaybackResult
	timeline   []TimelineEntry
	sessionID  string

	sinkMu sync.Mutex
	sink   player.StatusSink
	status atomic.Pointer[string]
}

// PlaybackResult aggregates the passes of one Play call.
type PlaybackResult struct {
	SessionID string         `json:"session_id,omitempty"`
	Outcome   player.Outcome `json:"outcome,omitempty"`
	Loops     int            `json:"loops"`
	Emitted   int            `json:"emitted"`
	Failed    int            `json:"failed"`
}

// New constructs an idle controller.
func New(opts Options) (*Controller, error) {
	if opts.Recorder == nil {
		return nil, errors.New("controller requires a recorder")
	}
	if opts.Player == nil {
		return nil, errors.New("controller requires a player")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	c := &Controller{
		rec:    opts.Recorder,
		ply:    opts.Player,
		logger: logger,
		clock:  clock,
		sink:   opts.Status,
	}
	c.mu.Lock()
	c.recordLocked(StateIdle, "created")
	c.mu.Unlock()
	c.setStatus(StatusReady)
	return c, nil
}

func (c *Controller) setStatus(msg string) {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	c.status.Store(&msg)
	if c.sink != nil {
		c.sink(msg)
	}
}

// Status returns the most recent status message.
func (c *Controller) Status() string {
	if s := c.status.Load(); s != nil {
		return *s
	}
	return ""
}

func (c *Controller) recordLocked(state, reason string) {
	c.timeline = append(c.timeline, TimelineEntry{State: state, Reason: reason, Timestamp: c.clock().UTC()})
	if len(c.timeline) > maxTimeline {
		c.timeline = append([]TimelineEntry(nil), c.timeline[len(c.timeline)-maxTimeline:]...)
	}
}

// Timeline returns a copy of the recorded state transitions.
func (c *Controller) Timeline() []TimelineEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]TimelineEntry(nil), c.timeline...)
}

// State reports "idle", "recording" or "playing".
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() string {
	switch {
	case c.recording:
		return StateRecording
	case c.playing:
		return StatePlaying
	default:
		return StateIdle
	}
}

// StartRecording begins a new recording. It is a no-op while recording and
// fails with ErrBusy during playback.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	if c.playing {
		c.mu.Unlock()
		c.setStatus(StatusCantRecordDuringPlayback)
		return fmt.Errorf("%w: playback in progress", ErrBusy)
	}
	if c.recording {
		c.mu.Unlock()
		return nil
	}
	c.rec.Start()
	c.recording = true
	c.recordLocked(StateRecording, "start requested")
	c.mu.Unlock()

	c.logger.Info("recording started")
	c.setStatus(StatusRecording)
	return nil
}

// StopRecording ends the recording and makes it the current macro. While
// idle it returns the current macro unchanged.
func (c *Controller) StopRecording() macro.Macro {
	c.mu.Lock()
	if !c.recording {
		m := c.current.Clone()
		c.mu.Unlock()
		return m
	}
	m := c.rec.Stop()
	c.recording = false
	c.current = m
	c.recordLocked(StateIdle, "recording stopped")
	c.mu.Unlock()

	c.logger.Info("recording stopped", "events", m.Len(), "duration", m.Duration())
	c.setStatus(fmt.Sprintf("Recorded %d events.", m.Len()))
	return m.Clone()
}

// Play starts asynchronous playback of the current macro. Use Wait to join
// it and StopPlayback to cancel it.
func (c *Controller) Play(ctx context.Context, opts PlayOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts = opts.Normalize()

	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		c.setStatus(StatusStopRecordingFirst)
		return fmt.Errorf("%w: recording in progress", ErrBusy)
	}
	if c.playing {
		c.mu.Unlock()
		c.setStatus(StatusAlreadyPlaying)
		return fmt.Errorf("%w: %w", ErrBusy, player.ErrAlreadyPlaying)
	}
	if c.current.IsEmpty() {
		c.mu.Unlock()
		c.setStatus(player.StatusNothingToPlay)
		return ErrNothingToPlay
	}
	m := c.current.Clone()
	done := make(chan struct{})
	c.playing = true
	c.done = done
	c.sessionID = uuid.NewString()
	session := c.sessionID
	c.ply.Reset()
	c.recordLocked(StatePlaying, fmt.Sprintf("session %s: %d loops at %.2fx", session, opts.Loops, opts.Speed))
	c.mu.Unlock()

	c.logger.Info("playback started", "session", session, "events", m.Len(), "loops", opts.Loops, "speed", opts.Speed, "jitter", opts.JitterPixels)
	go c.runPlayback(ctx, session, m, opts, done)
	return nil
}

func (c *Controller) runPlayback(ctx context.Context, session string, m macro.Macro, opts PlayOptions, done chan struct{}) {
	result := PlaybackResult{SessionID: session, Outcome: player.OutcomeFinished}
	params := player.Params{Speed: opts.Speed, JitterPixels: opts.JitterPixels}

	for loop := 0; loop < opts.Loops; loop++ {
		if loop > 0 && c.ply.Stopped() {
			result.Outcome = player.OutcomeStopped
			break
		}
		res, err := c.ply.Play(ctx, m, params, c.setStatus)
		if err != nil {
			c.logger.Error("playback failed", "session", session, "loop", loop, "error", err)
			c.setStatus(player.ErrorStatus(err))
			result.Outcome = player.OutcomeStopped
			break
		}
		result.Loops++
		result.Emitted += res.Emitted
		result.Failed += res.Failed
		if res.Outcome == player.OutcomeStopped {
			result.Outcome = player.OutcomeStopped
			break
		}
	}

	c.mu.Lock()
	c.playing = false
	c.lastResult = result
	c.recordLocked(StateIdle, fmt.Sprintf("session %s %s", session, result.Outcome))
	close(done)
	c.mu.Unlock()

	c.logger.Info("playback ended", "session", session, "outcome", result.Outcome, "loops", result.Loops, "emitted", result.Emitted, "failed", result.Failed)
}

// StopPlayback requests cancellation. It is safe to call at any time; the
// request is observed at the next wait and between loops.
func (c *Controller) StopPlayback() {
	c.mu.Lock()
	playing := c.playing
	c.mu.Unlock()
	c.ply.Stop()
	if playing {
		c.setStatus(StatusStoppingPlayback)
	}
}

// Wait blocks until the current playback, if any, ends or ctx is done.
func (c *Controller) Wait(ctx context.Context) (PlaybackResult, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return PlaybackResult{}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-done:
	case <-ctx.Done():
		return PlaybackResult{}, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult, nil
}

// LastResult returns the outcome of the most recent playback.
func (c *Controller) LastResult() PlaybackResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

// Macro returns a copy of the current macro. During a recording it is a
// snapshot of the events captured so far.
func (c *Controller) Macro() macro.Macro {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording {
		return c.rec.Macro()
	}
	return c.current.Clone()
}

// SetMacro replaces the current macro. It fails with ErrBusy while
// recording or playing.
func (c *Controller) SetMacro(m macro.Macro) error {
	if err := m.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording || c.playing {
		return fmt.Errorf("%w: %s", ErrBusy, c.stateLocked())
	}
	c.current = m.Clone()
	return nil
}

// SaveFile writes the current macro to path.
func (c *Controller) SaveFile(path string) error {
	m := c.Macro()
	if m.IsEmpty() {
		c.setStatus(StatusNothingToSave)
		return ErrEmptyMacro
	}
	if err := macrofile.Save(path, m); err != nil {
		c.setStatus("Save failed: " + err.Error())
		return err
	}
	c.logger.Info("macro saved", "path", path, "events", m.Len())
	c.setStatus(fmt.Sprintf("Saved %d events to %s", m.Len(), path))
	return nil
}

// LoadFile reads path and makes it the current macro. On any error the
// current macro is left untouched.
func (c *Controller) LoadFile(path string) (macro.Macro, error) {
	m, err := macrofile.Load(path)
	if err != nil {
		c.setStatus("Load failed: " + err.Error())
		return macro.Macro{}, err
	}
	if err := c.SetMacro(m); err != nil {
		c.setStatus("Load failed: " + err.Error())
		return macro.Macro{}, err
	}
	c.logger.Info("macro loaded", "path", path, "events", m.Len())
	c.setStatus(fmt.Sprintf("Loaded %s from %s", pluralEvents(m.Len()), path))
	return m, nil
}

// Encode serializes the current macro.
func (c *Controller) Encode() ([]byte, error) {
	return macrofile.Encode(c.Macro())
}

// Decode parses data and makes it the current macro. On any error the
// current macro is left untouched.
func (c *Controller) Decode(data []byte) (macro.Macro, error) {
	m, err := macrofile.Decode(data)
	if err != nil {
		return macro.Macro{}, err
	}
	if err := c.SetMacro(m); err != nil {
		return macro.Macro{}, err
	}
	return m, nil
}

// ToggleRecording starts a recording when idle and stops it when recording.
func (c *Controller) ToggleRecording() error {
	c.mu.Lock()
	recording := c.recording
	c.mu.Unlock()
	if recording {
		c.StopRecording()
		return nil
	}
	return c.StartRecording()
}

func pluralEvents(n int) string {
	if n == 1 {
		return "1 event"
	}
	return fmt.Sprintf("%d events", n)
}
