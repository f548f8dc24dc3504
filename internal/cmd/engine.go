package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/offlinefirst/tinymacro/pkg/config"
	"github.com/offlinefirst/tinymacro/pkg/control"
	"github.com/offlinefirst/tinymacro/pkg/hotkey"
	"github.com/offlinefirst/tinymacro/pkg/input"
	"github.com/offlinefirst/tinymacro/pkg/library"
	"github.com/offlinefirst/tinymacro/pkg/metrics"
	"github.com/offlinefirst/tinymacro/pkg/player"
	"github.com/offlinefirst/tinymacro/pkg/recorder"
)

// Seams replaced by tests so commands never touch real input devices.
var (
	inputSource   = input.DefaultSource
	newEmitter    = input.DefaultEmitter
	notifyContext = func(parent context.Context) (context.Context, context.CancelFunc) {
		return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	}
)

// playSleeper overrides the player's waits when set.
var playSleeper func(context.Context, time.Duration) error

// engine is the recorder, player and controller wired from configuration.
type engine struct {
	rec      *recorder.Recorder
	player   *player.Player
	ctrl     *control.Controller
	lib      *library.Library
	bindings hotkey.Bindings
}

func newEngine(app *AppContext, status player.StatusSink) (*engine, error) {
	if app == nil {
		return nil, errors.New("application context unavailable")
	}
	metrics.Init()
	cfg := app.Config

	bindings, err := cfg.Bindings()
	if err != nil {
		return nil, fmt.Errorf("hotkeys: %w", err)
	}

	rec := recorder.New(recorder.Options{
		MoveMinInterval: cfg.MoveMinInterval(),
		KeyFilter:       recorder.ReservedSet(bindings.Keys()...),
		IgnoreMouse:     !cfg.Recorder.TrackMouse,
		IgnoreKeys:      !cfg.Recorder.TrackKeys,
		Logger:          app.Logger.With("component", "recorder"),
	})

	ply, err := player.New(player.Options{
		Emitter: newEmitter(input.EmitterOptions{Logger: app.Logger.With("component", "emitter")}),
		Sleeper: playSleeper,
		Logger:  app.Logger.With("component", "player"),
	})
	if err != nil {
		return nil, err
	}

	ctrl, err := control.New(control.Options{
		Recorder: rec,
		Player:   ply,
		Logger:   app.Logger.With("component", "controller"),
		Status:   status,
	})
	if err != nil {
		return nil, err
	}

	return &engine{
		rec:      rec,
		player:   ply,
		ctrl:     ctrl,
		lib:      library.Open(cfg.Paths.Library, app.Logger.With("component", "library")),
		bindings: bindings,
	}, nil
}

// playOptions returns the configured playback defaults.
func playOptions(app *AppContext) control.PlayOptions {
	return playOptionsFor(app.Config)
}

func playOptionsFor(cfg config.Config) control.PlayOptions {
	return control.PlayOptions{
		Speed:        cfg.Player.Speed,
		Loops:        cfg.Player.Loops,
		JitterPixels: cfg.Player.JitterPixels,
	}.Normalize()
}

func statusPrinter(w io.Writer) player.StatusSink {
	return func(msg string) {
		fmt.Fprintln(w, msg)
	}
}

// listen runs src until ctx ends. Cancellation is the normal way out and is
// not reported as an error.
func listen(ctx context.Context, src input.Source, h input.Handler) error {
	err := src.Listen(ctx, h)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
