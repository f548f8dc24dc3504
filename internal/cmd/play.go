package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/offlinefirst/tinymacro/pkg/control"
	"github.com/offlinefirst/tinymacro/pkg/hotkey"
	"github.com/offlinefirst/tinymacro/pkg/macro"
)

func newPlayCommand() command {
	return command{
		name:        "play",
		usage:       "[-speed x] [-loops n] [-jitter px] [-favorite name] [file]",
		description: "Replay a recorded macro",
		configure: func(fs *flag.FlagSet) {
			fs.String("speed", "", "Playback speed multiplier (default: player.speed)")
			fs.String("loops", "", "Number of passes (default: player.loops)")
			fs.String("jitter", "", "Random pointer offset in pixels (default: player.jitter_pixels)")
			fs.String("favorite", "", "Play a macro from the favorites library instead of a file")
			fs.Bool("hotkeys", true, "Listen for the stop hotkey during playback")
		},
		run: runPlay,
	}
}

func runPlay(fs *flag.FlagSet, args []string, app *AppContext, stdout io.Writer, stderr io.Writer) error {
	if app == nil {
		return fmt.Errorf("application context unavailable")
	}

	e, err := newEngine(app, statusPrinter(stderr))
	if err != nil {
		return err
	}

	var (
		m      macro.Macro
		source string
	)
	if name := stringFlag(fs, "favorite"); name != "" {
		if m, err = e.lib.Get(name); err != nil {
			return fmt.Errorf("load favorite %q: %w", name, err)
		}
		if err := e.ctrl.SetMacro(m); err != nil {
			return err
		}
		source = "favorite " + name
	} else {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		source = app.Config.MacroPath(name)
		if m, err = e.ctrl.LoadFile(source); err != nil {
			return err
		}
	}

	opts := resolvePlayOptions(fs, playOptions(app))
	app.Logger.Info("play command invoked", "source", source, "events", m.Len(), "speed", opts.Speed, "loops", opts.Loops, "jitter", opts.JitterPixels)

	runCtx, cancel := notifyContext(context.Background())
	defer cancel()

	listenerDone := make(chan error, 1)
	if boolFlag(fs, "hotkeys") {
		dispatcher, err := hotkey.NewDispatcher(e.bindings, hotkey.Actions{Stop: e.ctrl.StopPlayback}, app.Logger.With("component", "hotkey"))
		if err != nil {
			return err
		}
		go func() { listenerDone <- listen(runCtx, inputSource(), dispatcher) }()
	} else {
		listenerDone <- nil
	}

	restore := watchStopKeys(runCtx, e.ctrl.StopPlayback)
	defer restore()

	if err := e.ctrl.Play(runCtx, opts); err != nil {
		return err
	}
	result, err := e.ctrl.Wait(context.Background())
	cancel()
	if listenErr := <-listenerDone; listenErr != nil {
		app.Logger.Warn("hotkey listener failed", "error", listenErr)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Playback %s: %d events emitted over %d loop(s)", result.Outcome, result.Emitted, result.Loops)
	if result.Failed > 0 {
		fmt.Fprintf(stdout, ", %d failed", result.Failed)
	}
	fmt.Fprintln(stdout)
	return nil
}

// resolvePlayOptions overlays command line values on the configured
// defaults. Malformed values fall back to the defaults.
func resolvePlayOptions(fs *flag.FlagSet, defaults control.PlayOptions) control.PlayOptions {
	speed := stringFlag(fs, "speed")
	if speed == "" {
		speed = strconv.FormatFloat(defaults.Speed, 'g', -1, 64)
	}
	loops := stringFlag(fs, "loops")
	if loops == "" {
		loops = strconv.Itoa(defaults.Loops)
	}
	jitter := stringFlag(fs, "jitter")
	if jitter == "" {
		jitter = strconv.Itoa(defaults.JitterPixels)
	}
	return control.ParseOptions(speed, loops, jitter)
}

func boolFlag(fs *flag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	if f == nil {
		return false
	}
	value, err := strconv.ParseBool(f.Value.String())
	if err != nil {
		return false
	}
	return value
}
