package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/offlinefirst/tinymacro/pkg/hotkey"
	"github.com/offlinefirst/tinymacro/pkg/input"
)

func newRecordCommand() command {
	return command{
		name:        "record",
		usage:       "[-o file] [-duration d] [-favorite name]",
		description: "Record mouse and keyboard input into a macro file",
		configure: func(fs *flag.FlagSet) {
			fs.String("o", "", "Output file (default: <macros_dir>/macro.json)")
			fs.Duration("duration", 0, "Stop automatically after this long (0 waits for a stop key)")
			fs.String("favorite", "", "Also store the recording in the favorites library under this name")
		},
		run: runRecord,
	}
}

func runRecord(fs *flag.FlagSet, args []string, app *AppContext, stdout io.Writer, stderr io.Writer) error {
	if app == nil {
		return fmt.Errorf("application context unavailable")
	}
	output := stringFlag(fs, "o")
	if output == "" && len(args) > 0 {
		output = args[0]
	}
	duration := durationFlag(fs, "duration")
	favorite := stringFlag(fs, "favorite")

	e, err := newEngine(app, statusPrinter(stderr))
	if err != nil {
		return err
	}

	runCtx, cancel := notifyContext(context.Background())
	defer cancel()
	if duration > 0 {
		var stopTimer context.CancelFunc
		runCtx, stopTimer = context.WithTimeout(runCtx, duration)
		defer stopTimer()
	}

	dispatcher, err := hotkey.NewDispatcher(e.bindings, hotkey.Actions{
		Record: cancel,
		Stop:   cancel,
	}, app.Logger.With("component", "hotkey"))
	if err != nil {
		return err
	}
	e.rec.SetKeyFilter(dispatcher.Reserved())

	if err := e.ctrl.StartRecording(); err != nil {
		return err
	}
	app.Logger.Info("record command invoked", "output", app.Config.MacroPath(output), "duration", duration.String(), "favorite", favorite)
	fmt.Fprintf(stderr, "Press %s, %s or q to stop.\n", app.Config.Hotkeys.Record, app.Config.Hotkeys.Stop)

	restore := watchStopKeys(runCtx, cancel)
	listenErr := listen(runCtx, inputSource(), input.Multi(e.rec, dispatcher))
	restore()

	m := e.ctrl.StopRecording()
	if listenErr != nil {
		return fmt.Errorf("input source: %w", listenErr)
	}

	path := app.Config.MacroPath(output)
	if err := e.ctrl.SaveFile(path); err != nil {
		return fmt.Errorf("save recording: %w", err)
	}
	if favorite != "" {
		if err := e.lib.Put(favorite, m); err != nil {
			return fmt.Errorf("store favorite %q: %w", favorite, err)
		}
		fmt.Fprintf(stdout, "Favorite: %s\n", favorite)
	}

	summary := m.Summarize()
	fmt.Fprintf(stdout, "Recorded %d events (%.3fs) -> %s\n", summary.Total, summary.Duration, path)
	return nil
}

func stringFlag(fs *flag.FlagSet, name string) string {
	f := fs.Lookup(name)
	if f == nil {
		return ""
	}
	return f.Value.String()
}

func durationFlag(fs *flag.FlagSet, name string) time.Duration {
	f := fs.Lookup(name)
	if f == nil {
		return 0
	}
	if getter, ok := f.Value.(flag.Getter); ok {
		if d, ok := getter.Get().(time.Duration); ok {
			return d
		}
	}
	return 0
}
