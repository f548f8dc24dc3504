package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/offlinefirst/tinymacro/internal/server"
	"github.com/offlinefirst/tinymacro/pkg/config"
	"github.com/offlinefirst/tinymacro/pkg/control"
	"github.com/offlinefirst/tinymacro/pkg/hotkey"
	"github.com/offlinefirst/tinymacro/pkg/input"
)

// playbackDrainTimeout bounds how long serve waits for playback to stop on exit.
const playbackDrainTimeout = 3 * time.Second

var serveHTTP = server.Serve

func newServeCommand() command {
	return command{
		name:        "serve",
		usage:       "[-addr host:port] [-no-input] [-no-watch]",
		description: "Run the hotkey listener and the local control API",
		configure: func(fs *flag.FlagSet) {
			fs.String("addr", "", "Listen address (default: server.addr)")
			fs.Bool("no-input", false, "Do not listen for input; the API can still play macros")
			fs.Bool("no-watch", false, "Do not reload the config file when it changes")
		},
		run: runServe,
	}
}

func runServe(fs *flag.FlagSet, args []string, app *AppContext, stdout io.Writer, stderr io.Writer) error {
	if app == nil {
		return fmt.Errorf("application context unavailable")
	}
	addr := stringFlag(fs, "addr")
	if addr == "" {
		addr = app.Config.Server.Addr
	}

	e, err := newEngine(app, func(msg string) {
		app.Logger.Info("status", "message", msg)
	})
	if err != nil {
		return err
	}

	runCtx, cancel := notifyContext(context.Background())
	defer cancel()

	live := &liveConfig{app: app, e: e}
	live.cfg.Store(&app.Config)

	actions := e.ctrl.HotkeyActions(runCtx, control.HotkeySettings{
		Play:     func() control.PlayOptions { return playOptionsFor(live.current()) },
		SavePath: func() string { return live.current().MacroPath("") },
		OpenPath: func() string { return live.current().MacroPath("") },
		Squelch:  app.Config.Squelch(),
	})
	dispatcher, err := hotkey.NewDispatcher(e.bindings, actions, app.Logger.With("component", "hotkey"))
	if err != nil {
		return err
	}
	e.rec.SetKeyFilter(dispatcher.Reserved())
	live.dispatcher = dispatcher

	var wg sync.WaitGroup
	if !boolFlag(fs, "no-input") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listen(runCtx, inputSource(), input.Multi(e.rec, dispatcher)); err != nil {
				app.Logger.Error("input source stopped", "error", err)
			}
		}()
	}
	if !boolFlag(fs, "no-watch") && app.Config.Source != config.Default().Source {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := config.Watch(runCtx, app.Config.Source, live.onChange); err != nil {
				app.Logger.Warn("config watch disabled", "path", app.Config.Source, "error", err)
			}
		}()
	}

	router := server.NewRouter(server.Deps{
		Controller:   e.ctrl,
		Favorites:    e.lib,
		Logger:       app.Logger.With("component", "api"),
		PlayDefaults: func() control.PlayOptions { return playOptionsFor(live.current()) },
		BaseContext:  runCtx,
	})

	fmt.Fprintf(stdout, "Control API on http://%s (record %s, play %s, stop %s)\n", addr, app.Config.Hotkeys.Record, app.Config.Hotkeys.Play, app.Config.Hotkeys.Stop)
	serveErr := serveHTTP(runCtx, addr, router, app.Logger.With("component", "server"))

	cancel()
	e.ctrl.StopPlayback()
	drainCtx, drainCancel := context.WithTimeout(context.Background(), playbackDrainTimeout)
	defer drainCancel()
	if _, err := e.ctrl.Wait(drainCtx); err != nil {
		app.Logger.Warn("playback did not stop in time", "error", err)
	}
	if e.ctrl.State() == control.StateRecording {
		m := e.ctrl.StopRecording()
		app.Logger.Info("recording discarded on shutdown", "events", m.Len())
	}
	wg.Wait()
	return serveErr
}

// liveConfig holds the configuration a running serve command reads at
// trigger time and applies file changes to it.
type liveConfig struct {
	app        *AppContext
	e          *engine
	dispatcher *hotkey.Dispatcher
	cfg        atomic.Pointer[config.Config]
}

func (l *liveConfig) current() config.Config {
	return *l.cfg.Load()
}

func (l *liveConfig) onChange(cfg config.Config, err error) {
	if err != nil {
		l.app.Logger.Warn("config reload failed; keeping previous settings", "error", err)
		return
	}
	if err := l.apply(cfg); err != nil {
		l.app.Logger.Warn("config reload rejected; keeping previous settings", "error", err)
	}
}

// apply switches hotkeys, log level, input tracking and playback defaults to
// cfg. Paths and the listen address need a restart.
func (l *liveConfig) apply(cfg config.Config) error {
	bindings, err := cfg.Bindings()
	if err != nil {
		return err
	}
	if l.dispatcher != nil {
		if err := l.dispatcher.SetBindings(bindings); err != nil {
			return err
		}
	}
	if err := l.app.SetLogLevel(cfg.Logging.Level); err != nil {
		return err
	}
	l.e.rec.SetTracking(cfg.Recorder.TrackMouse, cfg.Recorder.TrackKeys)

	prev := l.current()
	if prev.Paths != cfg.Paths || prev.Server != cfg.Server {
		l.app.Logger.Warn("paths and server settings change on restart", "source", cfg.Source)
	}
	l.cfg.Store(&cfg)
	l.app.Logger.Info("config reloaded", slog.String("source", cfg.Source), slog.String("log_level", cfg.Logging.Level))
	return nil
}
