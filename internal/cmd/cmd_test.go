package cmd

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/offlinefirst/tinymacro/pkg/config"
	"github.com/offlinefirst/tinymacro/pkg/hotkey"
	"github.com/offlinefirst/tinymacro/pkg/input"
	"github.com/offlinefirst/tinymacro/pkg/library"
	"github.com/offlinefirst/tinymacro/pkg/macro"
	"github.com/offlinefirst/tinymacro/pkg/macrofile"
	"github.com/offlinefirst/tinymacro/pkg/permissions"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T) *AppContext {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Library = filepath.Join(dir, "favorites.json")
	cfg.Paths.MacrosDir = filepath.Join(dir, "macros")
	return &AppContext{Config: cfg, Logger: newTestLogger()}
}

// stubDevices replaces every seam that would reach real input devices or
// signals. It returns the tape that collects emitted input.
func stubDevices(t *testing.T, src input.Source) *input.Tape {
	t.Helper()
	tape := input.NewTape(nil)

	origSource, origEmitter, origNotify, origSleeper, origStdin := inputSource, newEmitter, notifyContext, playSleeper, stdinFile
	inputSource = func() input.Source { return src }
	newEmitter = func(input.EmitterOptions) input.Emitter { return tape }
	notifyContext = func(parent context.Context) (context.Context, context.CancelFunc) {
		return context.WithCancel(parent)
	}
	playSleeper = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	stdinFile = func() *os.File { return nil }
	t.Cleanup(func() {
		inputSource, newEmitter, notifyContext, playSleeper, stdinFile = origSource, origEmitter, origNotify, origSleeper, origStdin
	})
	return tape
}

func parseFlags(t *testing.T, cmd command, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if cmd.configure != nil {
		cmd.configure(fs)
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func sampleMacro() macro.Macro {
	return macro.New(
		macro.Event{T: 0, Data: macro.Move{X: 1, Y: 2}},
		macro.Event{T: 0.05, Data: macro.Click{X: 1, Y: 2, Button: macro.ButtonLeft, Pressed: true}},
		macro.Event{T: 0.1, Data: macro.Click{X: 1, Y: 2, Button: macro.ButtonLeft, Pressed: false}},
	)
}

func writeSample(t *testing.T, app *AppContext, name string) string {
	t.Helper()
	path := app.Config.MacroPath(name)
	if err := macrofile.Save(path, sampleMacro()); err != nil {
		t.Fatalf("save sample: %v", err)
	}
	return path
}

func TestRecordCommandSavesUntilHotkey(t *testing.T) {
	app := newTestApp(t)
	stubDevices(t, input.Script{Steps: []input.Step{
		{Event: macro.Move{X: 10, Y: 20}},
		{Event: macro.Click{X: 10, Y: 20, Button: macro.ButtonLeft, Pressed: true}},
		{Event: macro.Click{X: 10, Y: 20, Button: macro.ButtonLeft, Pressed: false}},
		{Event: macro.KeyPress{Key: macro.Char('a')}},
		{Event: macro.KeyRelease{Key: macro.Char('a')}},
		{Event: macro.KeyPress{Key: macro.Named("f3")}},
		{Event: macro.Move{X: 99, Y: 99}},
	}})

	cmd := newRecordCommand()
	fs := parseFlags(t, cmd, "-o", "out.json", "-favorite", "demo")

	var stdout, stderr bytes.Buffer
	if err := runRecord(fs, fs.Args(), app, &stdout, &stderr); err != nil {
		t.Fatalf("runRecord returned error: %v", err)
	}

	m, err := macrofile.Load(app.Config.MacroPath("out.json"))
	if err != nil {
		t.Fatalf("load recording: %v", err)
	}
	if m.Len() != 5 {
		t.Fatalf("expected 5 recorded events, got %d: %+v", m.Len(), m.Events)
	}
	if got := m.Events[3].Data; got != (macro.KeyPress{Key: macro.Char('a')}) {
		t.Fatalf("unexpected key event %+v", got)
	}

	fav, err := library.Open(app.Config.Paths.Library, nil).Get("demo")
	if err != nil {
		t.Fatalf("favorite not stored: %v", err)
	}
	if fav.Len() != 5 {
		t.Fatalf("expected favorite with 5 events, got %d", fav.Len())
	}

	if !strings.Contains(stdout.String(), "Recorded 5 events") {
		t.Fatalf("expected summary output, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "Recording...") {
		t.Fatalf("expected status output, got %q", stderr.String())
	}
}

func TestRecordCommandNothingCaptured(t *testing.T) {
	app := newTestApp(t)
	stubDevices(t, input.Script{})

	cmd := newRecordCommand()
	fs := parseFlags(t, cmd)

	var stderr bytes.Buffer
	err := runRecord(fs, nil, app, io.Discard, &stderr)
	if !errors.Is(err, macrofile.ErrEmptyMacro) {
		t.Fatalf("expected ErrEmptyMacro, got %v", err)
	}
	if !strings.Contains(stderr.String(), "Nothing to save.") {
		t.Fatalf("expected nothing-to-save status, got %q", stderr.String())
	}
}

func TestPlayCommandLoops(t *testing.T) {
	app := newTestApp(t)
	tape := stubDevices(t, input.Script{})
	writeSample(t, app, "sample.json")

	cmd := newPlayCommand()
	fs := parseFlags(t, cmd, "-loops", "2", "-speed", "4", "-hotkeys=false", "sample.json")

	var stdout, stderr bytes.Buffer
	if err := runPlay(fs, fs.Args(), app, &stdout, &stderr); err != nil {
		t.Fatalf("runPlay returned error: %v", err)
	}

	calls := tape.Calls()
	if len(calls) != 10 {
		t.Fatalf("expected 10 emitter calls over two loops, got %d: %+v", len(calls), calls)
	}
	want := []input.Op{input.OpMove, input.OpMove, input.OpPress, input.OpMove, input.OpRelease}
	for i, op := range want {
		if calls[i].Op != op || calls[i+5].Op != op {
			t.Fatalf("call %d: expected %s, got %s / %s", i, op, calls[i].Op, calls[i+5].Op)
		}
	}
	if !strings.Contains(stdout.String(), "6 events emitted over 2 loop(s)") {
		t.Fatalf("unexpected summary %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "Playback finished.") {
		t.Fatalf("expected finished status, got %q", stderr.String())
	}
}

func TestPlayCommandFavorite(t *testing.T) {
	app := newTestApp(t)
	tape := stubDevices(t, input.Script{Hold: true})
	if err := library.Open(app.Config.Paths.Library, nil).Put("fav", sampleMacro()); err != nil {
		t.Fatalf("put favorite: %v", err)
	}

	cmd := newPlayCommand()
	fs := parseFlags(t, cmd, "-favorite", "fav")
	if err := runPlay(fs, fs.Args(), app, io.Discard, io.Discard); err != nil {
		t.Fatalf("runPlay returned error: %v", err)
	}
	if len(tape.Calls()) != 5 {
		t.Fatalf("expected 5 emitter calls, got %d", len(tape.Calls()))
	}
}

func TestPlayCommandMissingFile(t *testing.T) {
	app := newTestApp(t)
	stubDevices(t, input.Script{})

	cmd := newPlayCommand()
	fs := parseFlags(t, cmd, "-hotkeys=false", "missing.json")
	var stderr bytes.Buffer
	if err := runPlay(fs, fs.Args(), app, io.Discard, &stderr); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if !strings.Contains(stderr.String(), "Load failed:") {
		t.Fatalf("expected load failure status, got %q", stderr.String())
	}
}

func TestResolvePlayOptions(t *testing.T) {
	cmd := newPlayCommand()
	app := newTestApp(t)
	app.Config.Player.Loops = 3
	app.Config.Player.JitterPixels = 2

	fs := parseFlags(t, cmd, "-speed", "2")
	opts := resolvePlayOptions(fs, playOptions(app))
	if opts.Speed != 2 || opts.Loops != 3 || opts.JitterPixels != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}

	fs = parseFlags(t, cmd, "-speed", "fast", "-loops", "0")
	opts = resolvePlayOptions(fs, playOptions(app))
	if opts.Speed != 1 || opts.Loops != 1 {
		t.Fatalf("expected malformed values to normalise, got %+v", opts)
	}
}

func TestInspectCommand(t *testing.T) {
	app := newTestApp(t)
	path := writeSample(t, app, "sample.json")

	cmd := newInspectCommand()
	fs := parseFlags(t, cmd, "-events", path)

	var stdout bytes.Buffer
	if err := runInspect(fs, fs.Args(), app, &stdout, io.Discard); err != nil {
		t.Fatalf("runInspect returned error: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"Events: 3", "Duration: 0.100s", "click", "move x=1 y=2", "click left press x=1 y=2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %q", want, out)
		}
	}
}

func TestInspectCommandRejectsInvalidFile(t *testing.T) {
	app := newTestApp(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"version":1,"events":[{"t":0,"kind":"warp","data":{}}]}`), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cmd := newInspectCommand()
	fs := parseFlags(t, cmd, path)
	err := runInspect(fs, fs.Args(), app, io.Discard, io.Discard)
	if !errors.Is(err, macrofile.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestFavoritesCommandLifecycle(t *testing.T) {
	app := newTestApp(t)
	writeSample(t, app, "sample.json")
	cmd := newFavoritesCommand()

	run := func(args ...string) (string, error) {
		var stdout bytes.Buffer
		fs := parseFlags(t, cmd, args...)
		err := runFavorites(fs, fs.Args(), app, &stdout, io.Discard)
		return stdout.String(), err
	}

	if out, err := run("list"); err != nil || !strings.Contains(out, "No favorites") {
		t.Fatalf("expected empty listing, got %q (%v)", out, err)
	}
	if _, err := run("add", "greet", "sample.json"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err := run()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "greet") || !strings.Contains(out, "0.100s") {
		t.Fatalf("expected favorite in listing, got %q", out)
	}

	if _, err := run("export", "greet", "copy.json"); err != nil {
		t.Fatalf("export: %v", err)
	}
	exported, err := macrofile.Load(app.Config.MacroPath("copy.json"))
	if err != nil || exported.Len() != 3 {
		t.Fatalf("expected exported macro with 3 events, got %d (%v)", exported.Len(), err)
	}

	if _, err := run("remove", "greet"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := run("remove", "greet"); !errors.Is(err, library.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second remove, got %v", err)
	}
	if _, err := run("frobnicate"); err == nil {
		t.Fatalf("expected unknown action error")
	}
}

func TestDoctorCommand(t *testing.T) {
	app := newTestApp(t)
	orig := lookupEnv
	lookupEnv = func(key string) (string, bool) {
		switch key {
		case permissions.EnvAccessibility, permissions.EnvInputMonitoring:
			return "granted", true
		}
		return "", false
	}
	defer func() { lookupEnv = orig }()

	var stdout bytes.Buffer
	cmd := newDoctorCommand()
	fs := parseFlags(t, cmd)
	if err := runDoctor(fs, nil, app, &stdout, io.Discard); err != nil {
		t.Fatalf("runDoctor returned error: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"Input backend:", "Permission accessibility: granted", "Permission input monitoring: granted", "hotkeys: record=F3 play=F7", "server.addr: 127.0.0.1:8765"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %q", want, out)
		}
	}
}

func TestServeCommandRoutesAPI(t *testing.T) {
	app := newTestApp(t)
	stubDevices(t, input.Script{})

	var status, body string
	orig := serveHTTP
	serveHTTP = func(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.RemoteAddr = "127.0.0.1:40000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		status = rec.Result().Status
		body = rec.Body.String()
		return nil
	}
	defer func() { serveHTTP = orig }()

	cmd := newServeCommand()
	fs := parseFlags(t, cmd, "-no-input", "-no-watch", "-addr", "127.0.0.1:0")
	var stdout bytes.Buffer
	if err := runServe(fs, nil, app, &stdout, io.Discard); err != nil {
		t.Fatalf("runServe returned error: %v", err)
	}
	if !strings.HasPrefix(status, "200") {
		t.Fatalf("expected 200 from /status, got %s", status)
	}
	if !strings.Contains(body, `"state":"idle"`) {
		t.Fatalf("expected idle state, got %s", body)
	}
	if !strings.Contains(stdout.String(), "127.0.0.1:0") {
		t.Fatalf("expected listen address in output, got %q", stdout.String())
	}
}

func TestLiveConfigApply(t *testing.T) {
	app := newTestApp(t)
	stubDevices(t, input.Script{})

	e, err := newEngine(app, nil)
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	dispatcher, err := hotkey.NewDispatcher(e.bindings, hotkey.Actions{Stop: func() {}}, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	live := &liveConfig{app: app, e: e, dispatcher: dispatcher}
	live.cfg.Store(&app.Config)

	next := app.Config
	next.Hotkeys.Record = "F9"
	next.Player.Loops = 4
	if err := live.apply(next); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := dispatcher.Bindings().Record; got != macro.Named("f9") {
		t.Fatalf("expected record rebound to f9, got %s", got)
	}
	if got := playOptionsFor(live.current()).Loops; got != 4 {
		t.Fatalf("expected reloaded loops 4, got %d", got)
	}

	clash := next
	clash.Hotkeys.Play = "F9"
	live.onChange(clash, nil)
	if got := dispatcher.Bindings().Play; got != macro.Named("f7") {
		t.Fatalf("expected clashing reload to be rejected, play bound to %s", got)
	}
	live.onChange(config.Config{}, errors.New("boom"))
	if live.current().Player.Loops != 4 {
		t.Fatalf("expected failed reload to keep settings")
	}
}

func TestIsStopKey(t *testing.T) {
	for _, b := range []byte{'q', 'Q', 0x1b, 0x03} {
		if !isStopKey(b) {
			t.Fatalf("expected %q to stop", b)
		}
	}
	if isStopKey('a') {
		t.Fatalf("expected 'a' to be ignored")
	}
}
