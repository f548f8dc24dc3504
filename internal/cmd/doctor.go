package cmd

import (
	"flag"
	"fmt"
	"io"

	"github.com/offlinefirst/tinymacro/pkg/input"
	"github.com/offlinefirst/tinymacro/pkg/permissions"
)

// lookupEnv feeds the permission probes.
var lookupEnv permissions.LookupEnvFunc = permissions.DefaultLookupEnv

func newDoctorCommand() command {
	return command{
		name:        "doctor",
		description: "Report input backend, permissions and resolved configuration",
		run:         runDoctor,
	}
}

func runDoctor(fs *flag.FlagSet, args []string, app *AppContext, stdout io.Writer, stderr io.Writer) error {
	if app == nil {
		return fmt.Errorf("application context unavailable")
	}
	cfg := app.Config

	env := input.DetectEnvironment(lookupEnv)
	fmt.Fprintf(stdout, "tinymacro %s\n", versionString())
	fmt.Fprintf(stdout, "Input backend: %s (available=%t permission=%s)\n", env.Provider, env.Available, env.Permission)
	if env.Message != "" {
		fmt.Fprintf(stdout, "  %s\n", env.Message)
	}
	if env.Guidance != "" {
		fmt.Fprintf(stdout, "  grant via: %s\n", env.Guidance)
	}

	for _, probe := range []struct {
		name   string
		result permissions.ProbeResult
	}{
		{"accessibility", permissions.ProbeAccessibility(lookupEnv)},
		{"input monitoring", permissions.ProbeInputMonitoring(lookupEnv)},
	} {
		fmt.Fprintf(stdout, "Permission %s: %s", probe.name, probe.result.StatusString())
		if probe.result.Message != "" {
			fmt.Fprintf(stdout, " (%s)", probe.result.Message)
		}
		fmt.Fprintln(stdout)
	}

	fmt.Fprintf(stdout, "Configuration (source: %s)\n", cfg.Source)
	fmt.Fprintf(stdout, "  hotkeys: record=%s play=%s save=%s open=%s stop=%s\n", cfg.Hotkeys.Record, cfg.Hotkeys.Play, cfg.Hotkeys.Save, cfg.Hotkeys.Open, cfg.Hotkeys.Stop)
	fmt.Fprintf(stdout, "  recorder: move_min_interval_ms=%d squelch_ms=%d track_mouse=%t track_keys=%t\n", cfg.Recorder.MoveMinIntervalMS, cfg.Recorder.SquelchMS, cfg.Recorder.TrackMouse, cfg.Recorder.TrackKeys)
	fmt.Fprintf(stdout, "  player: speed=%g loops=%d jitter_pixels=%d\n", cfg.Player.Speed, cfg.Player.Loops, cfg.Player.JitterPixels)
	fmt.Fprintf(stdout, "  paths: library=%s macros_dir=%s\n", cfg.Paths.Library, cfg.Paths.MacrosDir)
	fmt.Fprintf(stdout, "  server.addr: %s\n", cfg.Server.Addr)
	fmt.Fprintf(stdout, "  logging: level=%s format=%s\n", cfg.Logging.Level, cfg.Logging.Format)

	if !env.Available {
		return fmt.Errorf("input backend unavailable: %s", env.Message)
	}
	return nil
}
