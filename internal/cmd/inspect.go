package cmd

import (
	"flag"
	"fmt"
	"io"

	"github.com/offlinefirst/tinymacro/pkg/macro"
	"github.com/offlinefirst/tinymacro/pkg/macrofile"
)

func newInspectCommand() command {
	return command{
		name:        "inspect",
		usage:       "[-events] [file]",
		description: "Validate a macro file and summarise its events",
		configure: func(fs *flag.FlagSet) {
			fs.Bool("events", false, "List every event")
		},
		run: runInspect,
	}
}

func runInspect(fs *flag.FlagSet, args []string, app *AppContext, stdout io.Writer, stderr io.Writer) error {
	if app == nil {
		return fmt.Errorf("application context unavailable")
	}
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	path := app.Config.MacroPath(name)

	m, err := macrofile.Load(path)
	if err != nil {
		return err
	}

	summary := m.Summarize()
	fmt.Fprintf(stdout, "File: %s\n", path)
	fmt.Fprintf(stdout, "Events: %d\n", summary.Total)
	fmt.Fprintf(stdout, "Duration: %.3fs\n", summary.Duration)
	for _, kind := range macro.Kinds() {
		if n := summary.ByKind[kind]; n > 0 {
			fmt.Fprintf(stdout, "  %-9s %d\n", kind, n)
		}
	}

	if boolFlag(fs, "events") {
		fmt.Fprintln(stdout, "Timeline:")
		for i, ev := range m.Events {
			fmt.Fprintf(stdout, "  %4d %9.3f  %s\n", i, ev.T, describeEvent(ev.Data))
		}
	}
	return nil
}

func describeEvent(p macro.Payload) string {
	switch v := p.(type) {
	case macro.Move:
		return fmt.Sprintf("move x=%d y=%d", v.X, v.Y)
	case macro.Click:
		action := "release"
		if v.Pressed {
			action = "press"
		}
		return fmt.Sprintf("click %s %s x=%d y=%d", v.Button, action, v.X, v.Y)
	case macro.Scroll:
		return fmt.Sprintf("scroll dx=%d dy=%d x=%d y=%d", v.DX, v.DY, v.X, v.Y)
	case macro.KeyPress:
		return fmt.Sprintf("kpress %s", v.Key)
	case macro.KeyRelease:
		return fmt.Sprintf("krelease %s", v.Key)
	default:
		return "unknown"
	}
}
