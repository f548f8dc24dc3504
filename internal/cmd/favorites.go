package cmd

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/offlinefirst/tinymacro/pkg/library"
	"github.com/offlinefirst/tinymacro/pkg/macrofile"
)

func newFavoritesCommand() command {
	return command{
		name:        "favorites",
		usage:       "list | add NAME [FILE] | remove NAME | export NAME [FILE]",
		description: "Manage the named macro library",
		run:         runFavorites,
	}
}

func runFavorites(fs *flag.FlagSet, args []string, app *AppContext, stdout io.Writer, stderr io.Writer) error {
	if app == nil {
		return fmt.Errorf("application context unavailable")
	}
	lib := library.Open(app.Config.Paths.Library, app.Logger.With("component", "library"))

	action := "list"
	if len(args) > 0 {
		action = args[0]
		args = args[1:]
	}

	switch action {
	case "list", "ls":
		return listFavorites(lib, stdout)
	case "add":
		if len(args) < 1 {
			return fmt.Errorf("usage: tinymacro favorites add NAME [FILE]")
		}
		path := app.Config.MacroPath(optionalArg(args, 1))
		m, err := macrofile.Load(path)
		if err != nil {
			return err
		}
		if err := lib.Put(args[0], m); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Added %q (%d events) from %s\n", args[0], m.Len(), path)
		return nil
	case "remove", "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: tinymacro favorites remove NAME")
		}
		if err := lib.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Removed %q\n", args[0])
		return nil
	case "export":
		if len(args) < 1 {
			return fmt.Errorf("usage: tinymacro favorites export NAME [FILE]")
		}
		m, err := lib.Get(args[0])
		if err != nil {
			return err
		}
		path := app.Config.MacroPath(optionalArg(args, 1))
		if err := macrofile.Save(path, m); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Exported %q (%d events) to %s\n", args[0], m.Len(), path)
		return nil
	default:
		return fmt.Errorf("unknown favorites action %q", action)
	}
}

func listFavorites(lib *library.Library, stdout io.Writer) error {
	entries, err := lib.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(stdout, "No favorites in %s\n", lib.Path())
		return nil
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tEVENTS\tDURATION")
	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%.3fs\n", entry.Name, entry.Events, entry.Duration)
	}
	return tw.Flush()
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
