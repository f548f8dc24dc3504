package cmd

import (
	"flag"
	"fmt"
	"io"

	"github.com/offlinefirst/tinymacro/internal/buildinfo"
)

func newVersionCommand() command {
	return command{
		name:        "version",
		description: "Print the CLI version information",
		skipInit:    true,
		configure: func(fs *flag.FlagSet) {
			fs.Bool("long", false, "Include commit and build date")
		},
		run: func(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
			if !boolFlag(fs, "long") {
				_, err := fmt.Fprintln(stdout, versionString())
				return err
			}
			info := buildinfo.Get()
			_, err := fmt.Fprintf(stdout, "%s\ncommit: %s\nbuilt: %s\n", versionString(), info.Commit, info.BuildDate)
			return err
		},
	}
}
