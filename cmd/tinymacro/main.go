package main

import (
	"fmt"
	"os"

	"github.com/offlinefirst/tinymacro/internal/cmd"
)

func main() {
	root := cmd.NewRootCommand()
	if err := root.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tinymacro: %v\n", err)
		os.Exit(1)
	}
}
