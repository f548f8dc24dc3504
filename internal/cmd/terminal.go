package cmd

import (
	"context"
	"os"

	"golang.org/x/term"
)

// stdinFile is the terminal watched for stop keys.
var stdinFile = func() *os.File { return os.Stdin }

// watchStopKeys puts an interactive stdin into raw mode and calls stop when
// q, Esc or Ctrl-C is typed. Raw mode swallows the interrupt signal, so
// Ctrl-C is handled here. The returned func restores the terminal; it is a
// no-op when stdin is not a terminal.
func watchStopKeys(ctx context.Context, stop func()) (restore func()) {
	in := stdinFile()
	if in == nil {
		return func() {}
	}
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}
	}

	go func() {
		buf := make([]byte, 1)
		for {
			n, err := in.Read(buf)
			if err != nil {
				return
			}
			if ctx.Err() != nil {
				return
			}
			if n == 1 && isStopKey(buf[0]) {
				stop()
				return
			}
		}
	}()

	return func() {
		_ = term.Restore(fd, state)
	}
}

func isStopKey(b byte) bool {
	switch b {
	case 'q', 'Q', 0x1b, 0x03:
		return true
	}
	return false
}
