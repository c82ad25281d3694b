//go:build unix

package cmd

import (
	"os"

	"golang.org/x/sys/unix"
)

var cancelSignals = []os.Signal{os.Interrupt, unix.SIGQUIT, unix.SIGTERM}
