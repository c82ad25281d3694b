package cmd

import "os"

var cancelSignals = []os.Signal{os.Interrupt}
