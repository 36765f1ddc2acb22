package main

import (
	"io"

	"github.com/charmbracelet/log"
)

// setupLogger returns a timestamped logger at the named level, falling back
// to info for anything it does not recognise.
func setupLogger(w io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
	})
}
