package logger

import (
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Pretty returns a colorized, human-friendly logger for CLI commands. The
// zap logger stays on the server path; commands that talk to a person use
// this one.
func Pretty(debug bool) *charmlog.Logger {
	return PrettyWithWriter(debug, os.Stderr)
}

func PrettyWithWriter(debug bool, w io.Writer) *charmlog.Logger {
	level := charmlog.InfoLevel
	if debug {
		level = charmlog.DebugLevel
	}

	return charmlog.NewWithOptions(w, charmlog.Options{
		Level:           level,
		ReportTimestamp: false,
	})
}
