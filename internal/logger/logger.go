package logger

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Log is the process-wide structured logger. It is usable before Init with
// logrus defaults so tests and library code never see a nil logger.
var Log = logrus.New()

// Init configures the level and formatter. JSON is used unless stderr is a
// terminal or the environment is development.
func Init(level, environment string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
	Log.SetOutput(os.Stderr)

	if environment == "development" || isatty.IsTerminal(os.Stderr.Fd()) {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	Log.SetFormatter(&logrus.JSONFormatter{})
}

// Silence discards all output. Used by tests that exercise noisy paths.
func Silence() {
	Log.SetOutput(io.Discard)
}
