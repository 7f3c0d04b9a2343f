package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	SetJSON(false)
}

func Get() *zerolog.Logger {
	return &log
}

// With returns a sub-logger tagged with the component name. Call it after
// SetJSON so the sub-logger picks up the chosen output.
func With(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

func SetDebug(enabled bool) {
	if enabled {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// SetJSON switches between line-delimited JSON and the human console format.
func SetJSON(enabled bool) {
	var out io.Writer = os.Stderr
	if !enabled {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	log = zerolog.New(out).With().Timestamp().Logger()
}
