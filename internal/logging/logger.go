// Package logging wraps zerolog into one named logger per component,
// replacing the ad-hoc log.Printf call sites the teacher used.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

// base is configured once by Configure (called from main) and shared by
// every Named() logger.
var base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
	With().Timestamp().Logger()

// Configure switches the base logger between a human-readable console
// writer (development) and raw JSON (production), per LOG_FORMAT.
func Configure(jsonFormat bool) {
	if jsonFormat {
		base = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
}

// Named returns a logger tagged with a "component" field, e.g.
// logging.Named("room") for every log site inside the Room.
func Named(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
