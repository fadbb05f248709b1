// Package logx configures the process-wide zerolog logger. All packages log
// through zerolog contexts derived from the global log.Logger.
package logx

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config is populated from LOG_* environment variables.
type Config struct {
	// Debug lowers the level to debug; per-generation and per-tool-call
	// traces only appear at that level.
	Debug bool `split_words:"true" default:"false"`
	// Pretty switches to the human-readable console writer for local runs.
	Pretty bool `split_words:"true" default:"false"`
}

func Init(conf Config) {
	var base zerolog.Logger
	if conf.Pretty {
		base = zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stderr
		}))
	} else {
		base = zerolog.New(os.Stdout)
	}

	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
	}

	log.Logger = base.Level(level).With().
		Timestamp().
		Caller().
		Stack().
		Logger()
}
