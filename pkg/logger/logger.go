package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogMode selects output format and verbosity for the process-wide logger.
type LogMode string

const (
	LogModeDebug  LogMode = "debug"
	LogModePretty LogMode = "pretty"
	LogModeInfo   LogMode = "info"
	LogModeProd   LogMode = "prod"
	LogModeTest   LogMode = "test"
)

var log zerolog.Logger

// Init configures the logger with the default pretty console output.
func Init() {
	InitWithMode(LogModePretty)
}

// InitWithMode configures the global logger. Pretty and debug modes write
// colorized console output; prod and test write JSON lines.
func InitWithMode(mode LogMode) {
	zerolog.TimeFieldFormat = time.RFC3339

	switch mode {
	case LogModeProd:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log = zerolog.New(os.Stdout).With().Timestamp().Logger()
	case LogModeTest:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		log = zerolog.New(os.Stdout).With().Timestamp().Logger()
	case LogModeInfo:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log = zerolog.New(consoleWriter()).With().Timestamp().Logger()
	case LogModeDebug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log = zerolog.New(consoleWriter()).With().Timestamp().Logger()
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log = zerolog.New(consoleWriter()).With().Timestamp().Logger()
	}

	zerolog.DefaultContextLogger = &log
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    false,
		FormatLevel: func(i interface{}) string {
			return colorizeLevel(i.(string))
		},
		FormatMessage: func(i interface{}) string {
			return colorize(i.(string), cyan)
		},
		FormatFieldName: func(i interface{}) string {
			return colorize(i.(string)+":", gray)
		},
		FormatFieldValue: func(i interface{}) string {
			switch v := i.(type) {
			case string:
				return colorize(v, blue)
			case json.Number:
				return colorize(v.String(), blue)
			default:
				return colorize(fmt.Sprint(v), blue)
			}
		},
	}
}

// ANSI color codes
const (
	gray  = "\x1b[37m"
	blue  = "\x1b[34m"
	cyan  = "\x1b[36m"
	red   = "\x1b[31m"
	reset = "\x1b[0m"
)

func colorize(s, color string) string {
	return color + s + reset
}

func colorizeLevel(level string) string {
	switch level {
	case "debug":
		return colorize("DBG", gray)
	case "info":
		return colorize("INF", blue)
	case "warn":
		return colorize("WRN", cyan)
	case "error":
		return colorize("ERR", red)
	default:
		return colorize(level, blue)
	}
}

// Get returns the process-wide logger.
func Get() zerolog.Logger {
	return log
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
