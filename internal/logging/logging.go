package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. Development gets a human readable console
// writer, every other environment writes JSON lines.
func Setup(level string, env string) zerolog.Logger {
	return SetupWithWriter(level, env, os.Stdout)
}

func SetupWithWriter(level string, env string, out io.Writer) zerolog.Logger {
	parsedLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsedLevel == zerolog.NoLevel {
		parsedLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsedLevel)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := out
	if strings.EqualFold(strings.TrimSpace(env), "development") {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(writer).With().Timestamp().Str("service", "whiteboar").Logger()
	log.Logger = logger
	return logger
}
