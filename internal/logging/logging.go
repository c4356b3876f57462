// Package logging builds the process-wide structured logger, grounded
// on the donor service's observability/logging.Setup but backed by
// zerolog, the structured logger the dependency pack's other services
// carry as a real third-party alternative to the stdlib-only approach.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Setup builds a JSON logger tagged with service/env, matching the
// donor's Setup(service, env) signature and intent.
func Setup(service, env string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if strings.EqualFold(env, "dev") || strings.EqualFold(env, "development") {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("env", env).
		Logger()
	return logger
}
