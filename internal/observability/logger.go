package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger stamps the process identity onto the global logger and returns
// the stamped logger. Level, timestamps, and output format are owned by
// internal/logging; callers configure that first, then identify themselves
// here.
func InitLogger(app string) zerolog.Logger {
	logger := log.With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
