package cachegate

import (
	"log/slog"
)

// log returns the logger for the Engine.
// If a logger is configured on the Engine, it returns that logger.
// Otherwise, it falls back to the default slog logger.
func (e *Engine) log() *slog.Logger {
	if e != nil && e.logger != nil {
		return e.logger
	}
	return slog.Default()
}
