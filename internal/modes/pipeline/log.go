package pipeline

import (
	"github.com/banshee-data/modes1090/internal/monitoring"
)

// opsf logs actionable warnings, errors and data loss.
func opsf(format string, args ...interface{}) {
	l := monitoring.Logger()
	l.Warn().Msgf("[pipeline] "+format, args...)
}

// diagf logs day-to-day diagnostics.
func diagf(format string, args ...interface{}) {
	l := monitoring.Logger()
	l.Info().Msgf("[pipeline] "+format, args...)
}

// tracef logs per-burst telemetry.
func tracef(format string, args ...interface{}) {
	l := monitoring.Logger()
	l.Debug().Msgf("[pipeline] "+format, args...)
}
