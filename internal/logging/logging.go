// Package logging builds the process-wide structured logger, switching
// encoders based on the same environment-variable gates the original
// info()/debug() print helpers used.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger: a human-readable development encoder when
// LOG_LEVEL=debug or DEBUG=1 is set, a production JSON encoder
// otherwise. name tags every line so master/slave logs interleave
// legibly.
func New(name string) *zap.Logger {
	var zapCfg zap.Config
	if isDebug() {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	log, err := zapCfg.Build()
	if err != nil {
		// The logger itself failed to build; there is nowhere
		// structured left to report this, so fall back to a no-op
		// logger rather than crash a process that might otherwise run
		// fine without verbose logging.
		return zap.NewNop()
	}
	return log.Named(name)
}

func isDebug() bool {
	return os.Getenv("LOG_LEVEL") == "debug" || os.Getenv("DEBUG") == "1"
}
