package cmd

import (
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/rf-ate/internal/config"
)

// newLogger creates a logger configured from the logging section.
// If verbose is true, the logger is set to DebugLevel regardless of the level.
func newLogger(verbose bool, cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	configureLogger(log, verbose, cfg)

	return log
}

func configureLogger(log *logrus.Logger, verbose bool, cfg config.LoggingConfig) {
	switch cfg.Format {
	case config.LogFormatJSON:
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level := logrus.InfoLevel

	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			log.WithField("level", cfg.Level).Warn("Invalid log level, defaulting to info")
		} else {
			level = parsed
		}
	}

	if verbose {
		level = logrus.DebugLevel
	}

	log.SetLevel(level)
}
