package telemetry

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/relabs-gnc/rocketgnc/internal/config"
)

// NewLogger builds the process-wide structured logger from the logging
// config: JSON output to stdout or to a file, level taken from
// LoggingConfig.LogrusLevel. This is the human-readable counterpart to
// the tab-separated domain logs above — subsystems write both, one for
// an operator tailing stdout, one for offline analysis.
func NewLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(cfg.LogrusLevel())

	if cfg.Output == "" || cfg.Output == "stdout" {
		logger.SetOutput(os.Stdout)
	} else {
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logger.SetOutput(file)
		} else {
			logger.SetOutput(os.Stdout)
			logger.WithError(err).Warnf("failed to open log file %s, using stdout", cfg.Output)
		}
	}

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	return logger
}

// Component scopes logger to one subsystem, the structured analogue of
// that subsystem's tab-separated domain log or the shared error log's
// component column.
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("component", name)
}
