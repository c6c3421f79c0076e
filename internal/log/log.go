package log

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	// LOG_LEVEL and LOG_FORMAT apply before any config file is read
	if err := Configure(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")); err != nil {
		logger.Warnf("Ignoring log environment: %v", err)
	}
}

// Configure sets the level (DEBUG, INFO, WARN, ERROR) and the format (text,
// json) of the shared logger. Empty values keep the current setting.
func Configure(level, format string) error {
	if level != "" {
		lvl, err := logrus.ParseLevel(strings.ToLower(level))
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", level)
		}
		logger.SetLevel(lvl)
	}
	switch strings.ToLower(format) {
	case "":
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return errors.Errorf("invalid log format %q", format)
	}
	return nil
}

// GetLogger returns the shared logger instance
func GetLogger() *logrus.Logger {
	return logger
}
