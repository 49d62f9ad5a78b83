// internal/logger/logger.go
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus to give the rest of the application a single place
// to configure formatting and level.
type Logger struct {
	*logrus.Logger
}

// NewLogger returns a logger writing to stdout with timestamps enabled.
// Level is controlled by the LOG_LEVEL environment variable (default info).
func NewLogger() *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	return &Logger{Logger: l}
}
