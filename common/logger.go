package common

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the process wide logger. Hot paths must not log through it.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
}

func SetDebugLogging() {
	Logger.SetLevel(logrus.DebugLevel)
}
