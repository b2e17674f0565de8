package concurrency

import (
	"github.com/sirupsen/logrus"
)

// Logger is the narrow logging surface the pool needs. It is declared here rather
// than imported from core to avoid an import cycle; core.Logger and *logrus.Entry
// both satisfy it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

func newDefaultLogger(pool string) Logger {
	return logrus.StandardLogger().WithFields(logrus.Fields{
		"component": "threadpool",
		"pool":      pool,
	})
}
