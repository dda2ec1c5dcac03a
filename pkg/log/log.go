// Package log wires up the process-wide structured logger, grounded on the
// teacher's pkg/log: a JSON formatter in production, a more permissive
// development logger when debug is requested, both built around
// sirupsen/logrus.
package log

import (
	"os"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/config"
	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger pre-populated with build metadata, the same
// fields the teacher's NewLogger attaches.
func NewLogger(cfg *config.AppConfig) *logrus.Entry {
	var base *logrus.Logger
	if cfg.Debug || os.Getenv("DEBUG") == "TRUE" {
		base = newDevelopmentLogger()
	} else {
		base = newProductionLogger()
	}

	return base.WithFields(logrus.Fields{
		"debug":     cfg.Debug,
		"version":   cfg.Version,
		"commit":    cfg.Commit,
		"buildDate": cfg.BuildDate,
	})
}

func getLogLevel() logrus.Level {
	strLevel := os.Getenv("LOG_LEVEL")
	level, err := logrus.ParseLevel(strLevel)
	if err != nil {
		return logrus.DebugLevel
	}
	return level
}

func newDevelopmentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(getLogLevel())
	l.SetOutput(os.Stderr)
	return l
}

func newProductionLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.Formatter = &logrus.JSONFormatter{}
	return l
}
