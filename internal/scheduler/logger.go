package scheduler

import (
	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
)

// gocronLogger routes gocron's internal logging through charmbracelet/log.
// Gocron is chatty at info level, so its info output is demoted to debug.
type gocronLogger struct {
	log *log.Logger
}

var _ gocron.Logger = (*gocronLogger)(nil)

func newLogger() *gocronLogger {
	return &gocronLogger{
		log: log.Default().WithPrefix("scheduler"),
	}
}

func (l *gocronLogger) Debug(msg string, args ...any) {
	l.log.Debug(msg, args...)
}

func (l *gocronLogger) Info(msg string, args ...any) {
	l.log.Debug(msg, args...)
}

func (l *gocronLogger) Warn(msg string, args ...any) {
	l.log.Warn(msg, args...)
}

func (l *gocronLogger) Error(msg string, args ...any) {
	l.log.Error(msg, args...)
}
