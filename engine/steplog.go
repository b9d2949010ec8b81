package engine

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// stepLog writes to logrus and keeps the INFO and above lines of the round
// in progress, for the step record.
type stepLog struct {
	entry *log.Entry
	lines []string
}

func (l *stepLog) add(level log.Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.entry.Log(level, msg)
	if level <= log.InfoLevel {
		l.lines = append(l.lines, strings.ToUpper(level.String())+": "+msg)
	}
}

func (l *stepLog) info(format string, args ...interface{}) {
	l.add(log.InfoLevel, format, args...)
}

func (l *stepLog) warn(format string, args ...interface{}) {
	l.add(log.WarnLevel, format, args...)
}

func (l *stepLog) debug(format string, args ...interface{}) {
	l.add(log.DebugLevel, format, args...)
}

// flush returns the lines of the finished round and starts a new one.
func (l *stepLog) flush() []string {
	lines := l.lines
	l.lines = nil
	if lines == nil {
		lines = []string{}
	}
	return lines
}
