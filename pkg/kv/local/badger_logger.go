package local

import (
	"strings"

	"github.com/treeverse/commitgraph/pkg/logging"
)

// BadgerLogger adapts our Logger to badger's. Badger is chatty at info level so
// everything below warning is traced.
type BadgerLogger struct {
	logger logging.Logger
}

func (l *BadgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(strings.TrimSpace(format), args...)
}

func (l *BadgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf(strings.TrimSpace(format), args...)
}

func (l *BadgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Tracef(strings.TrimSpace(format), args...)
}

func (l *BadgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Tracef(strings.TrimSpace(format), args...)
}
