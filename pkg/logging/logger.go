package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type contextKey string

const (
	LogFieldsContextKey = contextKey("log_fields")

	ProjectDirectoryName = "commitgraph"
	ModuleName           = "github.com/treeverse/commitgraph"
)

// log_fields keys
const (
	// RepositoryFieldKey repository id, owner/name (string)
	RepositoryFieldKey = "repository"
	// OwnerFieldKey repository owner public key (string)
	OwnerFieldKey = "owner"
	// CommitIDFieldKey commit id (string)
	CommitIDFieldKey = "commit_id"
	// ServerIDFieldKey id of the peer node involved (string)
	ServerIDFieldKey = "server_id"
	// OperationFieldKey name of the node or sync operation (string)
	OperationFieldKey = "operation"
	// ServiceNameFieldKey service name (string, ex: node)
	ServiceNameFieldKey = "service_name"
)

var ErrInvalidOutput = errors.New("invalid log output")

var (
	formatterInitOnce sync.Once
	defaultLogger     = logrus.New()

	openWritersMu sync.Mutex
	openWriters   []io.Closer
)

func Level() string {
	return defaultLogger.GetLevel().String()
}

type Fields map[string]interface{}

// logCallerTrimmer is used to trim the caller paths to be relative to the project root
func logCallerTrimmer(frame *runtime.Frame) (function string, file string) {
	indexOfModule := strings.Index(strings.ToLower(frame.File), ProjectDirectoryName)
	if indexOfModule != -1 {
		file = frame.File[indexOfModule+len(ProjectDirectoryName):]
	} else {
		file = frame.File
	}
	file = fmt.Sprintf("%s:%d", strings.TrimPrefix(file, string(os.PathSeparator)), frame.Line)
	function = strings.TrimPrefix(frame.Function, ModuleName+"/")
	return
}

func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "trace":
		defaultLogger.SetLevel(logrus.TraceLevel)
	case "debug":
		defaultLogger.SetLevel(logrus.DebugLevel)
	case "info":
		defaultLogger.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		defaultLogger.SetLevel(logrus.WarnLevel)
	case "error":
		defaultLogger.SetLevel(logrus.ErrorLevel)
	case "panic":
		defaultLogger.SetLevel(logrus.PanicLevel)
	case "null", "none":
		defaultLogger.SetLevel(logrus.PanicLevel)
		defaultLogger.SetOutput(io.Discard)
	}
}

// SetOutputs sets the log outputs. "-" is stdout, "=" is stderr, anything else is a
// file name rotated by size.
func SetOutputs(outputs []string, fileMaxSizeMB, filesKeep int) error {
	var (
		writers []io.Writer
		closers []io.Closer
	)
	for _, output := range outputs {
		var w io.Writer
		switch strings.TrimSpace(output) {
		case "":
			continue
		case "-":
			w = os.Stdout
		case "=":
			w = os.Stderr
		default:
			if strings.HasSuffix(output, string(os.PathSeparator)) {
				return fmt.Errorf("%w: %s is a directory", ErrInvalidOutput, output)
			}
			l := &lumberjack.Logger{
				Filename:   output,
				MaxSize:    fileMaxSizeMB,
				MaxBackups: filesKeep,
			}
			closers = append(closers, l)
			w = l
		}
		writers = append(writers, w)
	}
	if len(writers) == 0 {
		return nil
	}
	if err := CloseWriters(); err != nil {
		return err
	}
	openWritersMu.Lock()
	openWriters = closers
	openWritersMu.Unlock()
	switch len(writers) {
	case 1:
		defaultLogger.SetOutput(writers[0])
	default:
		defaultLogger.SetOutput(io.MultiWriter(writers...))
	}
	return nil
}

// CloseWriters closes file outputs opened by SetOutputs.
func CloseWriters() error {
	openWritersMu.Lock()
	defer openWritersMu.Unlock()
	var firstErr error
	for _, c := range openWriters {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	openWriters = nil
	return firstErr
}

func SetOutputFormat(format string) {
	var formatter logrus.Formatter
	switch strings.ToLower(format) {
	case "text":
		formatter = &logrus.TextFormatter{
			FullTimestamp:          true,
			DisableLevelTruncation: true,
			PadLevelText:           true,
			QuoteEmptyFields:       true,
			CallerPrettyfier:       logCallerTrimmer,
		}
	case "json":
		formatter = &logrus.JSONFormatter{
			CallerPrettyfier: logCallerTrimmer,
		}
	default:
		return
	}
	defaultLogger.SetFormatter(logrusCallerFormatter{formatter})
}

type Logger interface {
	WithContext(ctx context.Context) Logger
	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
	Trace(args ...interface{})
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	IsTracing() bool
	IsDebugging() bool
}

type logrusEntryWrapper struct {
	e *logrus.Entry
}

func (l *logrusEntryWrapper) WithContext(ctx context.Context) Logger {
	return addFromContext(&logrusEntryWrapper{l.e.WithContext(ctx)}, ctx)
}

func (l *logrusEntryWrapper) WithField(key string, value interface{}) Logger {
	return &logrusEntryWrapper{l.e.WithField(key, value)}
}

func (l *logrusEntryWrapper) WithFields(fields Fields) Logger {
	return &logrusEntryWrapper{l.e.WithFields(logrus.Fields(fields))}
}

func (l *logrusEntryWrapper) WithError(err error) Logger {
	return &logrusEntryWrapper{l.e.WithError(err)}
}

func (l *logrusEntryWrapper) Trace(args ...interface{}) { l.e.Trace(args...) }
func (l *logrusEntryWrapper) Debug(args ...interface{}) { l.e.Debug(args...) }
func (l *logrusEntryWrapper) Info(args ...interface{})  { l.e.Info(args...) }
func (l *logrusEntryWrapper) Warn(args ...interface{})  { l.e.Warn(args...) }
func (l *logrusEntryWrapper) Error(args ...interface{}) { l.e.Error(args...) }
func (l *logrusEntryWrapper) Fatal(args ...interface{}) { l.e.Fatal(args...) }

func (l *logrusEntryWrapper) Tracef(format string, args ...interface{}) { l.e.Tracef(format, args...) }
func (l *logrusEntryWrapper) Debugf(format string, args ...interface{}) { l.e.Debugf(format, args...) }
func (l *logrusEntryWrapper) Infof(format string, args ...interface{})  { l.e.Infof(format, args...) }
func (l *logrusEntryWrapper) Warnf(format string, args ...interface{})  { l.e.Warnf(format, args...) }
func (l *logrusEntryWrapper) Errorf(format string, args ...interface{}) { l.e.Errorf(format, args...) }
func (l *logrusEntryWrapper) Fatalf(format string, args ...interface{}) { l.e.Fatalf(format, args...) }

func (*logrusEntryWrapper) IsTracing() bool {
	return defaultLogger.IsLevelEnabled(logrus.TraceLevel)
}

func (*logrusEntryWrapper) IsDebugging() bool {
	return defaultLogger.IsLevelEnabled(logrus.DebugLevel)
}

type logrusCallerFormatter struct {
	f logrus.Formatter
}

func (lf logrusCallerFormatter) Format(e *logrus.Entry) ([]byte, error) {
	e.Caller = getCaller()
	return lf.f.Format(e)
}

// getCaller returns the first frame outside of logrus and this package.
func getCaller() *runtime.Frame {
	const maxDepth = 25
	pcs := make([]uintptr, maxDepth)
	depth := runtime.Callers(1, pcs)
	frames := runtime.CallersFrames(pcs[:depth])
	for f, more := frames.Next(); more; f, more = frames.Next() {
		if strings.Contains(f.File, "sirupsen/logrus") || strings.Contains(f.Function, ModuleName+"/pkg/logging.") {
			continue
		}
		frame := f
		return &frame
	}
	return nil
}

func Default() Logger {
	formatterInitOnce.Do(func() {
		defaultLogger.SetReportCaller(true)
		defaultLogger.Formatter = logrusCallerFormatter{defaultLogger.Formatter}
	})
	return &logrusEntryWrapper{
		e: logrus.NewEntry(defaultLogger),
	}
}

func addFromContext(log Logger, ctx context.Context) Logger {
	fields, ok := ctx.Value(LogFieldsContextKey).(Fields)
	if !ok {
		return log
	}
	return log.WithFields(fields)
}

func FromContext(ctx context.Context) Logger {
	return addFromContext(Default(), ctx)
}

// AddFields returns a context carrying the given log fields in addition to the ones
// already on ctx. The fields of the parent context are not modified.
func AddFields(ctx context.Context, fields Fields) context.Context {
	loggerFields := Fields{}
	if ctxFields, ok := ctx.Value(LogFieldsContextKey).(Fields); ok {
		for k, v := range ctxFields {
			loggerFields[k] = v
		}
	}
	for k, v := range fields {
		loggerFields[k] = v
	}
	return context.WithValue(ctx, LogFieldsContextKey, loggerFields)
}

// Dummy returns a logger that discards everything.
func Dummy() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &logrusEntryWrapper{e: logrus.NewEntry(l)}
}
