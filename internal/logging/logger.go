// Package logging provides the structured, request-scoped logger used
// throughout the proxy, generalizing the teacher's logrus-based
// ObservabilityLogger and ContextLogger into a single immutable value
// that carries fields forward through WithXxx calls instead of writing to
// a fixed JSONL file on disk.
package logging

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

// Component labels mirror the teacher's logger/observability.go constants,
// scoped to this repo's own subsystems.
const (
	ComponentOrchestrator = "orchestrator"
	ComponentUpstream     = "upstream"
	ComponentBridge       = "bridge"
	ComponentFixes        = "fixes"
	ComponentSynth        = "synth"
	ComponentConfig       = "configuration"
)

// Logger is an immutable, field-carrying wrapper over a logrus entry.
// Each WithXxx call returns a new Logger rather than mutating the
// receiver, the same value-semantics the teacher's ContextLogger uses.
type Logger struct {
	entry *logrus.Entry
}

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the process-wide minimum log level.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// New returns a root Logger with a "service" field, mirroring the
// teacher's NewObservabilityLogger's WithField("service", ...) pattern.
func New() Logger {
	return Logger{entry: base.WithField("service", "llamaproxy")}
}

type contextKey struct{}

// WithContext stores l in ctx for later retrieval by FromContext.
func (l Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger embedded in ctx, or a fresh root logger
// if none was stored.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(contextKey{}).(Logger); ok {
		return l
	}
	return New()
}

// WithRequestID scopes subsequent log lines to one inbound request.
func (l Logger) WithRequestID(id string) Logger {
	return Logger{entry: l.entry.WithField("request_id", id)}
}

// WithComponent tags subsequent log lines with the subsystem emitting them.
func (l Logger) WithComponent(component string) Logger {
	return Logger{entry: l.entry.WithField("component", component)}
}

// WithModel tags subsequent log lines with the model name in play.
func (l Logger) WithModel(model string) Logger {
	return Logger{entry: l.entry.WithField("model", model)}
}

// WithField attaches an arbitrary key/value pair.
func (l Logger) WithField(key string, value interface{}) Logger {
	return Logger{entry: l.entry.WithField(key, value)}
}

func (l Logger) Debug(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l Logger) Info(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l Logger) Warn(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l Logger) Error(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
