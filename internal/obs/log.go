package obs

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Log returns the shared structured logger used across the service.
func Log() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{logrus.FieldKeyTime: "ts"},
		})
		logger.AddHook(traceHook{})
	})
	return logger
}

// InitLogger applies level and format settings. Unknown levels fall back to info.
func InitLogger(level, format string) {
	l := Log()
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// SetOutput redirects the shared logger, returning the previous writer.
func SetOutput(w io.Writer) io.Writer {
	l := Log()
	prev := l.Out
	l.SetOutput(w)
	return prev
}

// FromContext returns an entry bound to ctx so the trace hook can see the active span.
func FromContext(ctx context.Context) *logrus.Entry {
	return Log().WithContext(ctx)
}

// traceHook copies the active span identifiers onto entries logged with a context.
type traceHook struct{}

func (traceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (traceHook) Fire(e *logrus.Entry) error {
	if e.Context == nil {
		return nil
	}
	sc := trace.SpanContextFromContext(e.Context)
	if !sc.IsValid() {
		return nil
	}
	e.Data["trace_id"] = sc.TraceID().String()
	e.Data["span_id"] = sc.SpanID().String()
	return nil
}
