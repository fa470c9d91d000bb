// Package logger wraps logrus with request-scoped helpers so call sites stay
// one-liners and every entry carries the request id when one exists.
package logger

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

type requestIdKey struct{}

var log = logrus.New()

func Setup(debug bool) {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	if debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

// WithRequestId stores the request id used by the Log* helpers.
func WithRequestId(ctx context.Context, requestId string) context.Context {
	return context.WithValue(ctx, requestIdKey{}, requestId)
}

func entry(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if id, ok := ctx.Value(requestIdKey{}).(string); ok && id != "" {
			return log.WithField("request_id", id)
		}
	}
	return logrus.NewEntry(log)
}

func LogDebug(ctx context.Context, format string, args ...any) {
	entry(ctx).Debug(fmt.Sprintf(format, args...))
}

func LogInfo(ctx context.Context, format string, args ...any) {
	entry(ctx).Info(fmt.Sprintf(format, args...))
}

func LogWarn(ctx context.Context, format string, args ...any) {
	entry(ctx).Warn(fmt.Sprintf(format, args...))
}

func LogError(ctx context.Context, format string, args ...any) {
	entry(ctx).Error(fmt.Sprintf(format, args...))
}
