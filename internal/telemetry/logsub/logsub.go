// Package logsub subscribes the telemetry bus to structured logging via
// logrus, adapted from movio-bramble's log.WithFields(...) idiom (the
// teacher itself carries no logging library).
package logsub

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/hanpama/compositegraph/internal/reqid"
	"github.com/hanpama/compositegraph/internal/telemetry"
)

// Register attaches log-emitting subscribers to the global telemetry bus.
func Register(log *logrus.Logger) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	telemetry.Subscribe(func(ctx context.Context, e telemetry.RootQueryStart) {
		fields(ctx, log.WithField("operation_name", e.OperationName)).Debug("root query start")
	})

	telemetry.Subscribe(func(ctx context.Context, e telemetry.RootQueryFinish) {
		fields(ctx, log.WithFields(logrus.Fields{
			"operation_name": e.OperationName,
			"error_count":    e.ErrorCount,
			"duration_ms":    e.Duration.Milliseconds(),
		})).Info("root query finish")
	})

	telemetry.Subscribe(func(ctx context.Context, e telemetry.InterpreterBatchStart) {
		fields(ctx, log.WithFields(logrus.Fields{
			"interpreter": e.Interpreter,
			"batch_size":  e.BatchSize,
		})).Debug("interpreter batch start")
	})

	telemetry.Subscribe(func(ctx context.Context, e telemetry.InterpreterBatchFinish) {
		fields(ctx, log.WithFields(logrus.Fields{
			"interpreter": e.Interpreter,
			"batch_size":  e.BatchSize,
			"error_count": e.ErrorCount,
			"duration_ms": e.Duration.Milliseconds(),
		})).Debug("interpreter batch finish")
	})

	telemetry.Subscribe(func(ctx context.Context, e telemetry.CompletionStageFinish) {
		fields(ctx, log.WithFields(logrus.Fields{
			"placeholder_count": e.PlaceholderCount,
			"duration_ms":       e.Duration.Milliseconds(),
		})).Debug("completion stage finish")
	})

	telemetry.Subscribe(func(ctx context.Context, e telemetry.RemoteCallStart) {
		fields(ctx, log.WithFields(logrus.Fields{
			"service": e.Service,
			"method":  e.Method,
			"target":  e.Target,
		})).Debug("remote call start")
	})

	telemetry.Subscribe(func(ctx context.Context, e telemetry.RemoteCallFinish) {
		entry := log.WithFields(logrus.Fields{
			"service":     e.Service,
			"method":      e.Method,
			"target":      e.Target,
			"code":        e.Code,
			"duration_ms": e.Duration.Milliseconds(),
		})
		if e.Err != nil {
			fields(ctx, entry.WithError(e.Err)).Warn("remote call finish")
			return
		}
		fields(ctx, entry).Debug("remote call finish")
	})
}

func fields(ctx context.Context, entry *logrus.Entry) *logrus.Entry {
	if rid, ok := reqid.FromContext(ctx); ok {
		return entry.WithField("request_id", rid)
	}
	return entry
}
