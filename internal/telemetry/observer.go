// Package telemetry wires protocol.Observer onto go.uber.org/zap, the
// structured logger bufbuild-buf's bufpkg packages import directly
// (e.g. bufpkg/bufstudioagent/plain_post_handler.go,
// bufpkg/bufcheck/multi_client.go). The protocol engine stays decoupled
// from any particular sink; this package is the one place that commits
// to zap.
package telemetry

import (
	"time"

	"go.uber.org/zap"

	"github.com/anndream/gitgud/internal/protocol"
)

// ZapObserver logs every state-machine transition as a structured
// event, tagged with the service name.
type ZapObserver struct {
	log *zap.Logger
}

// NewZapObserver wraps log. A nil log falls back to zap.NewNop().
func NewZapObserver(log *zap.Logger) *ZapObserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapObserver{log: log}
}

// OnTransition implements protocol.Observer.
func (o *ZapObserver) OnTransition(svc protocol.ServiceName, prev, next string, elapsed time.Duration) {
	o.log.Debug("state transition",
		zap.String("service", svc.String()),
		zap.String("from", prev),
		zap.String("to", next),
		zap.Duration("elapsed", elapsed),
	)
}

// Logger adapts *zap.Logger to the narrow interface httpgit.Handler
// expects, avoiding a direct zap import at the transport boundary.
type Logger struct {
	log *zap.Logger
}

// NewLogger wraps log. A nil log falls back to zap.NewNop().
func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log}
}

func (l *Logger) Info(msg string, fields ...interface{}) {
	l.log.Sugar().Infow(msg, fields...)
}

func (l *Logger) Error(msg string, fields ...interface{}) {
	l.log.Sugar().Errorw(msg, fields...)
}
